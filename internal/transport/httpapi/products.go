package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
)

func (h *Handler) productInput(w http.ResponseWriter, r *http.Request) (catalog.ProductInput, bool) {
	var req productRequest
	if !h.decodeJSON(w, r, &req) {
		return catalog.ProductInput{}, false
	}

	in := catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if req.Status != "" {
		status, err := domain.ParseProductStatus(string(req.Status))
		if err != nil {
			h.writeError(w, r, err)
			return catalog.ProductInput{}, false
		}
		in.Status = status
	}
	return in, true
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	in, ok := h.productInput(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, ok := h.pageRequest(w, r)
	if !ok {
		return
	}

	filter := domain.ProductFilter{Name: r.URL.Query().Get("name"), PageRequest: page}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseProductStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.Status = status
	}

	result, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(result, toProductResponse))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.productInput(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := h.catalog.ToggleStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}
