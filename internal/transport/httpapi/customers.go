package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/customer"
)

// Запас на заголовки multipart сверх размера файла.
const multipartOverheadBytes = 64 << 10

func (h *Handler) customerInput(w http.ResponseWriter, r *http.Request) (customer.Input, bool) {
	var req customerRequest
	if !h.decodeJSON(w, r, &req) {
		return customer.Input{}, false
	}

	in := customer.Input{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if req.Status != "" {
		status, err := domain.ParseCustomerStatus(string(req.Status))
		if err != nil {
			h.writeError(w, r, err)
			return customer.Input{}, false
		}
		in.Status = status
	}
	return in, true
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	in, ok := h.customerInput(w, r)
	if !ok {
		return
	}

	created, err := h.customers.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(created))
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	page, ok := h.pageRequest(w, r)
	if !ok {
		return
	}

	result, err := h.customers.List(r.Context(), domain.CustomerFilter{
		Query:       firstQuery(r, "query", "q"),
		PageRequest: page,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(result, toCustomerResponse))
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.customers.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.customerInput(w, r)
	if !ok {
		return
	}

	updated, err := h.customers.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(updated))
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.customers.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.customers.ToggleStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *Handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	limit := int64(h.customers.MaxPhotoBytes())
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverheadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.badRequest(w, r, "photo exceeds %d bytes", limit)
			return
		}
		h.badRequest(w, r, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.badRequest(w, r, "read photo: %v", err)
		return
	}

	updated, err := h.customers.UploadPhoto(r.Context(), id, header.Filename, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(updated))
}

func (h *Handler) getPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	photo, err := h.customers.Photo(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(photo.Data); err != nil {
		h.logger.WithError(err).WithField("customer_id", id).Warn("failed to write photo")
	}
}
