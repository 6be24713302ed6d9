package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/sales"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	order, err := h.sales.CreateOrder(r.Context(), req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) listLineHistory(w http.ResponseWriter, r *http.Request) {
	page, ok := h.pageRequest(w, r)
	if !ok {
		return
	}

	result, err := h.sales.ListLineHistory(r.Context(), domain.LineHistoryFilter{
		ProductName: r.URL.Query().Get("productName"),
		PageRequest: page,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(result, toLineHistoryResponse))
}

func (h *Handler) productHistory(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}

	rows, err := h.sales.ProductHistory(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]lineHistoryResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toLineHistoryResponse(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.sales.OrderHistory(r.Context(), sales.OrderHistoryQuery{
		Product:  firstQuery(r, "producto", "product"),
		Date:     firstQuery(r, "fecha", "date"),
		Customer: firstQuery(r, "cliente", "customer"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]orderSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		resp = append(resp, toOrderSummaryResponse(summary))
	}
	writeJSON(w, http.StatusOK, resp)
}
