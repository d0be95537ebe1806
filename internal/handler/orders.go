package handler

import (
	"net/http"
)

type purchaseRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Purchase buys product codes from the wallet. An Idempotency-Key header
// makes retries return the first result instead of buying again.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var req purchaseRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	res, err := h.purchases.Purchase(r.Context(), s.UserID, req.ProductID, req.Quantity, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	page := pagination(r)
	orders, total, err := h.purchases.ListOrders(r.Context(), s.UserID, page)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, paged(orders, total, page))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	order, err := h.purchases.GetOrder(r.Context(), s.UserID, id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, order)
}
