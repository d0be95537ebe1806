package handler

import (
	"io"
	"net/http"

	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
)

const signatureHeader = "X-Signature"

type initiateRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Gateway string          `json:"gateway"`
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req initiateRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	payment, err := h.payments.Initiate(r.Context(), s.UserID, req.Amount, req.Gateway)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, payment)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
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
	payment, err := h.payments.GetPayment(r.Context(), s.UserID, id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, payment)
}

func (h *Handler) SimulatePayment(w http.ResponseWriter, r *http.Request) {
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
	res, err := h.payments.SimulateSuccess(r.Context(), s.UserID, id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}

// PaymentCallback receives gateway notifications. The signature covers the
// raw body, so it is read before decoding.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, r, pkgerrors.Invalid("unreadable body: %v", err))
		return
	}
	res, err := h.payments.HandleCallback(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}
