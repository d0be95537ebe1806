package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type balanceResponse struct {
	Balance string `json:"balance"`
}

type withdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

type creditRequest struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	balance, err := h.wallet.GetBalance(r.Context(), s.UserID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, balanceResponse{Balance: balance.StringFixed(2)})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	page := pagination(r)
	txs, total, err := h.wallet.ListTransactions(r.Context(), s.UserID, page)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, paged(txs, total, page))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req withdrawRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	wt, err := h.wallet.Withdraw(r.Context(), s.UserID, req.Amount, req.Destination)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, wt)
}

func (h *Handler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req creditRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	wt, err := h.wallet.AdminCredit(r.Context(), s.UserID, req.UserID, req.Amount, req.Note)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, wt)
}
