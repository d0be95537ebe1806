package handler

import (
	"net/http"
	"strconv"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
)

func (h *Handler) ReferralOverview(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	overview, err := h.referrals.Overview(r.Context(), s.UserID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, overview)
}

func (h *Handler) MyCommissions(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	commissions, err := h.referrals.MyCommissions(r.Context(), s.UserID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, commissions)
}

func (h *Handler) GetReferralSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.referrals.GetSettings(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, settings)
}

func (h *Handler) UpdateReferralSettings(w http.ResponseWriter, r *http.Request) {
	var req models.ReferralSettings
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	settings, err := h.referrals.UpdateSettings(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, settings)
}

// ListCommissions accepts optional status and referrer_id filters.
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.CommissionFilter{Status: models.CommissionStatus(q.Get("status"))}
	if raw := q.Get("referrer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeErr(w, r, pkgerrors.Invalid("referrer_id must be an integer"))
			return
		}
		filter.ReferrerID = &id
	}
	commissions, err := h.referrals.ListCommissions(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, commissions)
}

func (h *Handler) CompleteCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	c, err := h.referrals.Complete(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, c)
}

func (h *Handler) CancelCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	c, err := h.referrals.Cancel(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, c)
}
