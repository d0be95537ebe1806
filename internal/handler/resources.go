package handler

import (
	"net/http"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
)

type statusRequest struct {
	Status models.Status `json:"status"`
	Note   string        `json:"note"`
}

type subscribeRequest struct {
	Plan string `json:"plan"`
}

func statusFilter(r *http.Request) models.Status {
	return models.Status(r.URL.Query().Get("status"))
}

// Gateway applications

func (h *Handler) ListGateways(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	apps, err := h.resources.ListGateways(r.Context(), actorOf(s), statusFilter(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, apps)
}

func (h *Handler) ApplyGateway(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req service.GatewayInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	app, err := h.resources.ApplyGateway(r.Context(), s.UserID, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, app)
}

func (h *Handler) ReviewGateway(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	app, err := h.resources.ReviewGateway(r.Context(), id, req.Status, req.Note)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, app)
}

// Domains

func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	domains, err := h.resources.ListDomains(r.Context(), actorOf(s), statusFilter(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, domains)
}

func (h *Handler) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req service.DomainInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	domain, err := h.resources.RegisterDomain(r.Context(), s.UserID, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, domain)
}

func (h *Handler) ReviewDomain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	domain, err := h.resources.ReviewDomain(r.Context(), id, req.Status, req.Note)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, domain)
}

// Stores

func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	stores, err := h.resources.ListStores(r.Context(), actorOf(s))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, stores)
}

func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req service.StoreInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	store, err := h.resources.CreateStore(r.Context(), s.UserID, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, store)
}

func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
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
	store, err := h.resources.GetStore(r.Context(), actorOf(s), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, store)
}

func (h *Handler) UpdateStore(w http.ResponseWriter, r *http.Request) {
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
	var req service.StoreInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	store, err := h.resources.UpdateStore(r.Context(), actorOf(s), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, store)
}

func (h *Handler) SetStoreStatus(w http.ResponseWriter, r *http.Request) {
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
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	store, err := h.resources.SetStoreStatus(r.Context(), actorOf(s), id, req.Status)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, store)
}

// Marketing campaigns

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	campaigns, err := h.resources.ListCampaigns(r.Context(), actorOf(s), statusFilter(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, campaigns)
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req service.CampaignInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	campaign, err := h.resources.CreateCampaign(r.Context(), s.UserID, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, campaign)
}

func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
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
	var req service.CampaignInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	campaign, err := h.resources.UpdateCampaign(r.Context(), actorOf(s), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, campaign)
}

func (h *Handler) SetCampaignStatus(w http.ResponseWriter, r *http.Request) {
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
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	campaign, err := h.resources.SetCampaignStatus(r.Context(), actorOf(s), id, req.Status)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, campaign)
}

// Subscriptions

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, h.resources.Plans())
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	subs, err := h.resources.ListSubscriptions(r.Context(), actorOf(s))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, subs)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req subscribeRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	sub, err := h.resources.Subscribe(r.Context(), s.UserID, req.Plan)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, sub)
}
