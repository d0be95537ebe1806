package handler

import (
	"net/http"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.auth.Logout(r.Context(), s.UserID); err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	user, err := h.auth.Me(r.Context(), s.UserID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, user)
}

// GenerateAPIKey issues a new key pair. The secret is shown only here.
func (h *Handler) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	s, err := session(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	creds, err := h.auth.GenerateAPIKey(r.Context(), s.UserID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, creds)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := pagination(r)
	users, total, err := h.auth.ListUsers(r.Context(), page)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, paged(users, total, page))
}
