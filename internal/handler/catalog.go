package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
)

type codesRequest struct {
	Codes []models.NewCode `json:"codes"`
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), id, false)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, product)
}

func (h *Handler) Storefront(w http.ResponseWriter, r *http.Request) {
	front, err := h.catalog.Storefront(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, front)
}

// Admin catalog management

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.AdminListProducts(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, products)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req service.ProductInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, product)
}

func (h *Handler) AddCodes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req codesRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if len(req.Codes) == 0 {
		writeErr(w, r, pkgerrors.Invalid("codes are required"))
		return
	}
	res, err := h.catalog.AddCodes(r.Context(), id, req.Codes)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, res)
}
