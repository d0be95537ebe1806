package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
)

const maxBodyBytes = 1 << 20

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Auth      *service.AuthService
	Wallet    *service.WalletService
	Purchases *service.PurchaseService
	Payments  *service.PaymentService
	Referrals *service.ReferralService
	Catalog   *service.CatalogService
	Resources *service.ResourceService
}

type Handler struct {
	auth      *service.AuthService
	wallet    *service.WalletService
	purchases *service.PurchaseService
	payments  *service.PaymentService
	referrals *service.ReferralService
	catalog   *service.CatalogService
	resources *service.ResourceService
}

func NewHandler(s Services) *Handler {
	return &Handler{
		auth:      s.Auth,
		wallet:    s.Wallet,
		purchases: s.Purchases,
		payments:  s.Payments,
		referrals: s.Referrals,
		catalog:   s.Catalog,
		resources: s.Resources,
	}
}

type ErrorBody struct {
	Kind    pkgerrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

// Result is the envelope of every response: data on success, error otherwise.
type Result[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Page is a window of a listing plus the total number of items.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

var statusByKind = map[pkgerrors.Kind]int{
	pkgerrors.KindValidation:   http.StatusBadRequest,
	pkgerrors.KindUnauthorized: http.StatusUnauthorized,
	pkgerrors.KindForbidden:    http.StatusForbidden,
	pkgerrors.KindNotFound:     http.StatusNotFound,
	pkgerrors.KindBusiness:     http.StatusUnprocessableEntity,
	pkgerrors.KindConflict:     http.StatusConflict,
	pkgerrors.KindInternal:     http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeOK[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, Result[T]{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := pkgerrors.KindOf(err)
	message := err.Error()
	if kind == pkgerrors.KindInternal {
		observability.Logger(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		message = "internal server error"
	}
	writeJSON(w, statusByKind[kind], Result[any]{Error: &ErrorBody{Kind: kind, Message: message}})
}

// WriteError lets middleware outside this package answer in the same envelope.
var WriteError auth.ErrorWriter = writeErr

// NotFound answers requests that match no route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeErr(w, r, pkgerrors.ErrResourceNotFound)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return pkgerrors.Invalid("malformed request body: %v", err)
	}
	return nil
}

func session(r *http.Request) (auth.Session, error) {
	s, ok := auth.SessionFrom(r.Context())
	if !ok {
		return auth.Session{}, pkgerrors.ErrUnauthorized
	}
	return s, nil
}

func actorOf(s auth.Session) service.Actor {
	return service.Actor{UserID: s.UserID, Admin: s.IsAdmin()}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.Invalid("%s must be a positive integer", name)
	}
	return id, nil
}

func pagination(r *http.Request) repository.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return repository.NewPage(page, size)
}

func paged[T any](items []T, total int, p repository.Page) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: p.Offset/p.Limit + 1, PageSize: p.Limit}
}

// Check is one dependency probed by Health.
type Check func(ctx context.Context) error

// Health reports ok only when every check passes.
func Health(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				slog.Warn("health check failed", "check", name, "error", err)
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		if !healthy {
			writeJSON(w, http.StatusServiceUnavailable, Result[map[string]string]{Data: status})
			return
		}
		writeOK(w, http.StatusOK, status)
	}
}
