package api

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/honeynil/ResaleServiceTochka/internal/handler"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Handler     *handler.Handler
	Tokens      *auth.TokenManager
	Redis       redis.RedisClient
	APIKeys     auth.APIKeyAuthenticator
	Roles       auth.RoleLookup
	Health      map[string]handler.Check
	CORSOrigins []string
}

// SetupRouter registers every route on one router. Guards wrap each route
// rather than living on subrouters so that a method mismatch on one group
// does not shadow a route of another.
func SetupRouter(d Deps) http.Handler {
	h := d.Handler
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)
	r.Use(handler.RequestID, handler.Metrics)

	// Защищённые роуты с JWT
	bearerMW := auth.AuthMiddleware(d.Tokens, d.Redis, handler.WriteError)
	adminMW := auth.RequireRole(d.Roles, handler.WriteError, models.RoleAdmin)
	apiKeyMW := auth.APIKeyMiddleware(d.APIKeys, handler.WriteError)

	bearer := func(f http.HandlerFunc) http.Handler { return bearerMW(f) }
	admin := func(f http.HandlerFunc) http.Handler { return bearerMW(adminMW(f)) }
	apiKey := func(f http.HandlerFunc) http.Handler { return apiKeyMW(f) }

	get, post, put := http.MethodGet, http.MethodPost, http.MethodPut

	// Public
	r.Handle("/health", handler.Health(d.Health)).Methods(get)
	r.Handle("/metrics", promhttp.Handler()).Methods(get)
	r.HandleFunc("/api/auth/register", h.Register).Methods(post)
	r.HandleFunc("/api/auth/login", h.Login).Methods(post)
	r.HandleFunc("/api/products", h.ListProducts).Methods(get)
	r.HandleFunc("/api/products/{id:[0-9]+}", h.GetProduct).Methods(get)
	// Store ids win over slugs; slugs are never all digits.
	r.Handle("/api/stores/{id:[0-9]+}", bearer(h.GetStore)).Methods(get)
	r.HandleFunc("/api/stores/{slug}", h.Storefront).Methods(get)
	r.HandleFunc("/api/payment/callback", h.PaymentCallback).Methods(post)

	// Session
	r.Handle("/api/auth/logout", bearer(h.Logout)).Methods(post)
	r.Handle("/api/auth/me", bearer(h.Me)).Methods(get)
	r.Handle("/api/auth/api-keys", bearer(h.GenerateAPIKey)).Methods(post)

	r.Handle("/api/orders/purchase", bearer(h.Purchase)).Methods(post)
	r.Handle("/api/orders", bearer(h.ListOrders)).Methods(get)
	r.Handle("/api/orders/{id:[0-9]+}", bearer(h.GetOrder)).Methods(get)

	r.Handle("/api/wallet/balance", bearer(h.GetBalance)).Methods(get)
	r.Handle("/api/wallet/transactions", bearer(h.ListTransactions)).Methods(get)
	r.Handle("/api/wallet/withdraw", bearer(h.Withdraw)).Methods(post)

	r.Handle("/api/payment/initiate", bearer(h.InitiatePayment)).Methods(post)
	r.Handle("/api/payment/{id:[0-9]+}", bearer(h.GetPayment)).Methods(get)
	r.Handle("/api/payment/simulate-success/{id:[0-9]+}", bearer(h.SimulatePayment)).Methods(post)

	r.Handle("/api/gateways", bearer(h.ListGateways)).Methods(get)
	r.Handle("/api/gateways", bearer(h.ApplyGateway)).Methods(post)
	r.Handle("/api/domains", bearer(h.ListDomains)).Methods(get)
	r.Handle("/api/domains", bearer(h.RegisterDomain)).Methods(post)
	r.Handle("/api/stores", bearer(h.ListStores)).Methods(get)
	r.Handle("/api/stores", bearer(h.CreateStore)).Methods(post)
	r.Handle("/api/stores/{id:[0-9]+}", bearer(h.UpdateStore)).Methods(put)
	r.Handle("/api/stores/{id:[0-9]+}/status", bearer(h.SetStoreStatus)).Methods(put)
	r.Handle("/api/marketing/campaigns", bearer(h.ListCampaigns)).Methods(get)
	r.Handle("/api/marketing/campaigns", bearer(h.CreateCampaign)).Methods(post)
	r.Handle("/api/marketing/campaigns/{id:[0-9]+}", bearer(h.UpdateCampaign)).Methods(put)
	r.Handle("/api/marketing/campaigns/{id:[0-9]+}/status", bearer(h.SetCampaignStatus)).Methods(put)
	r.Handle("/api/subscriptions/plans", bearer(h.ListPlans)).Methods(get)
	r.Handle("/api/subscriptions", bearer(h.ListSubscriptions)).Methods(get)
	r.Handle("/api/subscriptions", bearer(h.Subscribe)).Methods(post)

	r.Handle("/api/referrals", bearer(h.ReferralOverview)).Methods(get)
	r.Handle("/api/referrals/commissions", bearer(h.MyCommissions)).Methods(get)

	// Admin
	r.Handle("/api/admin/users", admin(h.ListUsers)).Methods(get)
	r.Handle("/api/admin/wallet/credit", admin(h.AdminCredit)).Methods(post)
	r.Handle("/api/admin/products", admin(h.AdminListProducts)).Methods(get)
	r.Handle("/api/admin/products", admin(h.CreateProduct)).Methods(post)
	r.Handle("/api/admin/products/{id:[0-9]+}", admin(h.UpdateProduct)).Methods(put)
	r.Handle("/api/admin/products/{id:[0-9]+}/codes", admin(h.AddCodes)).Methods(post)
	r.Handle("/api/admin/gateways", admin(h.ListGateways)).Methods(get)
	r.Handle("/api/admin/gateways/{id:[0-9]+}/status", admin(h.ReviewGateway)).Methods(put)
	r.Handle("/api/admin/domains", admin(h.ListDomains)).Methods(get)
	r.Handle("/api/admin/domains/{id:[0-9]+}/status", admin(h.ReviewDomain)).Methods(put)
	r.Handle("/api/admin/referrals/settings", admin(h.GetReferralSettings)).Methods(get)
	r.Handle("/api/admin/referrals/settings", admin(h.UpdateReferralSettings)).Methods(put)
	r.Handle("/api/admin/referrals/commissions", admin(h.ListCommissions)).Methods(get)
	r.Handle("/api/admin/referrals/commissions/{id:[0-9]+}/complete", admin(h.CompleteCommission)).Methods(post)
	r.Handle("/api/admin/referrals/commissions/{id:[0-9]+}/cancel", admin(h.CancelCommission)).Methods(post)

	// Integrations
	r.Handle("/api/v1/products", apiKey(h.ListProducts)).Methods(get)
	r.Handle("/api/v1/purchase", apiKey(h.Purchase)).Methods(post)
	r.Handle("/api/v1/balance", apiKey(h.GetBalance)).Methods(get)

	return cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-API-Key", "X-API-Secret", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}
