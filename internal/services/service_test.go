package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository/memory"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type published struct {
	Topic   string
	Key     int64
	Type    string
	Payload any
}

// recorder captures published events instead of sending them.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, topic string, key int64, eventType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Topic: topic, Key: key, Type: eventType, Payload: payload})
	return nil
}

func (r *recorder) ofType(eventType string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	store     *memory.Store
	mr        *miniredis.Miniredis
	redis     redis.RedisClient
	publisher *recorder
	tokens    *auth.TokenManager

	auth      *AuthService
	wallet    *WalletService
	purchases *PurchaseService
	payments  *PaymentService
	referrals *ReferralService
	catalog   *CatalogService
	resources *ResourceService
}

const webhookSecret = "whsec"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := memory.NewStore()
	res := memory.NewResources()
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	pub := &recorder{}
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	wallet := NewWalletService(store.Wallet(), store.Users(), rc, pub)
	return &testEnv{
		store:     store,
		mr:        mr,
		redis:     rc,
		publisher: pub,
		tokens:    tokens,
		auth:      NewAuthService(store.Users(), tokens, rc, pub),
		wallet:    wallet,
		purchases: NewPurchaseService(store.Orders(), rc, pub),
		payments: NewPaymentService(store.Payments(), rc, pub, PaymentConfig{
			Gateways:        []string{"stripe", "paypal"},
			WebhookSecret:   webhookSecret,
			AllowSimulation: true,
		}),
		referrals: NewReferralService(store.Referrals(), store.Users(), rc, pub),
		catalog:   NewCatalogService(store.Products(), res.Stores, rc),
		resources: NewResourceService(res, wallet, ResourceConfig{
			DomainFee: decimal.NewFromInt(25),
			Plans: map[string]decimal.Decimal{
				"basic": decimal.NewFromInt(49),
				"pro":   decimal.NewFromInt(99),
			},
		}),
	}
}

// user registers a seller and funds the wallet.
func (e *testEnv) user(t *testing.T, email, balance string) *models.User {
	t.Helper()
	return e.referredUser(t, email, balance, "")
}

func (e *testEnv) referredUser(t *testing.T, email, balance, referralCode string) *models.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.auth.Register(ctx, RegisterInput{
		Name:         "User " + email,
		Email:        email,
		Password:     "password123",
		Role:         models.RoleSeller,
		ReferralCode: referralCode,
	})
	require.NoError(t, err)
	if amount := decimal.RequireFromString(balance); amount.IsPositive() {
		_, err := e.wallet.AdminCredit(ctx, 0, u.ID, amount, "seed")
		require.NoError(t, err)
	}
	return u
}

func (e *testEnv) product(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	ctx := context.Background()
	p, err := e.catalog.CreateProduct(ctx, ProductInput{
		Name:         "Gift card " + price,
		Category:     "gift-cards",
		SellingPrice: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	if stock > 0 {
		codes := make([]models.NewCode, stock)
		for i := range codes {
			codes[i] = models.NewCode{Code: "CODE-" + strconv.FormatInt(p.ID, 10) + "-" + strconv.Itoa(i), SerialNumber: "SN" + strconv.Itoa(i)}
		}
		_, err := e.catalog.AddCodes(ctx, p.ID, codes)
		require.NoError(t, err)
	}
	p, err = e.catalog.GetProduct(ctx, p.ID, true)
	require.NoError(t, err)
	return p
}

func (e *testEnv) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	b, err := e.store.Wallet().GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (e *testEnv) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := e.store.Products().GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.AvailableStock
}

// dispatchOrders feeds recorded order.completed events through a dispatcher
// the way the Kafka consumer does.
func (e *testEnv) dispatchOrders(t *testing.T) {
	t.Helper()
	d := events.NewDispatcher()
	d.On(events.OrderCompleted, e.referrals.HandleOrderCompleted)
	for _, p := range e.publisher.ofType(events.OrderCompleted) {
		evt, err := events.New(p.Type, p.Payload)
		require.NoError(t, err)
		raw, err := json.Marshal(evt)
		require.NoError(t, err)
		require.NoError(t, d.Dispatch(context.Background(), raw))
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }
