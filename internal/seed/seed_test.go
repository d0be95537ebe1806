package seed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository/memory"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalog = `
users:
  - name: Admin
    email: admin@example.com
    password: change-me-please
    role: admin
  - name: Demo Seller
    email: seller@example.com
    password: password123
    balance: 1000
products:
  - name: Steam Wallet 40
    category: gift-cards
    price: 40
    codes:
      - code: STEAM-AAAA
        serial_number: SN-1
      - code: STEAM-BBBB
  - name: Hidden
    category: misc
    price: "9.99"
    active: false
referral:
  type: fixed
  value: 3
  enabled: true
  min_order_amount: 20
`

func newSeeder(t *testing.T) (*Seeder, *memory.Store, *service.ReferralService) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	store := memory.NewStore()
	res := memory.NewResources()
	authSvc := service.NewAuthService(store.Users(), auth.NewTokenManager("secret", time.Hour), rc, nil)
	wallet := service.NewWalletService(store.Wallet(), store.Users(), rc, nil)
	catalogSvc := service.NewCatalogService(store.Products(), res.Stores, rc)
	referrals := service.NewReferralService(store.Referrals(), store.Users(), rc, nil)
	return NewSeeder(authSvc, wallet, catalogSvc, referrals), store, referrals
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(catalog))
	require.NoError(t, err)
	require.Len(t, f.Users, 2)
	assert.Equal(t, models.RoleAdmin, f.Users[0].Role)
	assert.Equal(t, "1000", f.Users[1].Balance.String())
	require.Len(t, f.Products, 2)
	assert.Equal(t, "9.99", f.Products[1].Price.String())
	require.NotNil(t, f.Products[1].Active)
	assert.False(t, *f.Products[1].Active)
	assert.Equal(t, "SN-1", f.Products[0].Codes[0].SerialNumber)
	require.NotNil(t, f.Referral)
	assert.Equal(t, models.CommissionFixed, f.Referral.Settings().CommissionType)

	_, err = Parse([]byte("users: ["))
	assert.Error(t, err)
}

func TestSeeder_ApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	seeder, store, referrals := newSeeder(t)
	f, err := Parse([]byte(catalog))
	require.NoError(t, err)

	report, err := seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, report.UsersCreated)
	assert.Equal(t, 2, report.ProductsCreated)
	assert.Equal(t, 2, report.CodesAdded)

	seller, err := store.Users().GetByEmail(ctx, "seller@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", seller.Balance.StringFixed(2))

	settings, err := referrals.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionFixed, settings.CommissionType)
	assert.Equal(t, "20", settings.MinOrderAmount.String())

	again, err := seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 0, again.UsersCreated)
	assert.Equal(t, 0, again.ProductsCreated)
	assert.Equal(t, 0, again.CodesAdded)

	seller, err = store.Users().GetByEmail(ctx, "seller@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", seller.Balance.StringFixed(2))
}

func TestSeeder_InvalidProduct(t *testing.T) {
	seeder, _, _ := newSeeder(t)
	f, err := Parse([]byte("products:\n  - name: Free\n    category: x\n    price: 0\n"))
	require.NoError(t, err)

	_, err = seeder.Apply(context.Background(), f)
	assert.Error(t, err)
}
