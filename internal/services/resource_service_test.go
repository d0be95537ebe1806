package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	"github.com/honeynil/ResaleServiceTochka/internal/repository/memory"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceService_Gateways(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seller := env.user(t, "s@example.com", "0")
	other := env.user(t, "o@example.com", "0")

	app, err := env.resources.ApplyGateway(ctx, seller.ID, GatewayInput{GatewayName: "stripe", BusinessName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, app.Status)

	_, err = env.resources.ApplyGateway(ctx, seller.ID, GatewayInput{})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	mine, err := env.resources.ListGateways(ctx, Actor{UserID: seller.ID}, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	theirs, err := env.resources.ListGateways(ctx, Actor{UserID: other.ID}, "")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = env.resources.ReviewGateway(ctx, app.ID, models.StatusPaused, "")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	approved, err := env.resources.ReviewGateway(ctx, app.ID, models.StatusApproved, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, "looks good", approved.AdminNote)

	_, err = env.resources.ReviewGateway(ctx, app.ID, models.StatusRejected, "")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	pending, err := env.resources.ListGateways(ctx, Actor{Admin: true}, models.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// flakyDeposits fails every credit while fail is set.
type flakyDeposits struct {
	repository.WalletRepository
	fail bool
}

func (w *flakyDeposits) Apply(ctx context.Context, entry models.LedgerEntry) (*models.WalletTransaction, error) {
	if w.fail && entry.Type.IsCredit() {
		return nil, errors.New("ledger unavailable")
	}
	return w.WalletRepository.Apply(ctx, entry)
}

type stuckDeletes struct {
	repository.ResourceRepository[models.Domain]
}

func (stuckDeletes) Delete(context.Context, int64) error {
	return errors.New("connection reset")
}

func TestResourceService_Domains(t *testing.T) {
	ctx := context.Background()

	t.Run("fee charged and refunded on rejection", func(t *testing.T) {
		env := newTestEnv(t)
		seller := env.user(t, "s@example.com", "100")

		d, err := env.resources.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: "Shop.Example.com"})
		require.NoError(t, err)
		assert.Equal(t, "shop.example.com", d.DomainName)
		assert.Equal(t, models.StatusPending, d.Status)
		assert.Equal(t, "75.00", env.balance(t, seller.ID).StringFixed(2))

		_, err = env.resources.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: "shop.example.com"})
		assert.ErrorIs(t, err, pkgerrors.ErrSlugExists)
		assert.Equal(t, "75.00", env.balance(t, seller.ID).StringFixed(2))

		rejected, err := env.resources.ReviewDomain(ctx, d.ID, models.StatusRejected, "trademark")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Equal(t, "100.00", env.balance(t, seller.ID).StringFixed(2))

		// A second review cannot refund twice.
		_, err = env.resources.ReviewDomain(ctx, d.ID, models.StatusRejected, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		assert.Equal(t, "100.00", env.balance(t, seller.ID).StringFixed(2))
	})

	t.Run("unpaid registration is removed", func(t *testing.T) {
		env := newTestEnv(t)
		seller := env.user(t, "s@example.com", "10")

		_, err := env.resources.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: "poor.example.com"})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

		domains, err := env.resources.ListDomains(ctx, Actor{UserID: seller.ID}, "")
		require.NoError(t, err)
		assert.Empty(t, domains)
	})

	t.Run("failed refund keeps the domain open", func(t *testing.T) {
		env := newTestEnv(t)
		seller := env.user(t, "s@example.com", "100")
		ledger := &flakyDeposits{WalletRepository: env.store.Wallet()}
		res := memory.NewResources()
		svc := NewResourceService(res, NewWalletService(ledger, env.store.Users(), env.redis, nil), ResourceConfig{DomainFee: decimalOf("25")})

		d, err := svc.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: "shop.example.com"})
		require.NoError(t, err)
		assert.Equal(t, "75.00", env.balance(t, seller.ID).StringFixed(2))

		ledger.fail = true
		_, err = svc.ReviewDomain(ctx, d.ID, models.StatusRejected, "trademark")
		require.Error(t, err)
		got, err := res.Domains.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, "75.00", env.balance(t, seller.ID).StringFixed(2))

		ledger.fail = false
		rejected, err := svc.ReviewDomain(ctx, d.ID, models.StatusRejected, "trademark")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Equal(t, "trademark", rejected.AdminNote)
		assert.Equal(t, "100.00", env.balance(t, seller.ID).StringFixed(2))
	})

	t.Run("unpaid registration that cannot be removed is closed without a fee", func(t *testing.T) {
		env := newTestEnv(t)
		seller := env.user(t, "s@example.com", "10")
		res := memory.NewResources()
		res.Domains = stuckDeletes{res.Domains}
		svc := NewResourceService(res, env.wallet, ResourceConfig{DomainFee: decimalOf("25")})

		_, err := svc.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: "poor.example.com"})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

		domains, err := svc.ListDomains(ctx, Actor{Admin: true}, "")
		require.NoError(t, err)
		require.Len(t, domains, 1)
		assert.Equal(t, models.StatusRejected, domains[0].Status)
		assert.True(t, domains[0].Fee.IsZero())

		_, err = svc.ReviewDomain(ctx, domains[0].ID, models.StatusRejected, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		assert.Equal(t, "10.00", env.balance(t, seller.ID).StringFixed(2))
	})

	t.Run("invalid names and foreign stores", func(t *testing.T) {
		env := newTestEnv(t)
		seller := env.user(t, "s@example.com", "100")
		other := env.user(t, "o@example.com", "0")
		store, err := env.resources.CreateStore(ctx, other.ID, StoreInput{Name: "Other", Slug: "other"})
		require.NoError(t, err)

		for _, name := range []string{"", "localhost", "-bad.com", "spaces in.com"} {
			_, err := env.resources.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: name})
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput, name)
		}
		_, err = env.resources.RegisterDomain(ctx, seller.ID, DomainInput{DomainName: "mine.example.com", StoreID: &store.ID})
		assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)
		assert.Equal(t, "100.00", env.balance(t, seller.ID).StringFixed(2))
	})
}

func TestResourceService_Stores(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com", "0")
	other := env.user(t, "other@example.com", "0")

	st, err := env.resources.CreateStore(ctx, owner.ID, StoreInput{Name: "Shop", Slug: "shop"})
	require.NoError(t, err)

	_, err = env.resources.CreateStore(ctx, other.ID, StoreInput{Name: "Copy", Slug: "shop"})
	assert.ErrorIs(t, err, pkgerrors.ErrSlugExists)

	_, err = env.resources.CreateStore(ctx, owner.ID, StoreInput{Name: "Bad", Slug: "x"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = env.resources.UpdateStore(ctx, Actor{UserID: other.ID}, st.ID, StoreInput{Name: "Hijack", Slug: "hijack"})
	assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)

	updated, err := env.resources.UpdateStore(ctx, Actor{UserID: owner.ID}, st.ID, StoreInput{Name: "Shop 2", Slug: "shop-2", Theme: "dark"})
	require.NoError(t, err)
	assert.Equal(t, "shop-2", updated.Slug)

	_, err = env.resources.SetStoreStatus(ctx, Actor{UserID: owner.ID}, st.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	paused, err := env.resources.SetStoreStatus(ctx, Actor{UserID: owner.ID}, st.ID, models.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, paused.Status)

	active, err := env.resources.SetStoreStatus(ctx, Actor{Admin: true}, st.ID, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, active.Status)

	stores, err := env.resources.ListStores(ctx, Actor{UserID: owner.ID})
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestResourceService_Campaigns(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com", "0")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := env.resources.CreateCampaign(ctx, owner.ID, CampaignInput{Name: "Sale", StartsAt: &start, EndsAt: &end})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = env.resources.CreateCampaign(ctx, owner.ID, CampaignInput{Name: "Sale", Budget: decimalOf("-1")})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	c, err := env.resources.CreateCampaign(ctx, owner.ID, CampaignInput{Name: "Sale", Channel: "email", Budget: decimalOf("300")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, c.Status)

	c, err = env.resources.SetCampaignStatus(ctx, Actor{UserID: owner.ID}, c.ID, models.StatusPaused)
	require.NoError(t, err)
	c, err = env.resources.SetCampaignStatus(ctx, Actor{UserID: owner.ID}, c.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, c.Status)

	_, err = env.resources.SetCampaignStatus(ctx, Actor{UserID: owner.ID}, c.ID, models.StatusActive)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	_, err = env.resources.UpdateCampaign(ctx, Actor{UserID: owner.ID}, c.ID, CampaignInput{Name: "Sale 2"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	list, err := env.resources.ListCampaigns(ctx, Actor{UserID: owner.ID}, models.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResourceService_Subscribe(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, "sub@example.com", "100")

	plans := env.resources.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, "basic", plans[0].Name)

	sub, err := env.resources.Subscribe(ctx, u.ID, "Basic")
	require.NoError(t, err)
	assert.Equal(t, "basic", sub.Plan)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.True(t, sub.ExpiresAt.After(time.Now().Add(29*24*time.Hour)))
	assert.Equal(t, "51.00", env.balance(t, u.ID).StringFixed(2))

	_, err = env.resources.Subscribe(ctx, u.ID, "pro")
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	_, err = env.resources.Subscribe(ctx, u.ID, "enterprise")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	subs, err := env.resources.ListSubscriptions(ctx, Actor{UserID: u.ID})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
