package service

import (
	"context"
	"sync"
	"testing"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_Products(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	card := env.product(t, "40", 3)
	game, err := env.catalog.CreateProduct(ctx, ProductInput{Name: "Game key", Category: "games", SellingPrice: decimalOf("15")})
	require.NoError(t, err)

	all, err := env.catalog.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, env.mr.Exists(catalogKey))

	games, err := env.catalog.ListProducts(ctx, "GAMES")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, game.ID, games[0].ID)

	off := false
	_, err = env.catalog.UpdateProduct(ctx, game.ID, ProductInput{Name: "Game key", Category: "games", SellingPrice: decimalOf("15"), IsActive: &off})
	require.NoError(t, err)
	assert.False(t, env.mr.Exists(catalogKey))

	active, err := env.catalog.ListProducts(ctx, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, card.ID, active[0].ID)

	_, err = env.catalog.GetProduct(ctx, game.ID, false)
	assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
	hidden, err := env.catalog.GetProduct(ctx, game.ID, true)
	require.NoError(t, err)
	assert.False(t, hidden.IsActive)

	everything, err := env.catalog.AdminListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, everything, 2)
}

func TestCatalogService_CreateProductValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	cases := []ProductInput{
		{Category: "x", SellingPrice: decimalOf("1")},
		{Name: "x", SellingPrice: decimalOf("1")},
		{Name: "x", Category: "x", SellingPrice: decimalOf("0")},
		{Name: "x", Category: "x", SellingPrice: decimalOf("0.001")},
	}
	for _, in := range cases {
		_, err := env.catalog.CreateProduct(ctx, in)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	}
}

func TestCatalogService_AddCodes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.product(t, "5", 0)

	res, err := env.catalog.AddCodes(ctx, p.ID, []models.NewCode{
		{Code: "A"}, {Code: " A "}, {Code: ""}, {Code: "B", SerialNumber: "SN-B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.AvailableStock)

	// Codes already stocked are skipped.
	res, err = env.catalog.AddCodes(ctx, p.ID, []models.NewCode{{Code: "B"}, {Code: "C"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 3, res.AvailableStock)
	assert.Equal(t, 3, env.store.AvailableCodes(p.ID))

	_, err = env.catalog.AddCodes(ctx, p.ID, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = env.catalog.AddCodes(ctx, 999, []models.NewCode{{Code: "Z"}})
	assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
}

func TestCatalogService_Storefront(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seller := env.user(t, "seller@example.com", "0")
	env.product(t, "40", 1)

	store, err := env.resources.CreateStore(ctx, seller.ID, StoreInput{Name: "My Shop", Slug: "My-Shop"})
	require.NoError(t, err)
	assert.Equal(t, "my-shop", store.Slug)

	front, err := env.catalog.Storefront(ctx, "my-shop")
	require.NoError(t, err)
	assert.Equal(t, store.ID, front.Store.ID)
	assert.Len(t, front.Products, 1)

	_, err = env.resources.SetStoreStatus(ctx, Actor{UserID: seller.ID}, store.ID, models.StatusPaused)
	require.NoError(t, err)
	_, err = env.catalog.Storefront(ctx, "my-shop")
	assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)

	_, err = env.catalog.Storefront(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)
}

type pausingProducts struct {
	repository.ProductRepository
	once   sync.Once
	loaded chan struct{}
	resume chan struct{}
}

func (p *pausingProducts) List(ctx context.Context, filter repository.ProductFilter) ([]models.Product, error) {
	out, err := p.ProductRepository.List(ctx, filter)
	p.once.Do(func() {
		close(p.loaded)
		<-p.resume
	})
	return out, err
}

func TestCatalogService_ListRacingPurchase(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	buyer := env.user(t, "buyer@example.com", "100")
	product := env.product(t, "40", 2)

	repo := &pausingProducts{ProductRepository: env.store.Products(), loaded: make(chan struct{}), resume: make(chan struct{})}
	slow := NewCatalogService(repo, nil, env.redis)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := slow.ListProducts(ctx, "")
		assert.NoError(t, err)
	}()

	<-repo.loaded
	_, err := env.purchases.Purchase(ctx, buyer.ID, product.ID, 1, "")
	require.NoError(t, err)
	close(repo.resume)
	<-done

	products, err := env.catalog.ListProducts(ctx, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 1, products[0].AvailableStock)
}
