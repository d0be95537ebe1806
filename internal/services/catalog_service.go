package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const catalogTTL = time.Minute

const maxCodesPerUpload = 10000

type ProductInput struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

type CodeUploadResult struct {
	ProductID      int64 `json:"product_id"`
	Added          int   `json:"added"`
	AvailableStock int   `json:"available_stock"`
}

// Storefront is a seller's public store with the products it sells.
type Storefront struct {
	Store    *models.Store    `json:"store"`
	Products []models.Product `json:"products"`
}

type CatalogService struct {
	products    repository.ProductRepository
	stores      repository.ResourceRepository[models.Store]
	redisClient redis.RedisClient
}

func NewCatalogService(products repository.ProductRepository, stores repository.ResourceRepository[models.Store], redisClient redis.RedisClient) *CatalogService {
	return &CatalogService{
		products:    products,
		stores:      stores,
		redisClient: redisClient,
	}
}

// activeProducts serves the public catalog, cached as a whole.
func (s *CatalogService) activeProducts(ctx context.Context) ([]models.Product, error) {
	var cached []models.Product
	gen, err := redis.GetVersionedJSON(ctx, s.redisClient, catalogKey, &cached)
	if err == nil {
		return cached, nil
	}
	cacheable := stderrors.Is(err, redis.ErrKeyNotFound)
	if !cacheable {
		slog.Error("failed to read cached catalog", "error", err)
	}

	products, err := s.products.List(ctx, repository.ProductFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	if cacheable {
		if err := redis.SetVersionedJSON(ctx, s.redisClient, catalogKey, gen, products, catalogTTL); err != nil {
			slog.Error("failed to cache catalog", "error", err)
		}
	}
	return products, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, category string) ([]models.Product, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "ListProducts")
	defer span.End()

	products, err := s.activeProducts(ctx)
	if err != nil {
		return nil, fail(span, err, "list products failed")
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return products, nil
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out, nil
}

// AdminListProducts includes inactive products.
func (s *CatalogService) AdminListProducts(ctx context.Context) ([]models.Product, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "AdminListProducts")
	defer span.End()

	products, err := s.products.List(ctx, repository.ProductFilter{})
	if err != nil {
		return nil, fail(span, err, "list products failed")
	}
	return products, nil
}

// GetProduct hides inactive products from everyone but admins.
func (s *CatalogService) GetProduct(ctx context.Context, id int64, includeInactive bool) (*models.Product, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "GetProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", id))

	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, fail(span, err, "get product failed")
	}
	if !p.IsActive && !includeInactive {
		span.SetStatus(codes.Error, "inactive product")
		return nil, pkgerrors.ErrProductNotFound
	}
	return p, nil
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return pkgerrors.Invalid("name is required")
	}
	if strings.TrimSpace(in.Category) == "" {
		return pkgerrors.Invalid("category is required")
	}
	if !in.SellingPrice.IsPositive() {
		return pkgerrors.Invalid("selling_price must be positive")
	}
	if in.SellingPrice.Exponent() < -2 {
		return pkgerrors.Invalid("selling_price has more than two decimal places")
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "CreateProduct")
	defer span.End()

	if err := in.validate(); err != nil {
		span.SetStatus(codes.Error, "invalid product")
		return nil, err
	}
	p := &models.Product{
		Name:         strings.TrimSpace(in.Name),
		Category:     strings.TrimSpace(in.Category),
		Description:  in.Description,
		SellingPrice: in.SellingPrice,
		IsActive:     in.IsActive == nil || *in.IsActive,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, fail(span, err, "create product failed")
	}
	expire(ctx, s.redisClient, catalogKey)

	slog.Info("product created", "product_id", p.ID, "name", p.Name, "price", p.SellingPrice.String())
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*models.Product, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "UpdateProduct")
	defer span.End()

	if err := in.validate(); err != nil {
		span.SetStatus(codes.Error, "invalid product")
		return nil, err
	}
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, fail(span, err, "get product failed")
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Category = strings.TrimSpace(in.Category)
	p.Description = in.Description
	p.SellingPrice = in.SellingPrice
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.products.Update(ctx, p); err != nil {
		return nil, fail(span, err, "update product failed")
	}
	expire(ctx, s.redisClient, catalogKey)

	slog.Info("product updated", "product_id", p.ID, "active", p.IsActive)
	return p, nil
}

// AddCodes stocks a product. Blank and repeated codes in the batch are
// dropped before they reach storage.
func (s *CatalogService) AddCodes(ctx context.Context, productID int64, upload []models.NewCode) (*CodeUploadResult, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "AddCodes")
	defer span.End()
	span.SetAttributes(attribute.Int64("product_id", productID), attribute.Int("codes", len(upload)))

	if len(upload) == 0 {
		span.SetStatus(codes.Error, "empty batch")
		return nil, pkgerrors.Invalid("at least one code is required")
	}
	if len(upload) > maxCodesPerUpload {
		span.SetStatus(codes.Error, "batch too large")
		return nil, pkgerrors.Invalid("at most %d codes per upload", maxCodesPerUpload)
	}

	seen := make(map[string]struct{}, len(upload))
	batch := make([]models.NewCode, 0, len(upload))
	for _, c := range upload {
		c.Code = strings.TrimSpace(c.Code)
		c.SerialNumber = strings.TrimSpace(c.SerialNumber)
		if c.Code == "" {
			continue
		}
		if _, dup := seen[c.Code]; dup {
			continue
		}
		seen[c.Code] = struct{}{}
		batch = append(batch, c)
	}
	if len(batch) == 0 {
		span.SetStatus(codes.Error, "only blank codes")
		return nil, pkgerrors.Invalid("all codes are blank")
	}

	added, stock, err := s.products.AddCodes(ctx, productID, batch)
	if err != nil {
		return nil, fail(span, err, "add codes failed")
	}
	expire(ctx, s.redisClient, catalogKey)

	slog.Info("codes added", "product_id", productID, "added", added, "available_stock", stock)
	return &CodeUploadResult{ProductID: productID, Added: added, AvailableStock: stock}, nil
}

// Storefront resolves an active store by slug.
func (s *CatalogService) Storefront(ctx context.Context, slug string) (*Storefront, error) {
	tracer := otel.Tracer("catalog-service")
	ctx, span := tracer.Start(ctx, "Storefront")
	defer span.End()

	store, err := s.stores.GetByKey(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, fail(span, err, "store lookup failed")
	}
	if store.Status != models.StatusActive {
		span.SetStatus(codes.Error, "store paused")
		return nil, pkgerrors.ErrResourceNotFound
	}
	products, err := s.activeProducts(ctx)
	if err != nil {
		return nil, fail(span, err, "list products failed")
	}
	return &Storefront{Store: store, Products: products}, nil
}
