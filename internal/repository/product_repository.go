package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type ProductFilter struct {
	Category   string
	ActiveOnly bool
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	// AddCodes stocks new codes and returns the resulting available stock.
	// Codes already present for the product are skipped.
	AddCodes(ctx context.Context, productID int64, codes []models.NewCode) (added int, stock int, err error)
}
