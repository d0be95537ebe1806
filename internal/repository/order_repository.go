package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type OrderRepository interface {
	// Purchase debits the buyer, allocates codes and records the order as
	// one atomic unit. Nothing is written when it fails.
	Purchase(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error)
	GetByID(ctx context.Context, userID, orderID int64) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64, page Page) ([]models.Order, int, error)
}
