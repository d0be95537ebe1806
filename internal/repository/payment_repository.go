package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	// Confirm credits the wallet at most once per payment.
	Confirm(ctx context.Context, c models.PaymentConfirmation) (*models.ConfirmResult, error)
	Decline(ctx context.Context, id int64) (*models.Payment, error)
}
