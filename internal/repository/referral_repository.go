package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type CommissionFilter struct {
	ReferrerID *int64
	Status     models.CommissionStatus
}

type ReferralRepository interface {
	GetSettings(ctx context.Context) (*models.ReferralSettings, error)
	UpdateSettings(ctx context.Context, settings *models.ReferralSettings) error
	// CreateCommission reports false when the order already has one.
	CreateCommission(ctx context.Context, c *models.Commission) (bool, error)
	ListCommissions(ctx context.Context, filter CommissionFilter) ([]models.Commission, error)
	// Resolve moves a pending commission to completed or cancelled. Completing
	// credits the referrer in the same transaction.
	Resolve(ctx context.Context, id int64, to models.CommissionStatus) (*models.Commission, *models.WalletTransaction, error)
}
