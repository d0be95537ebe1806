package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetAPICredentials(ctx context.Context, userID int64, apiKey, secretHash string) error
	List(ctx context.Context, page Page) ([]models.User, int, error)
	ListReferrals(ctx context.Context, referrerID int64) ([]models.Referral, error)
}

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewPage converts 1-based page numbers into a window, clamping bad input.
func NewPage(page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Page{Limit: pageSize, Offset: (page - 1) * pageSize}
}
