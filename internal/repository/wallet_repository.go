package repository

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/shopspring/decimal"
)

type WalletRepository interface {
	// Apply moves the balance by entry.Amount and appends the transaction.
	// A result below zero fails with ErrInsufficientFunds.
	Apply(ctx context.Context, entry models.LedgerEntry) (*models.WalletTransaction, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID int64, page Page) ([]models.WalletTransaction, int, error)
}
