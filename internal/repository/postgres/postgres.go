// Package postgres implements the repositories on PostgreSQL. Money-moving
// operations run in a single transaction that locks the affected rows.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// rollback aborts tx and returns err, annotated if the rollback also failed.
func rollback(tx *sql.Tx, method string, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
	}
	return err
}

// lockBalance takes the row lock that serializes all balance changes of a user.
func lockBalance(ctx context.Context, tx *sql.Tx, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if stderrors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock balance: %w", err)
	}
	return balance, nil
}

// writeEntry applies entry on top of a balance already locked by lockBalance.
func writeEntry(ctx context.Context, tx *sql.Tx, balance decimal.Decimal, entry models.LedgerEntry) (*models.WalletTransaction, error) {
	newBalance := balance.Add(entry.Amount)
	if newBalance.IsNegative() {
		return nil, pkgerrors.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET balance = $1 WHERE id = $2`, newBalance, entry.UserID); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	wt := &models.WalletTransaction{
		UserID:       entry.UserID,
		Type:         entry.Type,
		Amount:       entry.Amount,
		BalanceAfter: newBalance,
		Reference:    entry.Reference,
		Description:  entry.Description,
	}
	query := `INSERT INTO wallet_transactions (user_id, type, amount, balance_after, reference, description) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, query, wt.UserID, wt.Type, wt.Amount, wt.BalanceAfter, wt.Reference, wt.Description).Scan(&wt.ID, &wt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet transaction: %w", err)
	}
	return wt, nil
}

func applyEntry(ctx context.Context, tx *sql.Tx, entry models.LedgerEntry) (*models.WalletTransaction, error) {
	balance, err := lockBalance(ctx, tx, entry.UserID)
	if err != nil {
		return nil, err
	}
	return writeEntry(ctx, tx, balance, entry)
}

func validateEntry(entry models.LedgerEntry) error {
	if !entry.Type.Valid() {
		return pkgerrors.ErrInvalidTransactionType
	}
	if entry.Amount.IsZero() {
		return pkgerrors.Invalid("amount must not be zero")
	}
	if entry.Type.IsCredit() != entry.Amount.IsPositive() {
		return pkgerrors.Invalid("amount sign does not match %s", entry.Type)
	}
	return nil
}
