package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresWalletRepository struct {
	db *sql.DB
}

func NewPostgresWalletRepository(db *sql.DB) *PostgresWalletRepository {
	return &PostgresWalletRepository{db: db}
}

func (r *PostgresWalletRepository) Apply(ctx context.Context, entry models.LedgerEntry) (wt *models.WalletTransaction, err error) {
	ctx, finish := observability.Observe(ctx, "wallet-repository", "ApplyEntry",
		attribute.Int64("user_id", entry.UserID),
		attribute.String("type", string(entry.Type)),
		attribute.String("amount", entry.Amount.String()),
	)
	defer func() { finish(err) }()

	if err = validateEntry(entry); err != nil {
		slog.Error("invalid ledger entry", "method", "Apply", "user_id", entry.UserID, "type", entry.Type, "error", err)
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Apply", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	wt, err = applyEntry(ctx, tx, entry)
	if err != nil {
		return nil, rollback(tx, "Apply", err)
	}

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Apply", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("ledger entry applied", "method", "Apply", "transaction_id", wt.ID, "user_id", wt.UserID, "type", wt.Type, "amount", wt.Amount.StringFixed(2), "balance_after", wt.BalanceAfter.StringFixed(2))
	return wt, nil
}

func (r *PostgresWalletRepository) GetBalance(ctx context.Context, userID int64) (balance decimal.Decimal, err error) {
	ctx, finish := observability.Observe(ctx, "wallet-repository", "GetBalance", attribute.Int64("user_id", userID))
	defer func() { finish(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("user not found", "method", "GetBalance", "user_id", userID)
		return decimal.Zero, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to get balance", "method", "GetBalance", "user_id", userID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (r *PostgresWalletRepository) ListTransactions(ctx context.Context, userID int64, page repository.Page) (txs []models.WalletTransaction, total int, err error) {
	ctx, finish := observability.Observe(ctx, "wallet-repository", "ListTransactions", attribute.Int64("user_id", userID))
	defer func() { finish(err) }()

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT id, user_id, type, amount, balance_after, reference, description, created_at FROM wallet_transactions WHERE user_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wt models.WalletTransaction
		if err := rows.Scan(&wt.ID, &wt.UserID, &wt.Type, &wt.Amount, &wt.BalanceAfter, &wt.Reference, &wt.Description, &wt.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, wt)
	}
	return txs, total, rows.Err()
}
