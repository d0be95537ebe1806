package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const paymentColumns = `id, user_id, amount, gateway, reference, external_txn_id, status, created_at, confirmed_at`

type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p           models.Payment
		externalID  sql.NullString
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Gateway, &p.Reference, &externalID, &p.Status, &p.CreatedAt, &confirmedAt); err != nil {
		return nil, err
	}
	if externalID.Valid {
		p.ExternalTxnID = &externalID.String
	}
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	return &p, nil
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.Payment) (err error) {
	ctx, finish := observability.Observe(ctx, "payment-repository", "CreatePayment")
	defer func() { finish(err) }()

	if !p.Amount.IsPositive() {
		return pkgerrors.Invalid("amount must be positive")
	}

	p.Status = models.PaymentPending
	query := `INSERT INTO payments (user_id, amount, gateway, reference, status) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, p.UserID, p.Amount, p.Gateway, p.Reference, p.Status).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		slog.Error("failed to create payment", "method", "Create", "user_id", p.UserID, "error", err)
		return fmt.Errorf("failed to create payment: %w", err)
	}

	slog.Info("payment initiated", "method", "Create", "payment_id", p.ID, "user_id", p.UserID, "gateway", p.Gateway, "amount", p.Amount.StringFixed(2))
	return nil
}

func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id int64) (p *models.Payment, err error) {
	ctx, finish := observability.Observe(ctx, "payment-repository", "GetPaymentByID", attribute.Int64("payment_id", id))
	defer func() { finish(err) }()

	p, err = scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func lockPayment(ctx context.Context, tx *sql.Tx, id int64) (*models.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return p, nil
}

// Confirm is idempotent: a payment that is already confirmed is returned
// with Credited false and no ledger entry is written.
func (r *PostgresPaymentRepository) Confirm(ctx context.Context, c models.PaymentConfirmation) (res *models.ConfirmResult, err error) {
	ctx, finish := observability.Observe(ctx, "payment-repository", "ConfirmPayment",
		attribute.Int64("payment_id", c.PaymentID),
		attribute.String("external_txn_id", c.ExternalTxnID),
	)
	defer func() { finish(err) }()

	if c.ExternalTxnID == "" {
		return nil, pkgerrors.Invalid("external transaction id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	p, err := lockPayment(ctx, tx, c.PaymentID)
	if err != nil {
		return nil, rollback(tx, "Confirm", err)
	}

	switch p.Status {
	case models.PaymentConfirmed:
		var balance decimal.Decimal
		if err = tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, p.UserID).Scan(&balance); err != nil {
			return nil, rollback(tx, "Confirm", fmt.Errorf("failed to read balance: %w", err))
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		slog.Info("payment already confirmed", "method", "Confirm", "payment_id", p.ID)
		return &models.ConfirmResult{Payment: p, Credited: false, NewBalance: balance}, nil
	case models.PaymentFailed:
		return nil, rollback(tx, "Confirm", pkgerrors.ErrPaymentFailed)
	}

	if !c.Amount.IsZero() && !c.Amount.Equal(p.Amount) {
		return nil, rollback(tx, "Confirm", pkgerrors.ErrAmountMismatch)
	}

	var confirmedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `UPDATE payments SET status = $1, external_txn_id = $2, confirmed_at = now() WHERE id = $3 RETURNING confirmed_at`,
		models.PaymentConfirmed, c.ExternalTxnID, p.ID).Scan(&confirmedAt)
	if isUniqueViolation(err, "payments_external_txn_id_key") {
		return nil, rollback(tx, "Confirm", pkgerrors.ErrDuplicatePayment)
	}
	if err != nil {
		return nil, rollback(tx, "Confirm", fmt.Errorf("failed to confirm payment: %w", err))
	}

	wt, err := applyEntry(ctx, tx, models.LedgerEntry{
		UserID:      p.UserID,
		Type:        models.TypeDeposit,
		Amount:      p.Amount,
		Reference:   "payment:" + p.Reference,
		Description: fmt.Sprintf("Topup via %s", p.Gateway),
	})
	if err != nil {
		return nil, rollback(tx, "Confirm", err)
	}

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Confirm", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.Status = models.PaymentConfirmed
	p.ExternalTxnID = &c.ExternalTxnID
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	slog.Info("payment confirmed", "method", "Confirm", "payment_id", p.ID, "user_id", p.UserID, "amount", p.Amount.StringFixed(2))
	return &models.ConfirmResult{Payment: p, Credited: true, NewBalance: wt.BalanceAfter}, nil
}

func (r *PostgresPaymentRepository) Decline(ctx context.Context, id int64) (p *models.Payment, err error) {
	ctx, finish := observability.Observe(ctx, "payment-repository", "DeclinePayment", attribute.Int64("payment_id", id))
	defer func() { finish(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	p, err = lockPayment(ctx, tx, id)
	if err != nil {
		return nil, rollback(tx, "Decline", err)
	}
	if p.Status != models.PaymentPending {
		if p.Status == models.PaymentFailed {
			return p, rollback(tx, "Decline", nil)
		}
		return nil, rollback(tx, "Decline", pkgerrors.ErrInvalidTransition)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE payments SET status = $1 WHERE id = $2`, models.PaymentFailed, id); err != nil {
		return nil, rollback(tx, "Decline", fmt.Errorf("failed to decline payment: %w", err))
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.Status = models.PaymentFailed
	slog.Info("payment declined", "method", "Decline", "payment_id", id, "user_id", p.UserID)
	return p, nil
}
