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
	"go.opentelemetry.io/otel/attribute"
)

const commissionColumns = `id, referrer_id, referred_user_id, order_id, order_amount, commission_amount, status, created_at, resolved_at`

type PostgresReferralRepository struct {
	db *sql.DB
}

func NewPostgresReferralRepository(db *sql.DB) *PostgresReferralRepository {
	return &PostgresReferralRepository{db: db}
}

func scanCommission(row rowScanner) (*models.Commission, error) {
	var (
		c          models.Commission
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.ReferrerID, &c.ReferredUserID, &c.OrderID, &c.OrderAmount, &c.CommissionAmount, &c.Status, &c.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}

func (r *PostgresReferralRepository) GetSettings(ctx context.Context) (s *models.ReferralSettings, err error) {
	ctx, finish := observability.Observe(ctx, "referral-repository", "GetReferralSettings")
	defer func() { finish(err) }()

	s = &models.ReferralSettings{}
	err = r.db.QueryRowContext(ctx, `SELECT commission_type, commission_value, is_enabled, min_order_amount, updated_at FROM referral_settings WHERE id = 1`).
		Scan(&s.CommissionType, &s.CommissionValue, &s.IsEnabled, &s.MinOrderAmount, &s.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		// no row means the program was never configured
		return &models.ReferralSettings{CommissionType: models.CommissionPercentage}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral settings: %w", err)
	}
	return s, nil
}

func (r *PostgresReferralRepository) UpdateSettings(ctx context.Context, s *models.ReferralSettings) (err error) {
	ctx, finish := observability.Observe(ctx, "referral-repository", "UpdateReferralSettings")
	defer func() { finish(err) }()

	query := `INSERT INTO referral_settings (id, commission_type, commission_value, is_enabled, min_order_amount, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET commission_type = EXCLUDED.commission_type, commission_value = EXCLUDED.commission_value,
			is_enabled = EXCLUDED.is_enabled, min_order_amount = EXCLUDED.min_order_amount, updated_at = EXCLUDED.updated_at
		RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query, s.CommissionType, s.CommissionValue, s.IsEnabled, s.MinOrderAmount).Scan(&s.UpdatedAt)
	if err != nil {
		slog.Error("failed to update referral settings", "method", "UpdateSettings", "error", err)
		return fmt.Errorf("failed to update referral settings: %w", err)
	}
	slog.Info("referral settings updated", "method", "UpdateSettings", "type", s.CommissionType, "value", s.CommissionValue.String(), "enabled", s.IsEnabled)
	return nil
}

// CreateCommission relies on the unique order_id so that replayed events
// never produce a second commission.
func (r *PostgresReferralRepository) CreateCommission(ctx context.Context, c *models.Commission) (created bool, err error) {
	ctx, finish := observability.Observe(ctx, "referral-repository", "CreateCommission", attribute.Int64("order_id", c.OrderID))
	defer func() { finish(err) }()

	c.Status = models.CommissionPending
	query := `INSERT INTO referral_commissions (referrer_id, referred_user_id, order_id, order_amount, commission_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, c.ReferrerID, c.ReferredUserID, c.OrderID, c.OrderAmount, c.CommissionAmount, c.Status).
		Scan(&c.ID, &c.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Info("commission already recorded", "method", "CreateCommission", "order_id", c.OrderID)
		return false, nil
	}
	if err != nil {
		slog.Error("failed to create commission", "method", "CreateCommission", "order_id", c.OrderID, "error", err)
		return false, fmt.Errorf("failed to create commission: %w", err)
	}

	slog.Info("commission recorded", "method", "CreateCommission", "commission_id", c.ID, "referrer_id", c.ReferrerID, "order_id", c.OrderID, "amount", c.CommissionAmount.StringFixed(2))
	return true, nil
}

func (r *PostgresReferralRepository) ListCommissions(ctx context.Context, filter repository.CommissionFilter) (out []models.Commission, err error) {
	ctx, finish := observability.Observe(ctx, "referral-repository", "ListCommissions")
	defer func() { finish(err) }()

	var referrer sql.NullInt64
	if filter.ReferrerID != nil {
		referrer = sql.NullInt64{Int64: *filter.ReferrerID, Valid: true}
	}
	query := `SELECT ` + commissionColumns + ` FROM referral_commissions
		WHERE ($1::BIGINT IS NULL OR referrer_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, referrer, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commission: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresReferralRepository) Resolve(ctx context.Context, id int64, to models.CommissionStatus) (c *models.Commission, wt *models.WalletTransaction, err error) {
	ctx, finish := observability.Observe(ctx, "referral-repository", "ResolveCommission",
		attribute.Int64("commission_id", id),
		attribute.String("status", string(to)),
	)
	defer func() { finish(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	c, err = scanCommission(tx.QueryRowContext(ctx, `SELECT `+commissionColumns+` FROM referral_commissions WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil, rollback(tx, "Resolve", pkgerrors.ErrCommissionNotFound)
	}
	if err != nil {
		return nil, nil, rollback(tx, "Resolve", fmt.Errorf("failed to lock commission: %w", err))
	}
	if !c.Status.CanTransition(to) {
		return nil, nil, rollback(tx, "Resolve", fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidTransition, c.Status, to))
	}

	var resolvedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `UPDATE referral_commissions SET status = $1, resolved_at = now() WHERE id = $2 RETURNING resolved_at`, to, id).Scan(&resolvedAt)
	if err != nil {
		return nil, nil, rollback(tx, "Resolve", fmt.Errorf("failed to update commission: %w", err))
	}

	if to == models.CommissionCompleted && c.CommissionAmount.IsPositive() {
		wt, err = applyEntry(ctx, tx, models.LedgerEntry{
			UserID:      c.ReferrerID,
			Type:        models.TypeDeposit,
			Amount:      c.CommissionAmount,
			Reference:   fmt.Sprintf("commission:%d", c.ID),
			Description: fmt.Sprintf("Referral commission for order %d", c.OrderID),
		})
		if err != nil {
			return nil, nil, rollback(tx, "Resolve", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.Status = to
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	slog.Info("commission resolved", "method", "Resolve", "commission_id", id, "status", to, "referrer_id", c.ReferrerID)
	return c, wt, nil
}
