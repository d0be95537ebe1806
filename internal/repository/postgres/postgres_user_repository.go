package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const userColumns = `id, name, email, password_hash, role, balance, api_key, api_secret_hash, referral_code, referred_by, created_at`

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u          models.User
		apiKey     sql.NullString
		referredBy sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Balance, &apiKey, &u.APISecretHash, &u.ReferralCode, &referredBy, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if apiKey.Valid {
		u.APIKey = &apiKey.String
	}
	if referredBy.Valid {
		u.ReferredBy = &referredBy.Int64
	}
	return &u, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, finish := observability.Observe(ctx, "user-repository", "CreateUser")
	defer func() { finish(err) }()

	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Email == "" || user.PasswordHash == "" {
		return pkgerrors.Invalid("email and password are required")
	}

	query := `INSERT INTO users (name, email, password_hash, role, balance, referral_code, referred_by) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query,
		user.Name,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.Role,
		user.Balance,
		user.ReferralCode,
		user.ReferredBy,
	).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err, "users_email_key") {
		return pkgerrors.ErrEmailExists
	}
	if isUniqueViolation(err, "") {
		return fmt.Errorf("%w: %v", pkgerrors.ErrUserAlreadyExists, err)
	}
	if err != nil {
		slog.Error("failed to create user", "method", "Create", "email", user.Email, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID, "role", user.Role)
	return nil
}

func (r *PostgresUserRepository) getOne(ctx context.Context, method, where string, arg any) (user *models.User, err error) {
	ctx, finish := observability.Observe(ctx, "user-repository", method)
	defer func() { finish(err) }()

	user, err = scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to get user", "method", method, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, "GetUserByID", "id = $1", id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, pkgerrors.Invalid("email cannot be empty")
	}
	return r.getOne(ctx, "GetUserByEmail", "email = $1", strings.ToLower(email))
}

func (r *PostgresUserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	return r.getOne(ctx, "GetUserByAPIKey", "api_key = $1", apiKey)
}

func (r *PostgresUserRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.getOne(ctx, "GetUserByReferralCode", "referral_code = $1", code)
}

func (r *PostgresUserRepository) SetAPICredentials(ctx context.Context, userID int64, apiKey, secretHash string) (err error) {
	ctx, finish := observability.Observe(ctx, "user-repository", "SetAPICredentials", attribute.Int64("user_id", userID))
	defer func() { finish(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE users SET api_key = $1, api_secret_hash = $2 WHERE id = $3`, apiKey, secretHash, userID)
	if err != nil {
		return fmt.Errorf("failed to set api credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrUserNotFound
	}
	slog.Info("api credentials rotated", "method", "SetAPICredentials", "user_id", userID)
	return nil
}

func (r *PostgresUserRepository) List(ctx context.Context, page repository.Page) (users []models.User, total int, err error) {
	ctx, finish := observability.Observe(ctx, "user-repository", "ListUsers")
	defer func() { finish(err) }()

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (r *PostgresUserRepository) ListReferrals(ctx context.Context, referrerID int64) (referrals []models.Referral, err error) {
	ctx, finish := observability.Observe(ctx, "user-repository", "ListReferrals", attribute.Int64("referrer_id", referrerID))
	defer func() { finish(err) }()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, email, created_at FROM users WHERE referred_by = $1 ORDER BY id DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref models.Referral
		if err := rows.Scan(&ref.UserID, &ref.Name, &ref.Email, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		referrals = append(referrals, ref)
	}
	return referrals, rows.Err()
}
