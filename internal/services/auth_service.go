package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type RegisterInput struct {
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	Role         models.Role `json:"role"`
	ReferralCode string      `json:"referral_code,omitempty"`
}

// APICredentials is returned once; only the secret's hash is stored.
type APICredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type AuthService struct {
	users       repository.UserRepository
	tokens      *auth.TokenManager
	redisClient redis.RedisClient
	events      EventPublisher
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, redisClient redis.RedisClient, publisher EventPublisher) *AuthService {
	return &AuthService{
		users:       users,
		tokens:      tokens,
		redisClient: redisClient,
		events:      publisher,
	}
}

func validateRegistration(in *RegisterInput, allowAdmin bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return pkgerrors.Invalid("name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return pkgerrors.Invalid("email is not valid")
	}
	if len(in.Password) < minPasswordLength {
		return pkgerrors.Invalid("password must be at least %d characters", minPasswordLength)
	}
	if in.Role == "" {
		in.Role = models.RoleSeller
	}
	if in.Role == models.RoleAdmin && allowAdmin {
		return nil
	}
	if in.Role != models.RoleSeller && in.Role != models.RoleDistributor {
		return pkgerrors.Invalid("role must be seller or distributor")
	}
	return nil
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.register(ctx, in, false)
}

// Provision creates an account of any role, admins included. It backs the
// seed command and is never exposed over HTTP.
func (s *AuthService) Provision(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.register(ctx, in, true)
}

func (s *AuthService) register(ctx context.Context, in RegisterInput, allowAdmin bool) (*models.User, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if err := validateRegistration(&in, allowAdmin); err != nil {
		span.SetStatus(codes.Error, "invalid registration")
		return nil, err
	}

	var referredBy *int64
	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		referrer, err := s.users.GetByReferralCode(ctx, strings.ToUpper(code))
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			span.SetStatus(codes.Error, "unknown referral code")
			return nil, pkgerrors.Invalid("unknown referral code")
		}
		if err != nil {
			return nil, fail(span, err, "referrer lookup failed")
		}
		referredBy = &referrer.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "email", in.Email, "error", err)
		return nil, fail(span, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal), "password hashing failed")
	}

	user := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		ReferralCode: newReferralCode(),
		ReferredBy:   referredBy,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrEmailExists) {
			span.SetStatus(codes.Error, "email already registered")
			slog.Warn("email already registered", "email", in.Email)
			return nil, err
		}
		slog.Error("failed to create user", "email", in.Email, "error", err)
		return nil, fail(span, err, "user creation failed")
	}

	publish(ctx, s.events, events.TopicUsers, user.ID, events.UserRegistered, events.UserRegisteredPayload{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		ReferredBy: user.ReferredBy,
	})

	slog.Info("user registered", "user_id", user.ID, "role", user.Role, "referred_by", referredBy)
	return user, nil
}

// Login issues a token and makes it the user's only active one.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			slog.Error("failed to load user", "email", email, "error", err)
			return "", nil, fail(span, err, "user lookup failed")
		}
		span.SetStatus(codes.Error, "unknown email")
		return "", nil, pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("invalid password", "user_id", user.ID)
		span.SetStatus(codes.Error, "invalid password")
		return "", nil, pkgerrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		slog.Error("failed to generate JWT", "user_id", user.ID, "error", err)
		return "", nil, fail(span, fmt.Errorf("%w: failed to generate token", pkgerrors.ErrInternal), "token generation failed")
	}

	// The middleware only accepts the token stored here.
	if err := s.redisClient.Set(ctx, auth.TokenKey(user.ID), token, s.tokens.TTL()); err != nil {
		slog.Error("failed to store session", "user_id", user.ID, "error", err)
		return "", nil, fail(span, fmt.Errorf("%w: failed to store session", pkgerrors.ErrInternal), "session store failed")
	}

	slog.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	if err := s.redisClient.Del(ctx, auth.TokenKey(userID)); err != nil {
		slog.Error("failed to revoke session", "user_id", userID, "error", err)
		return fail(span, fmt.Errorf("%w: failed to revoke session", pkgerrors.ErrInternal), "session revoke failed")
	}
	slog.Info("user logged out", "user_id", userID)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Me")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	return user, nil
}

// CurrentRole reads the role from the user record for the admin guard.
func (s *AuthService) CurrentRole(ctx context.Context, userID int64) (models.Role, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *AuthService) ListUsers(ctx context.Context, page repository.Page) ([]models.User, int, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "ListUsers")
	defer span.End()

	users, total, err := s.users.List(ctx, page)
	if err != nil {
		return nil, 0, fail(span, err, "list users failed")
	}
	return users, total, nil
}

// GenerateAPIKey replaces the user's integration credentials.
func (s *AuthService) GenerateAPIKey(ctx context.Context, userID int64) (*APICredentials, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "GenerateAPIKey")
	defer span.End()

	key := "rk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")

	// The secret is random, so a low cost is enough and keeps per-request
	// verification cheap.
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: failed to hash api secret", pkgerrors.ErrInternal), "secret hashing failed")
	}
	if err := s.users.SetAPICredentials(ctx, userID, key, string(hash)); err != nil {
		slog.Error("failed to store api credentials", "user_id", userID, "error", err)
		return nil, fail(span, err, "store credentials failed")
	}

	slog.Info("api key generated", "user_id", userID)
	return &APICredentials{APIKey: key, APISecret: secret}, nil
}

func (s *AuthService) AuthenticateAPIKey(ctx context.Context, key, secret string) (*models.User, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "AuthenticateAPIKey")
	defer span.End()

	user, err := s.users.GetByAPIKey(ctx, key)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			span.SetStatus(codes.Error, "unknown api key")
			return nil, pkgerrors.ErrInvalidCredentials
		}
		return nil, fail(span, err, "api key lookup failed")
	}
	if user.APISecretHash == "" || bcrypt.CompareHashAndPassword([]byte(user.APISecretHash), []byte(secret)) != nil {
		slog.Warn("invalid api secret", "user_id", user.ID)
		span.SetStatus(codes.Error, "invalid api secret")
		return nil, pkgerrors.ErrInvalidCredentials
	}
	return user, nil
}
