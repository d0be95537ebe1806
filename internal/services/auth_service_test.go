package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository/memory"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *mockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *mockRedis) Del(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockRedis) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRedis) Close() error {
	return m.Called().Error(0)
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("success with referral", func(t *testing.T) {
		env := newTestEnv(t)
		referrer := env.user(t, "ref@example.com", "0")

		u, err := env.auth.Register(ctx, RegisterInput{
			Name:         "Buyer",
			Email:        "  Buyer@Example.com ",
			Password:     "password123",
			Role:         models.RoleDistributor,
			ReferralCode: referrer.ReferralCode,
		})
		require.NoError(t, err)
		assert.Equal(t, "buyer@example.com", u.Email)
		assert.Equal(t, models.RoleDistributor, u.Role)
		require.NotNil(t, u.ReferredBy)
		assert.Equal(t, referrer.ID, *u.ReferredBy)
		assert.NotEmpty(t, u.ReferralCode)
		assert.NotEqual(t, "password123", u.PasswordHash)

		registered := env.publisher.ofType(events.UserRegistered)
		assert.Len(t, registered, 2)
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t)
		cases := []RegisterInput{
			{Name: "", Email: "a@example.com", Password: "password123"},
			{Name: "A", Email: "not-an-email", Password: "password123"},
			{Name: "A", Email: "a@example.com", Password: "short"},
			{Name: "A", Email: "a@example.com", Password: "password123", Role: models.RoleAdmin},
			{Name: "A", Email: "a@example.com", Password: "password123", ReferralCode: "NOPE"},
		}
		for _, in := range cases {
			_, err := env.auth.Register(ctx, in)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput, "%+v", in)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := newTestEnv(t)
		env.user(t, "dup@example.com", "0")
		_, err := env.auth.Register(ctx, RegisterInput{Name: "B", Email: "DUP@example.com", Password: "password123"})
		assert.ErrorIs(t, err, pkgerrors.ErrEmailExists)
	})
}

func TestAuthService_LoginLogout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, "login@example.com", "0")

	_, _, err := env.auth.Login(ctx, "login@example.com", "wrong-password")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)

	_, _, err = env.auth.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)

	token, user, err := env.auth.Login(ctx, "LOGIN@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, user.ID)

	stored, err := env.mr.Get(auth.TokenKey(u.ID))
	require.NoError(t, err)
	assert.Equal(t, token, stored)

	claims, err := env.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, models.RoleSeller, claims.Role)

	require.NoError(t, env.auth.Logout(ctx, u.ID))
	assert.False(t, env.mr.Exists(auth.TokenKey(u.ID)))
}

func TestAuthService_LoginSessionStoreDown(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	redisClient := new(mockRedis)
	svc := NewAuthService(store.Users(), auth.NewTokenManager("secret", time.Hour), redisClient, nil)

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	redisClient.On("Set", mock.Anything, "user:1:token", mock.AnythingOfType("string"), time.Hour).
		Return(errors.New("connection refused"))

	token, _, err := svc.Login(ctx, "a@example.com", "password123")
	assert.ErrorIs(t, err, pkgerrors.ErrInternal)
	assert.Empty(t, token)
	redisClient.AssertExpectations(t)
}

func TestAuthService_APIKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, "api@example.com", "0")

	creds, err := env.auth.GenerateAPIKey(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, creds.APIKey)
	assert.NotEmpty(t, creds.APISecret)

	got, err := env.auth.AuthenticateAPIKey(ctx, creds.APIKey, creds.APISecret)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = env.auth.AuthenticateAPIKey(ctx, creds.APIKey, "wrong")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)

	_, err = env.auth.AuthenticateAPIKey(ctx, "rk_unknown", creds.APISecret)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)

	rotated, err := env.auth.GenerateAPIKey(ctx, u.ID)
	require.NoError(t, err)
	_, err = env.auth.AuthenticateAPIKey(ctx, creds.APIKey, creds.APISecret)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	_, err = env.auth.AuthenticateAPIKey(ctx, rotated.APIKey, rotated.APISecret)
	assert.NoError(t, err)
}

func TestAuthService_Provision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	admin, err := env.auth.Provision(ctx, RegisterInput{
		Name:     "Root",
		Email:    "root@example.com",
		Password: "password123",
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	_, err = env.auth.Provision(ctx, RegisterInput{Name: "X", Email: "x@example.com", Password: "password123", Role: "owner"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestAuthService_CurrentRole(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	admin, err := env.auth.Provision(ctx, RegisterInput{Name: "Root", Email: "root@example.com", Password: "password123", Role: models.RoleAdmin})
	require.NoError(t, err)

	role, err := env.auth.CurrentRole(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = env.auth.CurrentRole(ctx, admin.ID+100)
	assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
}
