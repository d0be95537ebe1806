package auth

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
)

// ErrorWriter renders an error response; supplied by the HTTP layer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// APIKeyAuthenticator resolves integration credentials to a user.
type APIKeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, key, secret string) (*models.User, error)
}

// AuthMiddleware accepts a bearer JWT that is still the user's active token
// in Redis.
func AuthMiddleware(tokens *TokenManager, redisClient redis.RedisClient, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErr(w, r, pkgerrors.ErrUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeErr(w, r, pkgerrors.ErrUnauthorized)
				return
			}

			tokenStr := parts[1]
			claims, err := tokens.Parse(tokenStr)
			if err != nil {
				slog.Debug("rejected token", "error", err)
				writeErr(w, r, pkgerrors.ErrUnauthorized)
				return
			}

			// Check token in Redis
			storedToken, err := redisClient.Get(r.Context(), TokenKey(claims.UserID))
			if err != nil || storedToken != tokenStr {
				slog.Warn("invalid or revoked token", "user_id", claims.UserID, "error", err)
				writeErr(w, r, pkgerrors.ErrUnauthorized)
				return
			}

			ctx := WithSession(r.Context(), Session{
				UserID: claims.UserID,
				Role:   claims.Role,
				Token:  tokenStr,
				Method: MethodJWT,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyMiddleware authenticates integrations via X-API-Key and X-API-Secret.
func APIKeyMiddleware(authenticator APIKeyAuthenticator, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			secret := r.Header.Get("X-API-Secret")
			if key == "" || secret == "" {
				writeErr(w, r, pkgerrors.ErrUnauthorized)
				return
			}

			user, err := authenticator.AuthenticateAPIKey(r.Context(), key, secret)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			ctx := WithSession(r.Context(), Session{
				UserID: user.ID,
				Role:   user.Role,
				Method: MethodAPIKey,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoleLookup reports a user's current role.
type RoleLookup interface {
	CurrentRole(ctx context.Context, userID int64) (models.Role, error)
}

// RequireRole lets the request through only for users currently holding one
// of roles. The role is read from the user record, not the token, so a
// demotion takes effect before the token expires.
func RequireRole(lookup RoleLookup, writeErr ErrorWriter, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFrom(r.Context())
			if !ok {
				writeErr(w, r, pkgerrors.ErrUnauthorized)
				return
			}
			current, err := lookup.CurrentRole(r.Context(), session.UserID)
			if err != nil {
				if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
					err = pkgerrors.ErrUnauthorized
				}
				writeErr(w, r, err)
				return
			}
			for _, role := range roles {
				if current == role {
					session.Role = current
					next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
					return
				}
			}
			slog.Warn("forbidden", "user_id", session.UserID, "role", current, "token_role", session.Role, "path", r.URL.Path)
			writeErr(w, r, pkgerrors.ErrForbidden)
		})
	}
}
