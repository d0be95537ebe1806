package auth

import (
	"context"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
)

type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Session identifies the caller of an authenticated request.
type Session struct {
	UserID int64
	Role   models.Role
	Token  string
	Method Method
}

func (s Session) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
