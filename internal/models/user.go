package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleSeller      Role = "seller"
	RoleDistributor Role = "distributor"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSeller, RoleDistributor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"-"`
	Role          Role            `json:"role"`
	Balance       decimal.Decimal `json:"balance"`
	APIKey        *string         `json:"api_key,omitempty"`
	APISecretHash string          `json:"-"`
	ReferralCode  string          `json:"referral_code"`
	ReferredBy    *int64          `json:"referred_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
