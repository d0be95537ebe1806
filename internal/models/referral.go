package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

type ReferralSettings struct {
	CommissionType  CommissionType  `json:"commission_type"`
	CommissionValue decimal.Decimal `json:"commission_value"`
	IsEnabled       bool            `json:"is_enabled"`
	MinOrderAmount  decimal.Decimal `json:"min_order_amount"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CommissionFor computes the payout for an order of the given total.
func (s ReferralSettings) CommissionFor(orderAmount decimal.Decimal) decimal.Decimal {
	if s.CommissionType == CommissionFixed {
		return s.CommissionValue.Round(2)
	}
	return orderAmount.Mul(s.CommissionValue).Div(decimal.NewFromInt(100)).Round(2)
}

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionCompleted CommissionStatus = "completed"
	CommissionCancelled CommissionStatus = "cancelled"
)

// CanTransition allows pending -> completed|cancelled only.
func (s CommissionStatus) CanTransition(to CommissionStatus) bool {
	return s == CommissionPending && (to == CommissionCompleted || to == CommissionCancelled)
}

type Commission struct {
	ID               int64            `json:"id"`
	ReferrerID       int64            `json:"referrer_id"`
	ReferredUserID   int64            `json:"referred_user_id"`
	OrderID          int64            `json:"order_id"`
	OrderAmount      decimal.Decimal  `json:"order_amount"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	Status           CommissionStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
}

// Referral is a user brought in by a referrer, as seen by that referrer.
type Referral struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
