package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

type Payment struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Gateway       string          `json:"gateway"`
	Reference     string          `json:"reference"`
	ExternalTxnID *string         `json:"external_txn_id,omitempty"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
}

// PaymentConfirmation is what a gateway reports for a settled payment.
type PaymentConfirmation struct {
	PaymentID     int64
	ExternalTxnID string
	Amount        decimal.Decimal
}

// ConfirmResult carries the payment and whether this call credited the wallet.
type ConfirmResult struct {
	Payment    *Payment        `json:"payment"`
	Credited   bool            `json:"credited"`
	NewBalance decimal.Decimal `json:"new_balance"`
}
