package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit      TransactionType = "deposit"
	TypeWithdrawal   TransactionType = "withdrawal"
	TypePurchase     TransactionType = "purchase"
	TypeSubscription TransactionType = "subscription"
	TypeDomain       TransactionType = "domain"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypePurchase, TypeSubscription, TypeDomain:
		return true
	}
	return false
}

// IsCredit reports whether entries of this type increase the balance.
func (t TransactionType) IsCredit() bool {
	return t == TypeDeposit
}

// WalletTransaction is one ledger entry. Amount is signed: credits are
// positive and debits negative, so BalanceAfter of entry n equals
// BalanceAfter of entry n-1 plus Amount.
type WalletTransaction struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reference    string          `json:"reference,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LedgerEntry is a request to move a user's balance by a signed amount.
type LedgerEntry struct {
	UserID      int64
	Type        TransactionType
	Amount      decimal.Decimal
	Reference   string
	Description string
}
