package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
)

type WalletRepository struct{ s *Store }

func (r *WalletRepository) Apply(_ context.Context, entry models.LedgerEntry) (*models.WalletTransaction, error) {
	if !entry.Type.Valid() {
		return nil, pkgerrors.ErrInvalidTransactionType
	}
	if entry.Amount.IsZero() || entry.Type.IsCredit() != entry.Amount.IsPositive() {
		return nil, pkgerrors.Invalid("amount sign does not match %s", entry.Type)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.applyLocked(entry)
}

func (r *WalletRepository) GetBalance(_ context.Context, userID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrUserNotFound
	}
	return u.Balance, nil
}

func (r *WalletRepository) ListTransactions(_ context.Context, userID int64, page repository.Page) ([]models.WalletTransaction, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []models.WalletTransaction
	for i := len(r.s.txs) - 1; i >= 0; i-- {
		if r.s.txs[i].UserID == userID {
			all = append(all, r.s.txs[i])
		}
	}
	return window(all, page), len(all), nil
}

type PaymentRepository struct{ s *Store }

func (r *PaymentRepository) Create(_ context.Context, p *models.Payment) error {
	if !p.Amount.IsPositive() {
		return pkgerrors.Invalid("amount must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[p.UserID]; !ok {
		return pkgerrors.ErrUserNotFound
	}
	r.s.nextPayment++
	p.ID = r.s.nextPayment
	p.Status = models.PaymentPending
	p.CreatedAt = time.Now().UTC()
	stored := *p
	r.s.payments[p.ID] = &stored
	return nil
}

func (r *PaymentRepository) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (r *PaymentRepository) Confirm(_ context.Context, c models.PaymentConfirmation) (*models.ConfirmResult, error) {
	if c.ExternalTxnID == "" {
		return nil, pkgerrors.Invalid("external transaction id is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[c.PaymentID]
	if !ok {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	switch p.Status {
	case models.PaymentConfirmed:
		out := *p
		return &models.ConfirmResult{Payment: &out, Credited: false, NewBalance: r.s.users[p.UserID].Balance}, nil
	case models.PaymentFailed:
		return nil, pkgerrors.ErrPaymentFailed
	}
	if !c.Amount.IsZero() && !c.Amount.Equal(p.Amount) {
		return nil, pkgerrors.ErrAmountMismatch
	}
	for _, other := range r.s.payments {
		if other.ID != p.ID && other.ExternalTxnID != nil && *other.ExternalTxnID == c.ExternalTxnID {
			return nil, pkgerrors.ErrDuplicatePayment
		}
	}

	wt, err := r.s.applyLocked(models.LedgerEntry{
		UserID:      p.UserID,
		Type:        models.TypeDeposit,
		Amount:      p.Amount,
		Reference:   "payment:" + p.Reference,
		Description: fmt.Sprintf("Topup via %s", p.Gateway),
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ext := c.ExternalTxnID
	p.Status = models.PaymentConfirmed
	p.ExternalTxnID = &ext
	p.ConfirmedAt = &now

	out := *p
	return &models.ConfirmResult{Payment: &out, Credited: true, NewBalance: wt.BalanceAfter}, nil
}

func (r *PaymentRepository) Decline(_ context.Context, id int64) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	switch p.Status {
	case models.PaymentConfirmed:
		return nil, pkgerrors.ErrInvalidTransition
	case models.PaymentPending:
		p.Status = models.PaymentFailed
	}
	out := *p
	return &out, nil
}

type ReferralRepository struct{ s *Store }

func (r *ReferralRepository) GetSettings(_ context.Context) (*models.ReferralSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.settings
	return &out, nil
}

func (r *ReferralRepository) UpdateSettings(_ context.Context, settings *models.ReferralSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	settings.UpdatedAt = time.Now().UTC()
	r.s.settings = *settings
	return nil
}

func (r *ReferralRepository) CreateCommission(_ context.Context, c *models.Commission) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.commissions {
		if existing.OrderID == c.OrderID {
			return false, nil
		}
	}
	r.s.nextCommission++
	c.ID = r.s.nextCommission
	c.Status = models.CommissionPending
	c.CreatedAt = time.Now().UTC()
	stored := *c
	r.s.commissions[c.ID] = &stored
	return true, nil
}

func (r *ReferralRepository) ListCommissions(_ context.Context, filter repository.CommissionFilter) ([]models.Commission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Commission
	for _, c := range r.s.commissions {
		if filter.ReferrerID != nil && c.ReferrerID != *filter.ReferrerID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *ReferralRepository) Resolve(_ context.Context, id int64, to models.CommissionStatus) (*models.Commission, *models.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.commissions[id]
	if !ok {
		return nil, nil, pkgerrors.ErrCommissionNotFound
	}
	if !c.Status.CanTransition(to) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidTransition, c.Status, to)
	}

	var wt *models.WalletTransaction
	if to == models.CommissionCompleted && c.CommissionAmount.IsPositive() {
		var err error
		wt, err = r.s.applyLocked(models.LedgerEntry{
			UserID:      c.ReferrerID,
			Type:        models.TypeDeposit,
			Amount:      c.CommissionAmount,
			Reference:   fmt.Sprintf("commission:%d", c.ID),
			Description: fmt.Sprintf("Referral commission for order %d", c.OrderID),
		})
		if err != nil {
			return nil, nil, err
		}
	}
	now := time.Now().UTC()
	c.Status = to
	c.ResolvedAt = &now
	out := *c
	return &out, wt, nil
}
