// Package memory keeps every repository in process memory. All ledger and
// purchase operations are serialized behind one mutex, which gives the same
// all-or-nothing behaviour as the Postgres transactions.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.Mutex

	users       map[int64]*models.User
	products    map[int64]*models.Product
	codes       map[int64][]*models.ProductCode // by product
	orders      map[int64]*models.Order
	txs         []models.WalletTransaction
	payments    map[int64]*models.Payment
	settings    models.ReferralSettings
	commissions map[int64]*models.Commission

	nextUser, nextProduct, nextCode, nextOrder, nextTx, nextPayment, nextCommission int64
}

func NewStore() *Store {
	return &Store{
		users:       make(map[int64]*models.User),
		products:    make(map[int64]*models.Product),
		codes:       make(map[int64][]*models.ProductCode),
		orders:      make(map[int64]*models.Order),
		payments:    make(map[int64]*models.Payment),
		commissions: make(map[int64]*models.Commission),
		settings: models.ReferralSettings{
			CommissionType:  models.CommissionPercentage,
			CommissionValue: decimal.NewFromInt(5),
			IsEnabled:       true,
			MinOrderAmount:  decimal.Zero,
			UpdatedAt:       time.Now().UTC(),
		},
	}
}

func (s *Store) Users() *UserRepository         { return &UserRepository{s} }
func (s *Store) Products() *ProductRepository   { return &ProductRepository{s} }
func (s *Store) Orders() *OrderRepository       { return &OrderRepository{s} }
func (s *Store) Wallet() *WalletRepository      { return &WalletRepository{s} }
func (s *Store) Payments() *PaymentRepository   { return &PaymentRepository{s} }
func (s *Store) Referrals() *ReferralRepository { return &ReferralRepository{s} }

// applyLocked is the in-memory ledger routine; s.mu must be held.
func (s *Store) applyLocked(entry models.LedgerEntry) (*models.WalletTransaction, error) {
	u, ok := s.users[entry.UserID]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	newBalance := u.Balance.Add(entry.Amount)
	if newBalance.IsNegative() {
		return nil, pkgerrors.ErrInsufficientFunds
	}
	u.Balance = newBalance
	s.nextTx++
	wt := models.WalletTransaction{
		ID:           s.nextTx,
		UserID:       entry.UserID,
		Type:         entry.Type,
		Amount:       entry.Amount,
		BalanceAfter: newBalance,
		Reference:    entry.Reference,
		Description:  entry.Description,
		CreatedAt:    time.Now().UTC(),
	}
	s.txs = append(s.txs, wt)
	return &wt, nil
}

func window[T any](items []T, page repository.Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Email == "" || user.PasswordHash == "" {
		return pkgerrors.Invalid("email and password are required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, u := range r.s.users {
		if u.Email == email {
			return pkgerrors.ErrEmailExists
		}
		if u.ReferralCode == user.ReferralCode {
			return pkgerrors.ErrUserAlreadyExists
		}
	}
	r.s.nextUser++
	user.ID = r.s.nextUser
	user.Email = email
	user.CreatedAt = time.Now().UTC()
	u := *user
	r.s.users[u.ID] = &u
	return nil
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, pkgerrors.Invalid("email cannot be empty")
	}
	email = strings.ToLower(email)
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *UserRepository) GetByAPIKey(_ context.Context, apiKey string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.APIKey != nil && *u.APIKey == apiKey })
}

func (r *UserRepository) GetByReferralCode(_ context.Context, code string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ReferralCode == code })
}

func (r *UserRepository) SetAPICredentials(_ context.Context, userID int64, apiKey, secretHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	u.APIKey = &apiKey
	u.APISecretHash = secretHash
	return nil
}

func (r *UserRepository) List(_ context.Context, page repository.Page) ([]models.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, page), len(all), nil
}

func (r *UserRepository) ListReferrals(_ context.Context, referrerID int64) ([]models.Referral, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Referral
	for _, u := range r.s.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID {
			out = append(out, models.Referral{UserID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID > out[j].UserID })
	return out, nil
}
