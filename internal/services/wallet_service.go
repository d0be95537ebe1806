package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const balanceTTL = 5 * time.Minute

type WalletService struct {
	wallet      repository.WalletRepository
	users       repository.UserRepository
	redisClient redis.RedisClient
	events      EventPublisher
}

func NewWalletService(wallet repository.WalletRepository, users repository.UserRepository, redisClient redis.RedisClient, publisher EventPublisher) *WalletService {
	return &WalletService{
		wallet:      wallet,
		users:       users,
		redisClient: redisClient,
		events:      publisher,
	}
}

func positiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.Invalid("amount must be positive")
	}
	if amount.Exponent() < -2 {
		return pkgerrors.Invalid("amount has more than two decimal places")
	}
	return nil
}

func (s *WalletService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	key := balanceKey(userID)
	var cached decimal.Decimal
	gen, err := redis.GetVersionedJSON(ctx, s.redisClient, key, &cached)
	if err == nil {
		return cached, nil
	}
	// Без известного поколения кэш не пишем
	cacheable := stderrors.Is(err, redis.ErrKeyNotFound)
	if !cacheable {
		slog.Error("failed to read cached balance", "user_id", userID, "error", err)
	}

	balance, err := s.wallet.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, fail(span, err, "get balance failed")
	}

	if cacheable {
		if err := redis.SetVersionedJSON(ctx, s.redisClient, key, gen, balance, balanceTTL); err != nil {
			slog.Error("failed to cache balance", "user_id", userID, "error", err)
		}
	}
	return balance, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, userID int64, page repository.Page) ([]models.WalletTransaction, int, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "ListTransactions")
	defer span.End()

	txs, total, err := s.wallet.ListTransactions(ctx, userID, page)
	if err != nil {
		return nil, 0, fail(span, err, "list transactions failed")
	}
	return txs, total, nil
}

// Withdraw records a payout request as an immediate debit.
func (s *WalletService) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, destination string) (*models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "Withdraw")
	defer span.End()

	if err := positiveAmount(amount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		span.SetStatus(codes.Error, "missing destination")
		return nil, pkgerrors.Invalid("destination is required")
	}

	wt, err := s.wallet.Apply(ctx, models.LedgerEntry{
		UserID:      userID,
		Type:        models.TypeWithdrawal,
		Amount:      amount.Neg(),
		Reference:   "withdrawal:" + uuid.NewString(),
		Description: "Withdrawal to " + destination,
	})
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrInsufficientFunds) {
			observability.Logger(ctx).Error("withdrawal failed", "user_id", userID, "error", err)
		}
		return nil, fail(span, err, "withdrawal failed")
	}
	expire(ctx, s.redisClient, balanceKey(userID))

	slog.Info("withdrawal recorded", "user_id", userID, "amount", amount.String(), "transaction_id", wt.ID)
	return wt, nil
}

// AdminCredit tops up a user's wallet by hand.
func (s *WalletService) AdminCredit(ctx context.Context, adminID, userID int64, amount decimal.Decimal, note string) (*models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "AdminCredit")
	defer span.End()

	if err := positiveAmount(amount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, fail(span, err, "user lookup failed")
	}

	description := "Manual credit"
	if note = strings.TrimSpace(note); note != "" {
		description = note
	}
	wt, err := s.wallet.Apply(ctx, models.LedgerEntry{
		UserID:      userID,
		Type:        models.TypeDeposit,
		Amount:      amount,
		Reference:   fmt.Sprintf("admin:%d:%s", adminID, uuid.NewString()),
		Description: description,
	})
	if err != nil {
		return nil, fail(span, err, "credit failed")
	}
	credited(ctx, s.redisClient, s.events, wt, "admin")

	slog.Info("wallet credited by admin", "admin_id", adminID, "user_id", userID, "amount", amount.String())
	return wt, nil
}

// Charge debits the wallet for a platform fee such as a subscription or a
// domain registration.
func (s *WalletService) Charge(ctx context.Context, userID int64, typ models.TransactionType, amount decimal.Decimal, reference, description string) (*models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "Charge")
	defer span.End()

	if typ.IsCredit() {
		span.SetStatus(codes.Error, "credit type")
		return nil, pkgerrors.ErrInvalidTransactionType
	}
	if err := positiveAmount(amount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	wt, err := s.wallet.Apply(ctx, models.LedgerEntry{
		UserID:      userID,
		Type:        typ,
		Amount:      amount.Neg(),
		Reference:   reference,
		Description: description,
	})
	if err != nil {
		return nil, fail(span, err, "charge failed")
	}
	expire(ctx, s.redisClient, balanceKey(userID))
	return wt, nil
}

// Refund returns a previously charged fee as a deposit.
func (s *WalletService) Refund(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (*models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "Refund")
	defer span.End()

	if err := positiveAmount(amount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	wt, err := s.wallet.Apply(ctx, models.LedgerEntry{
		UserID:      userID,
		Type:        models.TypeDeposit,
		Amount:      amount,
		Reference:   reference,
		Description: description,
	})
	if err != nil {
		return nil, fail(span, err, "refund failed")
	}
	credited(ctx, s.redisClient, s.events, wt, "refund")
	return wt, nil
}
