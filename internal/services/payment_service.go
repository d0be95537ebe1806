package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PaymentConfig struct {
	Gateways        []string
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal
	WebhookSecret   string
	AllowSimulation bool
}

// Callback statuses reported by gateways.
const (
	CallbackSuccess = "success"
	CallbackFailed  = "failed"
)

// PaymentCallback is the body a gateway posts once a payment settles.
type PaymentCallback struct {
	PaymentID     int64           `json:"payment_id"`
	ExternalTxnID string          `json:"external_txn_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
}

type PaymentService struct {
	payments    repository.PaymentRepository
	redisClient redis.RedisClient
	events      EventPublisher
	cfg         PaymentConfig
}

func NewPaymentService(payments repository.PaymentRepository, redisClient redis.RedisClient, publisher EventPublisher, cfg PaymentConfig) *PaymentService {
	return &PaymentService{
		payments:    payments,
		redisClient: redisClient,
		events:      publisher,
		cfg:         cfg,
	}
}

func (s *PaymentService) supportsGateway(gateway string) bool {
	for _, g := range s.cfg.Gateways {
		if strings.EqualFold(g, gateway) {
			return true
		}
	}
	return false
}

func (s *PaymentService) Initiate(ctx context.Context, userID int64, amount decimal.Decimal, gateway string) (*models.Payment, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "Initiate")
	defer span.End()

	if err := positiveAmount(amount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	if s.cfg.MinAmount.IsPositive() && amount.LessThan(s.cfg.MinAmount) {
		span.SetStatus(codes.Error, "amount below minimum")
		return nil, pkgerrors.Invalid("amount must be at least %s", s.cfg.MinAmount.StringFixed(2))
	}
	if s.cfg.MaxAmount.IsPositive() && amount.GreaterThan(s.cfg.MaxAmount) {
		span.SetStatus(codes.Error, "amount above maximum")
		return nil, pkgerrors.Invalid("amount must be at most %s", s.cfg.MaxAmount.StringFixed(2))
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if !s.supportsGateway(gateway) {
		span.SetStatus(codes.Error, "unsupported gateway")
		return nil, pkgerrors.Invalid("unsupported gateway %q", gateway)
	}

	p := &models.Payment{
		UserID:    userID,
		Amount:    amount,
		Gateway:   gateway,
		Reference: uuid.NewString(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		slog.Error("failed to initiate payment", "user_id", userID, "error", err)
		return nil, fail(span, err, "create payment failed")
	}
	return p, nil
}

// GetPayment returns a payment owned by userID. Other users' payments look
// missing.
func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID int64) (*models.Payment, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "GetPayment")
	defer span.End()

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fail(span, err, "get payment failed")
	}
	if p.UserID != userID {
		span.SetStatus(codes.Error, "foreign payment")
		return nil, pkgerrors.ErrPaymentNotFound
	}
	return p, nil
}

// Confirm settles a payment and credits the wallet at most once.
func (s *PaymentService) Confirm(ctx context.Context, c models.PaymentConfirmation) (*models.ConfirmResult, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "Confirm")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment_id", c.PaymentID))

	c.ExternalTxnID = strings.TrimSpace(c.ExternalTxnID)
	if c.ExternalTxnID == "" {
		span.SetStatus(codes.Error, "missing external txn id")
		return nil, pkgerrors.Invalid("external_txn_id is required")
	}

	res, err := s.payments.Confirm(ctx, c)
	if err != nil {
		if pkgerrors.KindOf(err) == pkgerrors.KindInternal {
			slog.Error("failed to confirm payment", "payment_id", c.PaymentID, "error", err)
		} else {
			slog.Warn("payment confirmation rejected", "payment_id", c.PaymentID, "reason", err.Error())
		}
		return nil, fail(span, err, "confirm failed")
	}

	if res.Credited {
		credited(ctx, s.redisClient, s.events, &models.WalletTransaction{
			UserID:       res.Payment.UserID,
			Amount:       res.Payment.Amount,
			Reference:    "payment:" + res.Payment.Reference,
			BalanceAfter: res.NewBalance,
		}, res.Payment.Gateway)
		slog.Info("payment confirmed", "payment_id", res.Payment.ID, "user_id", res.Payment.UserID, "amount", res.Payment.Amount.String())
	} else {
		slog.Info("payment already confirmed", "payment_id", res.Payment.ID)
	}
	return res, nil
}

func (s *PaymentService) Decline(ctx context.Context, paymentID int64) (*models.Payment, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "Decline")
	defer span.End()

	p, err := s.payments.Decline(ctx, paymentID)
	if err != nil {
		return nil, fail(span, err, "decline failed")
	}
	slog.Info("payment declined", "payment_id", paymentID)
	return p, nil
}

// SimulateSuccess confirms the caller's own payment without a gateway.
// Only available when simulation is enabled.
func (s *PaymentService) SimulateSuccess(ctx context.Context, userID, paymentID int64) (*models.ConfirmResult, error) {
	if !s.cfg.AllowSimulation {
		return nil, pkgerrors.ErrForbidden
	}
	p, err := s.GetPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, models.PaymentConfirmation{
		PaymentID:     p.ID,
		ExternalTxnID: "sim-" + p.Reference,
		Amount:        p.Amount,
	})
}

// Sign computes the hex HMAC-SHA256 of a callback body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentService) verify(body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" {
		return true
	}
	expected := Sign(s.cfg.WebhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// HandleCallback verifies and applies a gateway notification. A replayed
// success callback returns the payment without crediting again.
func (s *PaymentService) HandleCallback(ctx context.Context, body []byte, signature string) (*models.ConfirmResult, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "HandleCallback")
	defer span.End()

	if !s.verify(body, signature) {
		slog.Warn("payment callback with bad signature")
		span.SetStatus(codes.Error, "bad signature")
		return nil, pkgerrors.ErrUnauthorized
	}

	var cb PaymentCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		span.SetStatus(codes.Error, "bad callback body")
		return nil, pkgerrors.Invalid("malformed callback body")
	}
	if cb.PaymentID <= 0 {
		span.SetStatus(codes.Error, "missing payment id")
		return nil, pkgerrors.Invalid("payment_id is required")
	}

	switch strings.ToLower(cb.Status) {
	case CallbackSuccess:
		return s.Confirm(ctx, models.PaymentConfirmation{
			PaymentID:     cb.PaymentID,
			ExternalTxnID: cb.ExternalTxnID,
			Amount:        cb.Amount,
		})
	case CallbackFailed:
		p, err := s.Decline(ctx, cb.PaymentID)
		if err != nil {
			if stderrors.Is(err, pkgerrors.ErrInvalidTransition) {
				slog.Warn("failure callback for confirmed payment", "payment_id", cb.PaymentID)
			}
			return nil, err
		}
		return &models.ConfirmResult{Payment: p}, nil
	default:
		span.SetStatus(codes.Error, "unknown status")
		return nil, pkgerrors.Invalid("unknown callback status %q", cb.Status)
	}
}
