package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReferralOverview is what a referrer sees about their own programme.
type ReferralOverview struct {
	ReferralCode string            `json:"referral_code"`
	Referrals    []models.Referral `json:"referrals"`
	Earned       decimal.Decimal   `json:"earned"`
	Pending      decimal.Decimal   `json:"pending"`
}

type ReferralService struct {
	referrals   repository.ReferralRepository
	users       repository.UserRepository
	redisClient redis.RedisClient
	events      EventPublisher
}

func NewReferralService(referrals repository.ReferralRepository, users repository.UserRepository, redisClient redis.RedisClient, publisher EventPublisher) *ReferralService {
	return &ReferralService{
		referrals:   referrals,
		users:       users,
		redisClient: redisClient,
		events:      publisher,
	}
}

// HandleOrderCompleted is the order.completed event handler.
func (s *ReferralService) HandleOrderCompleted(ctx context.Context, evt events.Event) error {
	var payload events.OrderCompletedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		// A malformed event will never decode; retrying it is pointless.
		slog.Error("dropping malformed order event", "event_id", evt.ID, "error", err)
		return nil
	}
	_, _, err := s.RecordCommission(ctx, payload)
	return err
}

// RecordCommission creates the pending commission owed for an order, if
// any. The bool is false when nothing was recorded, including when the order
// already has a commission.
func (s *ReferralService) RecordCommission(ctx context.Context, order events.OrderCompletedPayload) (*models.Commission, bool, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "RecordCommission")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", order.OrderID))

	buyer, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		return nil, false, fail(span, err, "buyer lookup failed")
	}
	if buyer.ReferredBy == nil {
		return nil, false, nil
	}

	settings, err := s.referrals.GetSettings(ctx)
	if err != nil {
		return nil, false, fail(span, err, "settings lookup failed")
	}
	if !settings.IsEnabled || order.TotalPrice.LessThan(settings.MinOrderAmount) {
		slog.Debug("order not eligible for commission", "order_id", order.OrderID, "enabled", settings.IsEnabled)
		return nil, false, nil
	}
	amount := settings.CommissionFor(order.TotalPrice)
	if !amount.IsPositive() {
		return nil, false, nil
	}

	c := &models.Commission{
		ReferrerID:       *buyer.ReferredBy,
		ReferredUserID:   buyer.ID,
		OrderID:          order.OrderID,
		OrderAmount:      order.TotalPrice,
		CommissionAmount: amount,
	}
	created, err := s.referrals.CreateCommission(ctx, c)
	if err != nil {
		slog.Error("failed to record commission", "order_id", order.OrderID, "error", err)
		return nil, false, fail(span, err, "create commission failed")
	}
	if !created {
		slog.Info("commission already recorded", "order_id", order.OrderID)
		return nil, false, nil
	}

	observability.Commissions.WithLabelValues(string(models.CommissionPending)).Inc()
	slog.Info("commission recorded",
		"commission_id", c.ID,
		"referrer_id", c.ReferrerID,
		"order_id", c.OrderID,
		"amount", c.CommissionAmount.String())
	return c, true, nil
}

func (s *ReferralService) Complete(ctx context.Context, id int64) (*models.Commission, error) {
	return s.resolve(ctx, id, models.CommissionCompleted)
}

func (s *ReferralService) Cancel(ctx context.Context, id int64) (*models.Commission, error) {
	return s.resolve(ctx, id, models.CommissionCancelled)
}

func (s *ReferralService) resolve(ctx context.Context, id int64, to models.CommissionStatus) (*models.Commission, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(attribute.Int64("commission_id", id), attribute.String("status", string(to)))

	c, wt, err := s.referrals.Resolve(ctx, id, to)
	if err != nil {
		return nil, fail(span, err, "resolve commission failed")
	}
	if wt != nil {
		credited(ctx, s.redisClient, s.events, wt, "commission")
	}
	observability.Commissions.WithLabelValues(string(to)).Inc()
	slog.Info("commission resolved", "commission_id", id, "status", to)
	return c, nil
}

func (s *ReferralService) GetSettings(ctx context.Context) (*models.ReferralSettings, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "GetSettings")
	defer span.End()

	settings, err := s.referrals.GetSettings(ctx)
	if err != nil {
		return nil, fail(span, err, "get settings failed")
	}
	return settings, nil
}

func validateSettings(st *models.ReferralSettings) error {
	switch st.CommissionType {
	case models.CommissionPercentage:
		if st.CommissionValue.GreaterThan(decimal.NewFromInt(100)) {
			return pkgerrors.Invalid("percentage cannot exceed 100")
		}
	case models.CommissionFixed:
	default:
		return pkgerrors.Invalid("commission_type must be percentage or fixed")
	}
	if !st.CommissionValue.IsPositive() {
		return pkgerrors.Invalid("commission_value must be positive")
	}
	if st.MinOrderAmount.IsNegative() {
		return pkgerrors.Invalid("min_order_amount cannot be negative")
	}
	return nil
}

func (s *ReferralService) UpdateSettings(ctx context.Context, st models.ReferralSettings) (*models.ReferralSettings, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "UpdateSettings")
	defer span.End()

	if err := validateSettings(&st); err != nil {
		span.SetStatus(codes.Error, "invalid settings")
		return nil, err
	}
	if err := s.referrals.UpdateSettings(ctx, &st); err != nil {
		return nil, fail(span, err, "update settings failed")
	}
	slog.Info("referral settings updated",
		"type", st.CommissionType,
		"value", st.CommissionValue.String(),
		"enabled", st.IsEnabled)
	return &st, nil
}

func (s *ReferralService) ListCommissions(ctx context.Context, filter repository.CommissionFilter) ([]models.Commission, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "ListCommissions")
	defer span.End()

	if filter.Status != "" &&
		filter.Status != models.CommissionPending &&
		filter.Status != models.CommissionCompleted &&
		filter.Status != models.CommissionCancelled {
		span.SetStatus(codes.Error, "invalid status filter")
		return nil, pkgerrors.Invalid("unknown commission status %q", filter.Status)
	}
	out, err := s.referrals.ListCommissions(ctx, filter)
	if err != nil {
		return nil, fail(span, err, "list commissions failed")
	}
	return out, nil
}

func (s *ReferralService) MyCommissions(ctx context.Context, userID int64) ([]models.Commission, error) {
	return s.ListCommissions(ctx, repository.CommissionFilter{ReferrerID: &userID})
}

func (s *ReferralService) Overview(ctx context.Context, userID int64) (*ReferralOverview, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "Overview")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	referrals, err := s.users.ListReferrals(ctx, userID)
	if err != nil {
		return nil, fail(span, err, "list referrals failed")
	}
	commissions, err := s.referrals.ListCommissions(ctx, repository.CommissionFilter{ReferrerID: &userID})
	if err != nil {
		return nil, fail(span, err, "list commissions failed")
	}

	out := &ReferralOverview{
		ReferralCode: user.ReferralCode,
		Referrals:    referrals,
		Earned:       decimal.Zero,
		Pending:      decimal.Zero,
	}
	if out.Referrals == nil {
		out.Referrals = []models.Referral{}
	}
	for _, c := range commissions {
		switch c.Status {
		case models.CommissionCompleted:
			out.Earned = out.Earned.Add(c.CommissionAmount)
		case models.CommissionPending:
			out.Pending = out.Pending.Add(c.CommissionAmount)
		}
	}
	return out, nil
}
