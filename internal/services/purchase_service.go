package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	MaxQuantity = 100

	idempotencyTTL     = 24 * time.Hour
	idempotencyPending = "pending"
	maxIdempotencyKey  = 128
)

type PurchaseService struct {
	orders      repository.OrderRepository
	redisClient redis.RedisClient
	events      EventPublisher
}

func NewPurchaseService(orders repository.OrderRepository, redisClient redis.RedisClient, publisher EventPublisher) *PurchaseService {
	return &PurchaseService{
		orders:      orders,
		redisClient: redisClient,
		events:      publisher,
	}
}

func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderrors.Is(err, pkgerrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case stderrors.Is(err, pkgerrors.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return string(pkgerrors.KindOf(err))
	}
}

// Purchase buys quantity units of a product from the wallet balance. With a
// non-empty idempotencyKey a retried request returns the first result
// instead of buying again.
func (s *PurchaseService) Purchase(ctx context.Context, userID, productID int64, quantity int, idempotencyKey string) (res *models.PurchaseResult, err error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "Purchase")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("product_id", productID),
		attribute.Int("quantity", quantity),
	)
	log := observability.Logger(ctx, "user_id", userID, "product_id", productID, "quantity", quantity)

	defer func() {
		observability.Purchases.WithLabelValues(purchaseOutcome(err)).Inc()
	}()

	if quantity < 1 || quantity > MaxQuantity {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, pkgerrors.Invalid("quantity must be between 1 and %d", MaxQuantity)
	}
	if productID <= 0 {
		span.SetStatus(codes.Error, "invalid product")
		return nil, pkgerrors.Invalid("product_id is required")
	}

	var requestKey string
	if idempotencyKey = strings.TrimSpace(idempotencyKey); idempotencyKey != "" {
		if len(idempotencyKey) > maxIdempotencyKey {
			span.SetStatus(codes.Error, "idempotency key too long")
			return nil, pkgerrors.Invalid("idempotency key longer than %d characters", maxIdempotencyKey)
		}
		requestKey = fmt.Sprintf("purchase:%d:%s", userID, idempotencyKey)
		replay, err := s.claim(ctx, requestKey)
		if err != nil {
			log.Warn("purchase request not claimed", "request_key", requestKey, "error", err)
			return nil, fail(span, err, "idempotency claim failed")
		}
		if replay != nil {
			log.Info("purchase replayed", "order_id", replay.OrderID)
			return replay, nil
		}
	}

	res, err = s.orders.Purchase(ctx, models.PurchaseRequest{UserID: userID, ProductID: productID, Quantity: quantity})
	if err != nil {
		if requestKey != "" {
			invalidate(ctx, s.redisClient, requestKey)
		}
		if pkgerrors.KindOf(err) == pkgerrors.KindInternal {
			log.Error("purchase failed", "error", err)
		} else {
			log.Info("purchase rejected", "reason", err.Error())
		}
		return nil, fail(span, err, "purchase failed")
	}

	if requestKey != "" {
		if err := redis.SetJSON(ctx, s.redisClient, requestKey, res, idempotencyTTL); err != nil {
			log.Error("failed to store purchase result", "request_key", requestKey, "error", err)
		}
	}
	expire(ctx, s.redisClient, balanceKey(userID), catalogKey)

	publish(ctx, s.events, events.TopicOrders, userID, events.OrderCompleted, events.OrderCompletedPayload{
		OrderID:    res.OrderID,
		UserID:     userID,
		ProductID:  productID,
		Quantity:   quantity,
		TotalPrice: res.TotalPrice,
	})

	log.Info("purchase completed", "order_id", res.OrderID, "total", res.TotalPrice.String(), "new_balance", res.NewBalance.String())
	return res, nil
}

// claim reserves requestKey for this call. It returns the stored result when
// the key already completed and ErrRequestAlreadyProcessed while another
// call holding the key is still running.
func (s *PurchaseService) claim(ctx context.Context, requestKey string) (*models.PurchaseResult, error) {
	ok, err := s.redisClient.SetNX(ctx, requestKey, idempotencyPending, idempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency store unavailable: %v", pkgerrors.ErrInternal, err)
	}
	if ok {
		return nil, nil
	}

	val, err := s.redisClient.Get(ctx, requestKey)
	if err != nil {
		if stderrors.Is(err, redis.ErrKeyNotFound) {
			// The holder failed and released the key in between.
			return nil, pkgerrors.ErrRequestAlreadyProcessed
		}
		return nil, fmt.Errorf("%w: idempotency store unavailable: %v", pkgerrors.ErrInternal, err)
	}
	if val == idempotencyPending {
		return nil, pkgerrors.ErrRequestAlreadyProcessed
	}
	var stored models.PurchaseResult
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		slog.Error("corrupt stored purchase result", "request_key", requestKey, "error", err)
		return nil, pkgerrors.ErrRequestAlreadyProcessed
	}
	return &stored, nil
}

func (s *PurchaseService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "GetOrder")
	defer span.End()

	order, err := s.orders.GetByID(ctx, userID, orderID)
	if err != nil {
		return nil, fail(span, err, "get order failed")
	}
	return order, nil
}

func (s *PurchaseService) ListOrders(ctx context.Context, userID int64, page repository.Page) ([]models.Order, int, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "ListOrders")
	defer span.End()

	orders, total, err := s.orders.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, 0, fail(span, err, "list orders failed")
	}
	return orders, total, nil
}
