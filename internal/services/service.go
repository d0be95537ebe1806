package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventPublisher is satisfied by events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key int64, eventType string, payload any) error
}

const catalogKey = "catalog:products"

func balanceKey(userID int64) string {
	return fmt.Sprintf("user:%d:balance", userID)
}

// fail records err on the span and returns it unchanged.
func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

// invalidate drops cache entries. A failed delete only costs staleness until
// the TTL runs out, so it is logged and swallowed.
func invalidate(ctx context.Context, rc redis.RedisClient, keys ...string) {
	if rc == nil {
		return
	}
	if err := rc.Del(ctx, keys...); err != nil {
		observability.Logger(ctx).Error("failed to invalidate cache", "keys", keys, "error", err)
	}
}

// expire invalidates versioned cache entries so that a reader which loaded
// before the write cannot put its stale value back.
func expire(ctx context.Context, rc redis.RedisClient, keys ...string) {
	if rc == nil {
		return
	}
	if err := redis.Bump(ctx, rc, keys...); err != nil {
		observability.Logger(ctx).Error("failed to expire cache", "keys", keys, "error", err)
	}
}

// publish sends an event after the write it describes has committed. The
// write is never rolled back because of a broker failure.
func publish(ctx context.Context, p EventPublisher, topic string, key int64, eventType string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, topic, key, eventType, payload); err != nil {
		slog.Error("failed to publish event", "type", eventType, "topic", topic, "key", key, "error", err)
	}
}

// credited runs the post-commit side effects of any wallet credit.
func credited(ctx context.Context, rc redis.RedisClient, p EventPublisher, wt *models.WalletTransaction, source string) {
	expire(ctx, rc, balanceKey(wt.UserID))
	observability.WalletCredits.WithLabelValues(source).Inc()
	publish(ctx, p, events.TopicWallet, wt.UserID, events.WalletCredited, events.WalletCreditedPayload{
		UserID:     wt.UserID,
		Amount:     wt.Amount,
		Source:     source,
		Reference:  wt.Reference,
		NewBalance: wt.BalanceAfter,
	})
}
