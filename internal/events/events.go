// Package events defines the domain events exchanged over Kafka and the
// dispatcher that routes them to handlers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrders = "orders"
	TopicWallet = "wallet"
	TopicUsers  = "users"

	OrderCompleted = "order.completed"
	WalletCredited = "wallet.credited"
	UserRegistered = "user.registered"
)

// Topics lists every topic the service produces to.
var Topics = []string{TopicOrders, TopicWallet, TopicUsers}

type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type OrderCompletedPayload struct {
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type WalletCreditedPayload struct {
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Source     string          `json:"source"`
	Reference  string          `json:"reference"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type UserRegisteredPayload struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	ReferredBy *int64 `json:"referred_by,omitempty"`
}

func New(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

// Sender is the transport, satisfied by the Kafka producer.
type Sender interface {
	Send(ctx context.Context, topic string, key int64, value []byte) error
}

type Publisher struct {
	sender Sender
}

func NewPublisher(sender Sender) *Publisher {
	return &Publisher{sender: sender}
}

func (p *Publisher) Publish(ctx context.Context, topic string, key int64, eventType string, payload any) error {
	evt, err := New(eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.sender.Send(ctx, topic, key, data)
}

type Handler func(ctx context.Context, evt Event) error

// Dispatcher routes decoded events to the handlers registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

func (d *Dispatcher) On(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	d.mu.RLock()
	handlers := d.handlers[evt.Type]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		slog.Debug("no handlers for event", "type", evt.Type, "event_id", evt.ID)
		return nil
	}
	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			return fmt.Errorf("handle %s %s: %w", evt.Type, evt.ID, err)
		}
	}
	return nil
}

// InlineSender delivers events straight to a dispatcher. Used when no
// brokers are configured.
type InlineSender struct {
	dispatcher *Dispatcher
}

func NewInlineSender(d *Dispatcher) *InlineSender {
	return &InlineSender{dispatcher: d}
}

func (s *InlineSender) Send(ctx context.Context, topic string, key int64, value []byte) error {
	if err := s.dispatcher.Dispatch(ctx, value); err != nil {
		slog.Error("inline event handling failed", "topic", topic, "key", key, "error", err)
		return err
	}
	return nil
}
