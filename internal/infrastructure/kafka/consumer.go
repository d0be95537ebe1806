package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	maxAttempts       = 3
	defaultRetryDelay = 500 * time.Millisecond
	deadLetterSuffix  = ".dlq"
)

// Dispatcher handles one raw event payload.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

// DeadLetterSender receives messages that kept failing. *Producer satisfies it.
type DeadLetterSender interface {
	Send(ctx context.Context, topic string, key int64, value []byte) error
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      MessageReader
	dispatcher  Dispatcher
	deadLetters DeadLetterSender
	retryDelay  time.Duration
}

func NewConsumer(brokers, topics []string, groupID string, dispatcher Dispatcher) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupTopics: topics,
			GroupID:     groupID,
			MinBytes:    10e3,
			MaxBytes:    10e6,
		}),
		dispatcher: dispatcher,
		retryDelay: defaultRetryDelay,
	}
}

func NewConsumerWithReader(reader MessageReader, dispatcher Dispatcher) *Consumer {
	return &Consumer{reader: reader, dispatcher: dispatcher, retryDelay: defaultRetryDelay}
}

// WithDeadLetters forwards messages that fail every attempt to <topic>.dlq.
func (c *Consumer) WithDeadLetters(s DeadLetterSender) *Consumer {
	c.deadLetters = s
	return c
}

// Consume runs until ctx is cancelled. A message is committed once it has
// been handled; handlers must therefore be idempotent.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Kafka consumer stopped")
				return
			}
			slog.Error("failed to read Kafka message", "error", err)
			continue
		}

		slog.Debug("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Не коммитим: сообщение будет прочитано после перезапуска
				slog.Info("Kafka consumer stopped")
				return
			}
			slog.Error("failed to handle Kafka message", "topic", msg.Topic, "offset", msg.Offset, "attempts", maxAttempts, "error", err)
			c.deadLetter(ctx, msg)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// handle dispatches msg, retrying with a growing delay. Handlers are
// idempotent, so a retry after a partial failure is safe.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = c.dispatcher.Dispatch(ctx, msg.Value); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		slog.Warn("retrying Kafka message", "topic", msg.Topic, "offset", msg.Offset, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message) {
	if c.deadLetters == nil {
		return
	}
	key, _ := strconv.ParseInt(string(msg.Key), 10, 64)
	if err := c.deadLetters.Send(ctx, msg.Topic+deadLetterSuffix, key, msg.Value); err != nil {
		slog.Error("failed to dead-letter Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
