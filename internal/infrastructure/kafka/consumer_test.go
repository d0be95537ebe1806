package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// recordingDispatcher fails payload fail always and payload flaky on its
// first flakyFailures attempts.
type recordingDispatcher struct {
	seen          []string
	fail          string
	flaky         string
	flakyFailures int
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, raw []byte) error {
	d.seen = append(d.seen, string(raw))
	switch string(raw) {
	case d.fail:
		return errors.New("handler failed")
	case d.flaky:
		if d.flakyFailures > 0 {
			d.flakyFailures--
			return errors.New("database unavailable")
		}
	}
	return nil
}

type sentMessage struct {
	topic string
	key   int64
	value string
}

type fakeDeadLetters struct {
	sent []sentMessage
}

func (f *fakeDeadLetters) Send(ctx context.Context, topic string, key int64, value []byte) error {
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, value: string(value)})
	return nil
}

func TestConsumer_Consume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Topic: "orders", Offset: 1, Value: []byte("a")},
			{Topic: "orders", Offset: 2, Key: []byte("42"), Value: []byte("bad")},
			{Topic: "wallet", Offset: 3, Value: []byte("c")},
		},
	}
	dispatcher := &recordingDispatcher{fail: "bad"}
	dlq := &fakeDeadLetters{}

	consumer := NewConsumerWithReader(reader, dispatcher).WithDeadLetters(dlq)
	consumer.retryDelay = time.Millisecond
	consumer.Consume(ctx)

	assert.Equal(t, []string{"a", "bad", "bad", "bad", "c"}, dispatcher.seen)
	assert.Equal(t, []sentMessage{{topic: "orders.dlq", key: 42, value: "bad"}}, dlq.sent)
	// после dead-letter сообщение коммитится, партиция не стоит
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

func TestConsumer_RetriesTransientFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		cancel:   cancel,
		messages: []kafka.Message{{Topic: "orders", Offset: 7, Value: []byte("order")}},
	}
	dispatcher := &recordingDispatcher{flaky: "order", flakyFailures: 2}
	dlq := &fakeDeadLetters{}

	consumer := NewConsumerWithReader(reader, dispatcher).WithDeadLetters(dlq)
	consumer.retryDelay = time.Millisecond
	consumer.Consume(ctx)

	assert.Equal(t, []string{"order", "order", "order"}, dispatcher.seen)
	assert.Empty(t, dlq.sent)
	assert.Equal(t, []int64{7}, reader.committed)
}
