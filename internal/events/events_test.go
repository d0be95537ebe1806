package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDispatchRoundTrip(t *testing.T) {
	d := NewDispatcher()

	var got OrderCompletedPayload
	calls := 0
	d.On(OrderCompleted, func(ctx context.Context, evt Event) error {
		calls++
		return json.Unmarshal(evt.Payload, &got)
	})

	p := NewPublisher(NewInlineSender(d))
	err := p.Publish(context.Background(), TopicOrders, 7, OrderCompleted, OrderCompletedPayload{
		OrderID:    42,
		UserID:     7,
		ProductID:  3,
		Quantity:   2,
		TotalPrice: decimal.RequireFromString("80.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(42), got.OrderID)
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(80)))
}

func TestDispatch(t *testing.T) {
	t.Run("UnknownTypeIgnored", func(t *testing.T) {
		evt, err := New("something.else", map[string]int{"a": 1})
		require.NoError(t, err)
		raw, _ := json.Marshal(evt)
		assert.NoError(t, NewDispatcher().Dispatch(context.Background(), raw))
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		assert.Error(t, NewDispatcher().Dispatch(context.Background(), []byte("{")))
	})

	t.Run("HandlerError", func(t *testing.T) {
		d := NewDispatcher()
		boom := errors.New("boom")
		d.On(UserRegistered, func(ctx context.Context, evt Event) error { return boom })

		evt, err := New(UserRegistered, UserRegisteredPayload{UserID: 1})
		require.NoError(t, err)
		raw, _ := json.Marshal(evt)
		assert.ErrorIs(t, d.Dispatch(context.Background(), raw), boom)
	})
}
