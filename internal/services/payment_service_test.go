package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callback(t *testing.T, cb PaymentCallback) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(cb)
	require.NoError(t, err)
	return body, Sign(webhookSecret, body)
}

func TestPaymentService_Initiate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, "payer@example.com", "0")

	p, err := env.payments.Initiate(ctx, u.ID, decimalOf("100"), "Stripe")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Equal(t, "stripe", p.Gateway)
	assert.NotEmpty(t, p.Reference)

	_, err = env.payments.Initiate(ctx, u.ID, decimalOf("100"), "bitcoin")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = env.payments.Initiate(ctx, u.ID, decimalOf("0"), "stripe")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = env.payments.Initiate(ctx, u.ID, decimalOf("1.005"), "stripe")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestPaymentService_Callback(t *testing.T) {
	ctx := context.Background()

	t.Run("replayed success credits once", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, "payer@example.com", "0")
		p, err := env.payments.Initiate(ctx, u.ID, decimalOf("250"), "stripe")
		require.NoError(t, err)

		body, sig := callback(t, PaymentCallback{PaymentID: p.ID, ExternalTxnID: "ch_1", Status: CallbackSuccess, Amount: decimalOf("250")})

		first, err := env.payments.HandleCallback(ctx, body, sig)
		require.NoError(t, err)
		assert.True(t, first.Credited)
		assert.Equal(t, "250.00", first.NewBalance.StringFixed(2))

		second, err := env.payments.HandleCallback(ctx, body, sig)
		require.NoError(t, err)
		assert.False(t, second.Credited)
		assert.Equal(t, models.PaymentConfirmed, second.Payment.Status)

		assert.Equal(t, "250.00", env.balance(t, u.ID).StringFixed(2))
		credits := env.publisher.ofType(events.WalletCredited)
		// One for the payment; the seed credit is skipped for zero balances.
		require.Len(t, credits, 1)
		payload := credits[0].Payload.(events.WalletCreditedPayload)
		assert.Equal(t, "stripe", payload.Source)
	})

	t.Run("bad signature", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, "payer@example.com", "0")
		p, err := env.payments.Initiate(ctx, u.ID, decimalOf("10"), "stripe")
		require.NoError(t, err)

		body, _ := callback(t, PaymentCallback{PaymentID: p.ID, ExternalTxnID: "ch_1", Status: CallbackSuccess})
		_, err = env.payments.HandleCallback(ctx, body, "deadbeef")
		assert.ErrorIs(t, err, pkgerrors.ErrUnauthorized)
		assert.True(t, env.balance(t, u.ID).IsZero())
	})

	t.Run("external id reused by another payment", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, "payer@example.com", "0")
		p1, err := env.payments.Initiate(ctx, u.ID, decimalOf("10"), "stripe")
		require.NoError(t, err)
		p2, err := env.payments.Initiate(ctx, u.ID, decimalOf("10"), "stripe")
		require.NoError(t, err)

		body, sig := callback(t, PaymentCallback{PaymentID: p1.ID, ExternalTxnID: "ch_dup", Status: CallbackSuccess})
		_, err = env.payments.HandleCallback(ctx, body, sig)
		require.NoError(t, err)

		body, sig = callback(t, PaymentCallback{PaymentID: p2.ID, ExternalTxnID: "ch_dup", Status: CallbackSuccess})
		_, err = env.payments.HandleCallback(ctx, body, sig)
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicatePayment)
		assert.Equal(t, "10.00", env.balance(t, u.ID).StringFixed(2))
	})

	t.Run("amount mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, "payer@example.com", "0")
		p, err := env.payments.Initiate(ctx, u.ID, decimalOf("10"), "stripe")
		require.NoError(t, err)

		body, sig := callback(t, PaymentCallback{PaymentID: p.ID, ExternalTxnID: "ch_1", Status: CallbackSuccess, Amount: decimalOf("11")})
		_, err = env.payments.HandleCallback(ctx, body, sig)
		assert.ErrorIs(t, err, pkgerrors.ErrAmountMismatch)
	})

	t.Run("failure then success", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, "payer@example.com", "0")
		p, err := env.payments.Initiate(ctx, u.ID, decimalOf("10"), "stripe")
		require.NoError(t, err)

		body, sig := callback(t, PaymentCallback{PaymentID: p.ID, Status: CallbackFailed})
		res, err := env.payments.HandleCallback(ctx, body, sig)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, res.Payment.Status)

		body, sig = callback(t, PaymentCallback{PaymentID: p.ID, ExternalTxnID: "ch_1", Status: CallbackSuccess})
		_, err = env.payments.HandleCallback(ctx, body, sig)
		assert.ErrorIs(t, err, pkgerrors.ErrPaymentFailed)
		assert.True(t, env.balance(t, u.ID).IsZero())
	})

	t.Run("unknown status", func(t *testing.T) {
		env := newTestEnv(t)
		body, sig := callback(t, PaymentCallback{PaymentID: 1, Status: "refunded"})
		_, err := env.payments.HandleCallback(ctx, body, sig)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestPaymentService_SimulateSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com", "0")
	stranger := env.user(t, "stranger@example.com", "0")

	p, err := env.payments.Initiate(ctx, owner.ID, decimalOf("75.50"), "paypal")
	require.NoError(t, err)

	_, err = env.payments.SimulateSuccess(ctx, stranger.ID, p.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrPaymentNotFound)

	res, err := env.payments.SimulateSuccess(ctx, owner.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Equal(t, "75.50", env.balance(t, owner.ID).StringFixed(2))

	disabled := NewPaymentService(env.store.Payments(), env.redis, env.publisher, PaymentConfig{Gateways: []string{"paypal"}})
	_, err = disabled.SimulateSuccess(ctx, owner.ID, p.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
}
