package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.AllowPaymentSimulation)
	assert.Equal(t, "50", cfg.DomainFee.String())
	assert.Len(t, cfg.SubscriptionPlans, 3)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("ALLOW_PAYMENT_SIMULATION", "true")
	t.Setenv("PAYMENT_GATEWAYS", "stripe")
	t.Setenv("SUBSCRIPTION_PLANS", "solo:19.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.True(t, cfg.AllowPaymentSimulation)
	assert.Equal(t, []string{"stripe"}, cfg.PaymentGateways)
	assert.Equal(t, "19.5", cfg.SubscriptionPlans["solo"].String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"UnknownDriver", map[string]string{"STORAGE_DRIVER": "mysql"}},
		{"BadDuration", map[string]string{"JWT_TTL": "soon"}},
		{"BadBool", map[string]string{"ALLOW_PAYMENT_SIMULATION": "maybe"}},
		{"MaxBelowMin", map[string]string{"PAYMENT_MIN_AMOUNT": "100", "PAYMENT_MAX_AMOUNT": "10"}},
		{"BadPlan", map[string]string{"SUBSCRIPTION_PLANS": "basic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRequireSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.RequireSecrets())

	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.RequireSecrets())
}

func TestParsePlans(t *testing.T) {
	plans, err := ParsePlans(" Basic:49 , pro:99.90 ")
	require.NoError(t, err)
	assert.Equal(t, "49", plans["basic"].String())
	assert.Equal(t, "99.9", plans["pro"].String())

	_, err = ParsePlans("free:0")
	assert.Error(t, err)
}
