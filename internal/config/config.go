package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string
	StorageDriver string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KafkaBrokers  []string
	KafkaGroupID  string
	JWTSecret     string
	JWTTTL        time.Duration
	LogLevel      string
	OTELEndpoint  string
	CORSOrigins   []string
	SeedFile      string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	PaymentGateways        []string
	PaymentWebhookSecret   string
	AllowPaymentSimulation bool
	PaymentMinAmount       decimal.Decimal
	PaymentMaxAmount       decimal.Decimal

	DomainFee         decimal.Decimal
	SubscriptionPlans map[string]decimal.Decimal
}

// Load reads .env if present, then the environment. Malformed values are
// reported instead of silently replaced.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	var errs []string
	record := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	cfg := &Config{
		Port:                 getenv("PORT", "8080"),
		StorageDriver:        strings.ToLower(getenv("STORAGE_DRIVER", DriverPostgres)),
		PostgresDSN:          getenv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=resale sslmode=disable"),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:         list(os.Getenv("KAFKA_BROKERS")),
		KafkaGroupID:         getenv("KAFKA_GROUP_ID", "resale-service"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		OTELEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:          list(getenv("CORS_ORIGINS", "http://localhost:5173")),
		PaymentGateways:      list(getenv("PAYMENT_GATEWAYS", "stripe,paypal,moyasar")),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		SeedFile:             os.Getenv("SEED_FILE"),
	}

	var err error
	cfg.RedisDB, err = intEnv("REDIS_DB", 0)
	record(err)
	cfg.JWTTTL, err = durationEnv("JWT_TTL", 24*time.Hour)
	record(err)
	cfg.ReadTimeout, err = durationEnv("HTTP_READ_TIMEOUT", 10*time.Second)
	record(err)
	cfg.WriteTimeout, err = durationEnv("HTTP_WRITE_TIMEOUT", 15*time.Second)
	record(err)
	cfg.ShutdownTimeout, err = durationEnv("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	record(err)
	cfg.AllowPaymentSimulation, err = boolEnv("ALLOW_PAYMENT_SIMULATION", false)
	record(err)
	cfg.PaymentMinAmount, err = decimalEnv("PAYMENT_MIN_AMOUNT", "10")
	record(err)
	cfg.PaymentMaxAmount, err = decimalEnv("PAYMENT_MAX_AMOUNT", "50000")
	record(err)
	cfg.DomainFee, err = decimalEnv("DOMAIN_FEE", "50")
	record(err)
	cfg.SubscriptionPlans, err = ParsePlans(getenv("SUBSCRIPTION_PLANS", "basic:49,pro:99,enterprise:299"))
	record(err)

	if cfg.StorageDriver != DriverPostgres && cfg.StorageDriver != DriverMemory {
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be %q or %q", DriverPostgres, DriverMemory))
	}
	if cfg.PaymentMaxAmount.LessThan(cfg.PaymentMinAmount) {
		errs = append(errs, "PAYMENT_MAX_AMOUNT is below PAYMENT_MIN_AMOUNT")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	if cfg.PaymentWebhookSecret == "" {
		slog.Warn("PAYMENT_WEBHOOK_SECRET is empty, payment callbacks are not verified")
	}

	slog.Info("config loaded",
		"storage_driver", cfg.StorageDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"gateways", cfg.PaymentGateways)
	return cfg, nil
}

// RequireSecrets fails when a setting only the API server needs is missing.
func (c *Config) RequireSecrets() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// ParsePlans reads "name:price,name:price".
func ParsePlans(raw string) (map[string]decimal.Decimal, error) {
	plans := make(map[string]decimal.Decimal)
	for _, item := range list(raw) {
		name, price, ok := strings.Cut(item, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("SUBSCRIPTION_PLANS: malformed plan %q", item)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(price))
		if err != nil || !amount.IsPositive() {
			return nil, fmt.Errorf("SUBSCRIPTION_PLANS: bad price for %q", name)
		}
		plans[name] = amount
	}
	return plans, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func list(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(getenv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
