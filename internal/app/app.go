// Package app assembles repositories and services from configuration. It is
// shared by the server and the maintenance commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/ResaleServiceTochka/internal/config"
	"github.com/honeynil/ResaleServiceTochka/internal/handler"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	"github.com/honeynil/ResaleServiceTochka/internal/repository/memory"
	"github.com/honeynil/ResaleServiceTochka/internal/repository/postgres"
	service "github.com/honeynil/ResaleServiceTochka/internal/services"
	_ "github.com/lib/pq"
)

type Storage struct {
	Users     repository.UserRepository
	Products  repository.ProductRepository
	Orders    repository.OrderRepository
	Wallet    repository.WalletRepository
	Payments  repository.PaymentRepository
	Referrals repository.ReferralRepository
	Resources repository.Resources

	// DB is nil for the memory driver.
	DB     *sql.DB
	Checks map[string]handler.Check
}

// OpenStorage connects the configured driver. For Postgres it applies the
// SQL migrations and the resource table migrations before returning.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg.StorageDriver == config.DriverMemory {
		slog.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &Storage{
			Users:     store.Users(),
			Products:  store.Products(),
			Orders:    store.Orders(),
			Wallet:    store.Wallet(),
			Payments:  store.Payments(),
			Referrals: store.Referrals(),
			Resources: memory.NewResources(),
			Checks:    map[string]handler.Check{},
		}, nil
	}

	// Подключаемся к Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	gdb, err := postgres.OpenGorm(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := postgres.AutoMigrate(gdb); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate resource tables: %w", err)
	}
	slog.Info("connected to Postgres")

	return &Storage{
		Users:     postgres.NewPostgresUserRepository(db),
		Products:  postgres.NewPostgresProductRepository(db),
		Orders:    postgres.NewPostgresOrderRepository(db),
		Wallet:    postgres.NewPostgresWalletRepository(db),
		Payments:  postgres.NewPostgresPaymentRepository(db),
		Referrals: postgres.NewPostgresReferralRepository(db),
		Resources: postgres.NewGormResources(gdb),
		DB:        db,
		Checks:    map[string]handler.Check{"postgres": db.PingContext},
	}, nil
}

func (s *Storage) Close() {
	if s.DB == nil {
		return
	}
	if err := s.DB.Close(); err != nil {
		slog.Error("failed to close Postgres", "error", err)
	}
}

// NewServices builds every service on top of st.
func NewServices(st *Storage, cfg *config.Config, tokens *auth.TokenManager, redisClient redis.RedisClient, publisher service.EventPublisher) handler.Services {
	wallet := service.NewWalletService(st.Wallet, st.Users, redisClient, publisher)
	return handler.Services{
		Auth:      service.NewAuthService(st.Users, tokens, redisClient, publisher),
		Wallet:    wallet,
		Purchases: service.NewPurchaseService(st.Orders, redisClient, publisher),
		Payments: service.NewPaymentService(st.Payments, redisClient, publisher, service.PaymentConfig{
			Gateways:        cfg.PaymentGateways,
			MinAmount:       cfg.PaymentMinAmount,
			MaxAmount:       cfg.PaymentMaxAmount,
			WebhookSecret:   cfg.PaymentWebhookSecret,
			AllowSimulation: cfg.AllowPaymentSimulation,
		}),
		Referrals: service.NewReferralService(st.Referrals, st.Users, redisClient, publisher),
		Catalog:   service.NewCatalogService(st.Products, st.Resources.Stores, redisClient),
		Resources: service.NewResourceService(st.Resources, wallet, service.ResourceConfig{
			DomainFee: cfg.DomainFee,
			Plans:     cfg.SubscriptionPlans,
		}),
	}
}
