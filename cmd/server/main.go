package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeynil/ResaleServiceTochka/internal/api"
	"github.com/honeynil/ResaleServiceTochka/internal/app"
	"github.com/honeynil/ResaleServiceTochka/internal/config"
	"github.com/honeynil/ResaleServiceTochka/internal/events"
	"github.com/honeynil/ResaleServiceTochka/internal/handler"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/kafka"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireSecrets()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем логи и трейсы
	observability.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, "resale-service", cfg.OTELEndpoint)
	defer shutdownTracing(context.Background())

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	redisClient, err := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	storage.Checks["redis"] = redisClient.Ping

	// События: Kafka, если заданы брокеры, иначе доставка в процессе
	dispatcher := events.NewDispatcher()
	var sender events.Sender = events.NewInlineSender(dispatcher)
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		sender = producer
	} else {
		slog.Warn("no Kafka brokers configured, events are handled in process")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	svc := app.NewServices(storage, cfg, tokens, redisClient, events.NewPublisher(sender))
	dispatcher.On(events.OrderCompleted, svc.Referrals.HandleOrderCompleted)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, []string{events.TopicOrders}, cfg.KafkaGroupID, dispatcher).
			WithDeadLetters(producer)
		defer consumer.Close()
		go consumer.Consume(ctx)
	}

	if cfg.SeedFile != "" {
		file, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		seeder := seed.NewSeeder(svc.Auth, svc.Wallet, svc.Catalog, svc.Referrals)
		if _, err := seeder.Apply(ctx, file); err != nil {
			return err
		}
	}

	router := api.SetupRouter(api.Deps{
		Handler:     handler.NewHandler(svc),
		Tokens:      tokens,
		Redis:       redisClient,
		APIKeys:     svc.Auth,
		Roles:       svc.Auth,
		Health:      storage.Checks,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
