package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/honeynil/ResaleServiceTochka/internal/app"
	"github.com/honeynil/ResaleServiceTochka/internal/config"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/auth"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/redis"
	"github.com/honeynil/ResaleServiceTochka/internal/seed"
)

func main() {
	path := flag.String("file", "configs/catalog.yaml", "YAML seed file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel)

	if err := run(context.Background(), cfg, *path); err != nil {
		slog.Error("seed failed", "file", *path, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string) error {
	if cfg.StorageDriver == config.DriverMemory {
		slog.Warn("memory storage does not outlive this process, use SEED_FILE on the server instead")
	}

	file, err := seed.Load(path)
	if err != nil {
		return err
	}

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

	// Seeding is not a user action, so no events are published.
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	svc := app.NewServices(storage, cfg, tokens, redisClient, nil)

	report, err := seed.NewSeeder(svc.Auth, svc.Wallet, svc.Catalog, svc.Referrals).Apply(ctx, file)
	if err != nil {
		return err
	}
	slog.Info("seed complete",
		"file", path,
		"users_created", report.UsersCreated,
		"products_created", report.ProductsCreated,
		"codes_added", report.CodesAdded)
	return nil
}
