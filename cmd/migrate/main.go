package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/honeynil/ResaleServiceTochka/internal/app"
	"github.com/honeynil/ResaleServiceTochka/internal/config"
	"github.com/honeynil/ResaleServiceTochka/internal/infrastructure/observability"
)

// migrate applies the SQL migrations and the resource table migrations and
// exits. The server does the same on start; this is for deploy pipelines.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel)

	if cfg.StorageDriver != config.DriverPostgres {
		slog.Info("nothing to migrate", "storage_driver", cfg.StorageDriver)
		return
	}

	storage, err := app.OpenStorage(context.Background(), cfg)
	if err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	storage.Close()
	slog.Info("migrations applied")
}
