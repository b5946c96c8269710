package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"booking-engine/internal/config"
	"booking-engine/internal/db"
	"booking-engine/internal/logging"
	"booking-engine/internal/migrate"
	"booking-engine/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	connCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := db.NewPool(connCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer pool.Close()

	applied, err := migrate.Apply(context.Background(), pool, migrations.FS, logger)
	if err != nil {
		logger.Fatal("migration failed", zap.Int("applied", applied), zap.Error(err))
	}
	logger.Info("all migrations processed", zap.Int("applied", applied))
}
