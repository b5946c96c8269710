// Package bootstrap connects the engine to its backing services for the
// command-line entry points.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"booking-engine/internal/app"
	"booking-engine/internal/cache"
	"booking-engine/internal/config"
	"booking-engine/internal/core"
	"booking-engine/internal/db"
	"booking-engine/internal/events"
)

// Runtime owns the connections behind an ApplicationService.
type Runtime struct {
	Pool    *pgxpool.Pool
	Service app.ApplicationService
	// Idempotency is nil when Redis is not configured.
	Idempotency *cache.IdempotencyStore

	redis     *redis.Client
	publisher *events.Publisher
	log       *zap.Logger
}

// Open connects to Postgres and, when configured, Redis and RabbitMQ. Redis
// and RabbitMQ are optional: without them scan completion runs unlocked and
// domain events are dropped.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Runtime, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rt := &Runtime{Pool: pool, log: log}

	var locker core.Locker = core.NopLocker()
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		rt.redis = client
		rt.Idempotency = cache.NewIdempotencyStore(client, cfg.IdempotencyTTL)
		locker = cache.NewLocker(client, cfg.LockTTL, log)
	} else {
		log.Info("REDIS_URL not set; idempotency keys and completion locks disabled")
	}

	var publisher core.EventPublisher = core.NopPublisher()
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("amqp: %w", err)
		}
		rt.publisher = p
		publisher = p
	} else {
		log.Info("AMQP_URL not set; domain events disabled")
	}

	rt.Service = app.New(app.Deps{
		Pool:                pool,
		SerializableRetries: cfg.SerializableRetries,
		Log:                 log,
		Events:              publisher,
		Locker:              locker,
	})
	return rt, nil
}

// Close releases every connection Open made.
func (rt *Runtime) Close() {
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			rt.log.Warn("failed to close AMQP publisher", zap.Error(err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.log.Warn("failed to close redis client", zap.Error(err))
		}
	}
	rt.Pool.Close()
}
