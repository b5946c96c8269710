package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "idem:"
	lockKeyPrefix        = "lock:"
)

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}

// IdempotencyStore remembers request keys for a TTL so a retried create is
// detected instead of executed twice.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Claim records key and reports whether this caller is the first to use it.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release forgets key so the request can be retried, used when it failed.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// Locker takes short-lived distributed locks. Failing to obtain one is logged
// and the caller proceeds without it.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *Locker {
	return &Locker{client: redislock.New(client), ttl: ttl, log: log}
}

func (l *Locker) TryLock(ctx context.Context, key string) func() {
	lock, err := l.client.Obtain(ctx, lockKeyPrefix+key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			l.log.Debug("lock held elsewhere, proceeding without it", zap.String("key", key))
		} else {
			l.log.Warn("failed to obtain lock", zap.String("key", key), zap.Error(err))
		}
		return func() {}
	}
	return func() {
		// The request context may already be done; release on a fresh one.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
}
