package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// QuotaKeyPrefix namespaces quota counters.
const QuotaKeyPrefix = "ticket-aggregator:quota"

// Quota is a fixed-window request counter shared by every replica using the
// same Redis. Each provider gets its own counter per window.
type Quota struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewQuota returns nil when limit or window is not positive, which callers
// treat as no quota.
func NewQuota(r *Redis, limit int, window time.Duration) *Quota {
	if r == nil || r.Client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	return &Quota{client: r.Client, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one request for provider and reports whether it fits the
// current window.
func (q *Quota) Allow(ctx context.Context, provider string) (bool, error) {
	key := q.key(provider, q.now())

	var incr *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*q.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("quota %s: %w", provider, err)
	}
	return incr.Val() <= q.limit, nil
}

func (q *Quota) key(provider string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", QuotaKeyPrefix, provider, now.UnixNano()/int64(q.window))
}
