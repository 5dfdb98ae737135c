// Package ratelimit bounds per-customer request rates.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payment-orchestrator/internal/payerr"
)

// Limiter admits or rejects a processing attempt for a customer.
// A rejection is terminal for that attempt.
type Limiter interface {
	Allow(ctx context.Context, customerID string) error
}

// Counter is the key-counter surface the limiter needs from its backend.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisLimiter is a fixed-window counter backed by Redis: one counter key
// per customer per window, expired by Redis itself.
type RedisLimiter struct {
	client Counter
	limit  int64
	window time.Duration
	logger *zap.Logger
}

func NewRedisLimiter(client Counter, limit int64, window time.Duration, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, customerID string) error {
	key := WindowKey(customerID, time.Now(), l.window)

	count, err := l.client.Incr(ctx, key)
	if err != nil {
		// Redis being down must not admit unbounded traffic.
		l.logger.Error("rate limit counter unavailable",
			zap.Error(err),
			zap.String("customer_id", customerID))
		return fmt.Errorf("%w: limiter unavailable", payerr.ErrRateLimitExceeded)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window); err != nil {
			l.logger.Warn("failed to set rate limit window expiry",
				zap.Error(err),
				zap.String("key", key))
		}
	}

	if count > l.limit {
		return fmt.Errorf("%w: customer %s exceeded %d requests per %s",
			payerr.ErrRateLimitExceeded, customerID, l.limit, l.window)
	}

	return nil
}

// WindowKey computes the counter key for the window containing now.
func WindowKey(customerID string, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return fmt.Sprintf("ratelimit:%s:%d", customerID, bucket)
}
