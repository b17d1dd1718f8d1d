package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/fuelops/pkg/observability"
)

// DistributedRateLimiter implements a fixed window counter in Redis.
// This allows rate limits to be shared across multiple instances.
type DistributedRateLimiter struct {
	redis    redis.Cmdable
	config   *RateLimitConfig
	prefix   string
	fallback *RateLimiter
	logger   *observability.Logger
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter. When
// Redis cannot be reached requests are counted by an in-memory limiter
// with the same configuration.
func NewDistributedRateLimiter(redisClient redis.Cmdable, config *RateLimitConfig, prefix string, logger *observability.Logger) *DistributedRateLimiter {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &DistributedRateLimiter{
		redis:    redisClient,
		config:   config,
		prefix:   prefix,
		fallback: NewRateLimiter(config),
		logger:   logger,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Take counts one request against the current window for key
func (rl *DistributedRateLimiter) Take(ctx context.Context, key string) Decision {
	count, ttl, err := rl.incr(ctx, rl.key(key))
	if err != nil {
		rl.logger.WithContext(ctx).WithError(err).WithField("limiter", rl.prefix).
			Warn("redis rate limiter unavailable, using in-memory limiter")
		return rl.fallback.Take(ctx, key)
	}

	decision := Decision{Limit: rl.config.RequestsPerWindow}
	if count <= int64(rl.config.RequestsPerWindow) {
		decision.Allowed = true
		decision.Remaining = rl.config.RequestsPerWindow - int(count)
		return decision
	}

	decision.RetryAfter = ttl
	if decision.RetryAfter <= 0 {
		decision.RetryAfter = rl.config.WindowDuration
	}
	return decision
}

// incr increments the window counter and starts the window on first use.
// The expiry is only set once so the window does not slide.
func (rl *DistributedRateLimiter) incr(ctx context.Context, redisKey string) (int64, time.Duration, error) {
	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		ttl = rl.config.WindowDuration
	}
	return incr.Val(), ttl, nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.PTTL(ctx, rl.key(key)).Result()
}

// Reset clears the rate limit for a key (for testing or admin purposes)
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// HealthCheck pings Redis
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx).Err()
}
