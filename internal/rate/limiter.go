package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds slow-down tuning parameters.
type Config struct {
	Window         time.Duration
	DelayAfter     int
	DelayIncrement time.Duration
	KeyPrefix      string
}

// Limiter applies a sliding request penalty per client IP using Redis
// counters. It never rejects: below DelayAfter hits per window a request
// proceeds immediately, at or above it the request is delayed by
// (hits - DelayAfter) × DelayIncrement, uncapped.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a slow-down [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "login_slow"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Reserve records a hit for the client and returns the delay the request
// owes before it may proceed. The counter increment is atomic, so concurrent
// requests each observe a distinct position in the window.
func (l *Limiter) Reserve(ctx context.Context, clientIP string) (time.Duration, error) {
	count, err := l.incrementWithTTL(ctx, l.key(clientIP), l.config.Window)
	if err != nil {
		return 0, err
	}

	over := count - int64(l.config.DelayAfter)
	if over <= 0 {
		return 0, nil
	}

	return time.Duration(over) * l.config.DelayIncrement, nil
}

// Hits returns the current window counter for a client. Missing keys return
// zero.
func (l *Limiter) Hits(ctx context.Context, clientIP string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(clientIP)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(clientIP string) string {
	if clientIP == "" {
		// Unattributed traffic shares one bucket rather than escaping the
		// penalty entirely.
		clientIP = "unknown"
	}
	return l.config.KeyPrefix + ":" + clientIP
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
