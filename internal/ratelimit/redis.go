package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Counter shared by every process using the same Redis instance.
// Windows are aligned to wall-clock multiples of the window length.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis creates a Redis-backed counter.
func NewRedis(client *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// CheckAndIncrement implements Counter. Redis errors fail open.
func (r *Redis) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	secs := int64(window.Seconds())
	if secs <= 0 {
		secs = 1
	}
	bucketStart := now.Unix() / secs * secs
	resetAt := time.Unix(bucketStart+secs, 0)

	// Fixed window key based on the current time bucket
	windowKey := fmt.Sprintf("%s:%d", key, bucketStart)

	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("rate limit counter unavailable")
		return true, limit, resetAt
	}

	count := incr.Val()
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining, resetAt
}
