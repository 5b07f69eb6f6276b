package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oleg-messenger/oleg/internal/metrics"
)

// NewRedisClient connects to redisURL and verifies the connection. The client
// backs the shared rate limiter, page cache, session table and snapshot sink.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := PingRedis(ctx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// PingRedis checks the connection and records its latency.
func PingRedis(ctx context.Context, client *redis.Client) error {
	start := time.Now()
	err := client.Ping(ctx).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}
