package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const scanBatch = 100

// Redis stores JSON-encoded values under a key namespace. Errors are logged and
// treated as misses.
type Redis[V any] struct {
	client    *redis.Client
	namespace string
	logger    zerolog.Logger
}

// NewRedis creates a cache whose keys are prefixed with namespace.
func NewRedis[V any](client *redis.Client, namespace string, logger zerolog.Logger) *Redis[V] {
	return &Redis[V]{client: client, namespace: namespace, logger: logger}
}

func (r *Redis[V]) key(k string) string {
	return r.namespace + k
}

// Get implements Store.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var v V
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache entry corrupt")
		return v, false
	}
	return v, true
}

// Put implements Store.
func (r *Redis[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache put failed")
	}
}

// Delete implements Store.
func (r *Redis[V]) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// Invalidate implements Store using SCAN so large keyspaces are not blocked.
func (r *Redis[V]) Invalidate(ctx context.Context, prefix string) {
	pattern := escapeGlob(r.key(prefix)) + "*"
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			r.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn().Err(err).Str("prefix", prefix).Msg("cache scan failed")
	}
	if len(batch) > 0 {
		r.del(ctx, batch)
	}
}

func (r *Redis[V]) del(ctx context.Context, keys []string) {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn().Err(err).Int("keys", len(keys)).Msg("cache invalidate failed")
	}
}

// escapeGlob escapes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
