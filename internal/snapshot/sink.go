package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNoSnapshot = errors.New("no snapshot stored")
	ErrCorrupt    = errors.New("snapshot is corrupt")
)

// Sink stores the latest encoded snapshot.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	// Read returns ErrNoSnapshot when nothing has been written yet.
	Read(ctx context.Context) ([]byte, error)
}

// FileSink keeps the snapshot in one file, replaced atomically on every write.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the snapshot file location.
func (s *FileSink) Path() string {
	return s.path
}

// Write stores data in a temporary file beside the target and renames it over
// the target, so readers see either the old or the new snapshot.
func (s *FileSink) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Read implements Sink.
func (s *FileSink) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// RedisSink keeps the snapshot under a single Redis key.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink creates a sink writing to key.
func NewRedisSink(client *redis.Client, key string) *RedisSink {
	return &RedisSink{client: client, key: key}
}

// Write implements Sink.
func (s *RedisSink) Write(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot to redis: %w", err)
	}
	return nil
}

// Read implements Sink.
func (s *RedisSink) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot from redis: %w", err)
	}
	return data, nil
}
