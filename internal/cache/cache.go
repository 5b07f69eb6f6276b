// Package cache provides TTL caches: an in-process generic map with a background
// sweep and a Redis-backed equivalent for sharing entries across processes.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the contract shared by the memory and Redis caches.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Put(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// Invalidate removes the key equal to prefix and every key starting with it.
	Invalidate(ctx context.Context, prefix string)
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Memory is a TTL map safe for concurrent use. Expired entries are never
// returned; Sweep reclaims them.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time
}

// NewMemory creates an empty cache.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory[V]) WithClock(now func() time.Time) *Memory[V] {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// Get returns the value stored under key if it has not expired.
func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key for ttl.
func (m *Memory[V]) Put(key string, value V, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, expires: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Delete removes key.
func (m *Memory[V]) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Invalidate removes every key equal to or starting with prefix.
func (m *Memory[V]) Invalidate(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (m *Memory[V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Memory[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Local adapts a Memory cache to the Store interface.
func Local[V any](m *Memory[V]) Store[V] {
	return local[V]{m}
}

type local[V any] struct {
	m *Memory[V]
}

func (l local[V]) Get(_ context.Context, key string) (V, bool) { return l.m.Get(key) }

func (l local[V]) Put(_ context.Context, key string, value V, ttl time.Duration) {
	l.m.Put(key, value, ttl)
}

func (l local[V]) Delete(_ context.Context, key string) { l.m.Delete(key) }

func (l local[V]) Invalidate(_ context.Context, prefix string) { l.m.Invalidate(prefix) }
