package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int
}

// Memory is an in-process Counter. A bucket's window starts at its first hit.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemory creates an empty in-memory counter.
func NewMemory() *Memory {
	return &Memory{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// CheckAndIncrement implements Counter. Rejected hits are not counted.
func (m *Memory) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		b = &bucket{start: now}
		m.buckets[key] = b
	}

	resetAt := b.start.Add(window)
	if b.count >= limit {
		return false, 0, resetAt
	}
	b.count++
	return true, limit - b.count, resetAt
}

// Sweep drops buckets whose window ended more than window ago.
func (m *Memory) Sweep(window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, b := range m.buckets {
		if now.Sub(b.start) >= window {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Run sweeps expired buckets every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(window)
		}
	}
}
