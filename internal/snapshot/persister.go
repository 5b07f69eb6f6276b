package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/metrics"
)

// Persister writes snapshots on a single goroutine. Every Trigger bumps the
// requested version; the writer captures the current state and records the
// version it covers, so a write never replaces a newer one.
type Persister struct {
	sink    Sink
	capture func() Document
	logger  zerolog.Logger

	requested atomic.Int64
	wake      chan struct{}

	mu      sync.Mutex // serializes writes
	written int64
}

// NewPersister creates a persister. capture must return a consistent view of
// the state at the moment it is called.
func NewPersister(sink Sink, capture func() Document, logger zerolog.Logger) *Persister {
	return &Persister{
		sink:    sink,
		capture: capture,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Trigger requests a snapshot and returns its version. It never blocks.
func (p *Persister) Trigger() int64 {
	v := p.requested.Add(1)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return v
}

// Requested returns the latest requested version.
func (p *Persister) Requested() int64 {
	return p.requested.Load()
}

// Written returns the version covered by the last successful write.
func (p *Persister) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Run writes pending snapshots until ctx is done, then flushes once more.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.Flush(flushCtx); err != nil {
				p.logger.Warn().Err(err).Msg("final snapshot failed")
			}
			cancel()
			return
		case <-p.wake:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("snapshot write failed, continuing in memory")
			}
		}
	}
}

// Flush writes a snapshot now if any version newer than the last write is pending.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.requested.Load()
	if target <= p.written {
		return nil
	}

	start := time.Now()
	data, err := Encode(p.capture())
	if err == nil {
		err = p.sink.Write(ctx, data)
	}
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		return err
	}
	metrics.SnapshotWrites.WithLabelValues("ok").Inc()
	p.written = target
	p.logger.Debug().Int64("version", target).Int("bytes", len(data)).Msg("snapshot written")
	return nil
}

// Load reads and decodes the stored snapshot. A missing or corrupt snapshot
// yields an empty document and is logged, never returned as an error.
func Load(ctx context.Context, sink Sink, logger zerolog.Logger) Document {
	data, err := sink.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		logger.Info().Msg("no snapshot found, starting empty")
		return Document{}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("snapshot unreadable, starting empty")
		return Document{}
	}
	doc, err := Decode(data)
	if err != nil {
		logger.Warn().Err(err).Msg("snapshot corrupt, starting empty")
		return Document{}
	}
	logger.Info().
		Int("users", len(doc.Users)).
		Int("guilds", len(doc.Guilds)).
		Int("rooms", len(doc.Messages)).
		Msg("snapshot loaded")
	return doc
}
