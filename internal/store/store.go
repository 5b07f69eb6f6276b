package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/models"
)

// Mirror is an optional relational copy of users, guilds, channels and
// messages. Both PostgresStore and SQLiteStore implement this interface. The
// in-memory engine state is authoritative; the mirror is never read back.
type Mirror interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Users
	UpsertUser(ctx context.Context, u models.User) error
	DeleteUser(ctx context.Context, username string) error

	// Guilds and their channels
	UpsertGuild(ctx context.Context, g *models.Guild) error
	DeleteGuild(ctx context.Context, guildID string) error

	// Messages
	SaveMessage(ctx context.Context, m *models.Message) error
	DeleteMessage(ctx context.Context, id string) error

	// Counts for the stats endpoint
	Counts(ctx context.Context) (Counts, error)
}

// Counts summarizes mirrored rows.
type Counts struct {
	Users    int64 `json:"users"`
	Guilds   int64 `json:"guilds"`
	Channels int64 `json:"channels"`
	Messages int64 `json:"messages"`
}

const (
	queueSize = 1024
	opTimeout = 5 * time.Second
)

type op struct {
	name string
	fn   func(ctx context.Context, m Mirror) error
}

// Queue applies mirror writes on one goroutine so callers never wait on the
// database. Failed and dropped writes are logged and counted only.
type Queue struct {
	mirror Mirror
	driver string
	logger zerolog.Logger
	inbox  chan op
}

// NewQueue creates a queue in front of mirror. A nil mirror makes every
// Enqueue a no-op.
func NewQueue(mirror Mirror, driver string, logger zerolog.Logger) *Queue {
	return &Queue{
		mirror: mirror,
		driver: driver,
		logger: logger,
		inbox:  make(chan op, queueSize),
	}
}

// Enabled reports whether a mirror is attached.
func (q *Queue) Enabled() bool {
	return q != nil && q.mirror != nil
}

// Enqueue schedules a write. It never blocks; when the queue is full the write is dropped.
func (q *Queue) Enqueue(name string, fn func(ctx context.Context, m Mirror) error) {
	if !q.Enabled() {
		return
	}
	select {
	case q.inbox <- op{name: name, fn: fn}:
	default:
		metrics.MirrorErrors.WithLabelValues(name).Inc()
		q.logger.Warn().Str("operation", name).Msg("mirror queue full, dropping write")
	}
}

// Run applies queued writes until ctx is done, then drains what is left.
func (q *Queue) Run(ctx context.Context) {
	if !q.Enabled() {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case o := <-q.inbox:
					q.apply(o)
				default:
					return
				}
			}
		case o := <-q.inbox:
			q.apply(o)
		}
	}
}

// apply runs detached from the caller so writes queued before shutdown still land.
func (q *Queue) apply(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	start := time.Now()
	err := o.fn(ctx, q.mirror)
	metrics.DatabaseLatency.WithLabelValues(q.driver).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MirrorErrors.WithLabelValues(o.name).Inc()
		q.logger.Warn().Err(err).Str("operation", o.name).Msg("mirror write failed")
	}
}

// Close releases the mirror connection.
func (q *Queue) Close() {
	if q.Enabled() {
		q.mirror.Close()
	}
}

// Ping checks the mirror connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.mirror.Ping(ctx)
}

// Counts reads row counts from the mirror.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	return q.mirror.Counts(ctx)
}

// Driver names the attached database.
func (q *Queue) Driver() string {
	return q.driver
}
