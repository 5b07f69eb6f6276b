// Package engine is the single entry point for every command that reads or
// changes chat state. A mutating command runs rate limiting, then permission
// checks, then the store mutation, then cache invalidation, then broadcast,
// then a snapshot trigger.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/auth"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/message"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/permission"
	"github.com/oleg-messenger/oleg/internal/presence"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
	"github.com/oleg-messenger/oleg/internal/roomkey"
	"github.com/oleg-messenger/oleg/internal/snapshot"
	"github.com/oleg-messenger/oleg/internal/social"
	"github.com/oleg-messenger/oleg/internal/store"
)

// TypingSweepInterval is how often stale typing indicators are cleared.
const TypingSweepInterval = 2 * time.Second

// Options wires the engine to its collaborators. Only Broadcaster and Auth
// are required.
type Options struct {
	Broadcaster Broadcaster
	Auth        *auth.Provider
	Blobs       *blob.Store       // nil disables uploads
	Limiter     *ratelimit.Limiter // nil uses an in-memory limiter
	Pages       cache.Store[*models.Page]
	PageTTL     time.Duration
	Sink        snapshot.Sink // nil keeps state in memory only
	Mirror      *store.Queue  // nil disables the relational mirror
	Admins      []string      // always administrators, whatever a snapshot says
	Logger      zerolog.Logger
}

// Engine owns the chat state.
type Engine struct {
	// mu is held shared by commands and exclusively while the whole state is
	// captured or replaced.
	mu sync.RWMutex
	// statusMu orders presence transitions with their announcements.
	statusMu sync.Mutex

	users    *social.Store
	guilds   *guild.Store
	messages *message.Store
	presence *presence.Tracker
	admins   *permission.Admins
	gate     *permission.Gate

	seedAdmins []string
	bus        Broadcaster
	auth       *auth.Provider
	blobs      *blob.Store
	limiter    *ratelimit.Limiter
	pages      *pages
	sink       snapshot.Sink
	persister  *snapshot.Persister
	mirror     *store.Queue
	logger     zerolog.Logger
}

// New creates an engine with empty state. Call Load to restore a snapshot.
func New(opts Options) *Engine {
	e := &Engine{
		users:      social.New(),
		guilds:     guild.New(),
		messages:   message.New(),
		presence:   presence.New(),
		admins:     permission.NewAdmins(opts.Admins...),
		seedAdmins: append([]string(nil), opts.Admins...),
		bus:        opts.Broadcaster,
		auth:       opts.Auth,
		blobs:      opts.Blobs,
		limiter:    opts.Limiter,
		pages:      newPages(opts.Pages, opts.PageTTL),
		sink:       opts.Sink,
		mirror:     opts.Mirror,
		logger:     opts.Logger.With().Str("component", "engine").Logger(),
	}
	e.gate = permission.NewGate(e.guilds, e.admins)
	if e.limiter == nil {
		e.limiter = ratelimit.New(ratelimit.NewMemory(), nil)
	}
	if e.mirror == nil {
		e.mirror = store.NewQueue(nil, "", e.logger)
	}
	if e.sink != nil {
		e.persister = snapshot.NewPersister(e.sink, e.capture, e.logger.With().Str("component", "snapshot").Logger())
	}
	return e
}

// Load restores the stored snapshot. A missing or corrupt snapshot leaves the
// state empty.
func (e *Engine) Load(ctx context.Context) {
	if e.sink == nil {
		return
	}
	doc := snapshot.Load(ctx, e.sink, e.logger)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.install(ctx, snapshot.Restore(doc))
}

// Run drives the background work (snapshot writer, typing sweep, mirror
// queue) until ctx is done. Pending snapshots are flushed before it returns.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if e.persister != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.persister.Run(ctx)
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.presence.Run(ctx, TypingSweepInterval, e.typingExpired)
	}()
	go func() {
		defer wg.Done()
		e.mirror.Run(ctx)
	}()
	wg.Wait()
}

// Flush writes any pending snapshot synchronously.
func (e *Engine) Flush(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	return e.persister.Flush(ctx)
}

func (e *Engine) typingExpired(t presence.Typist) {
	e.bus.Emit(EventUserTyping, Typing{Username: t.User, Typing: false, Room: t.Room.String()}, ToRoom(t.Room))
}

// capture snapshots the whole state under the exclusive lock.
func (e *Engine) capture() snapshot.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.captureLocked()
}

func (e *Engine) captureLocked() snapshot.Document {
	return snapshot.Capture(snapshot.State{
		Social:   e.users.Export(),
		Guilds:   e.guilds.Export(),
		Messages: e.messages.Export(),
		Admins:   e.admins.List(),
	})
}

// install replaces every store. Callers hold e.mu exclusively.
func (e *Engine) install(ctx context.Context, st snapshot.State) {
	e.users.Replace(st.Social)
	e.guilds.Replace(st.Guilds)
	e.messages.Replace(st.Messages)
	e.admins.Replace(st.Admins, e.seedAdmins...)
	for _, u := range e.users.List() {
		// Online flags in a snapshot are stale; live connections decide.
		e.users.SetOnline(u.Username, e.presence.Online(u.Username))
		e.provision(u.Username)
	}
	e.pages.invalidateAll(ctx)
}

// invalidate drops the cached pages of the given rooms.
func (e *Engine) invalidate(ctx context.Context, rooms ...roomkey.Key) {
	for _, room := range rooms {
		e.pages.invalidate(ctx, room)
	}
}

// persist schedules a snapshot. Callers invoke it after their broadcasts so a
// snapshot never records a change its recipients have not been told about.
func (e *Engine) persist() {
	if e.persister != nil {
		e.persister.Trigger()
	}
}

func (e *Engine) emit(event string, payload any, to Target) {
	e.bus.Emit(event, payload, to)
}

// allow applies the rate limit for action, counting rejections.
func (e *Engine) allow(ctx context.Context, actor, action string) bool {
	if e.limiter.Allow(ctx, actor, action) {
		return true
	}
	metrics.RateLimitHits.WithLabelValues(action).Inc()
	e.logger.Debug().Str("user", actor).Str("action", action).Msg("rate limited")
	return false
}

// requireUser fails unless username is registered.
func (e *Engine) requireUser(username string) error {
	if !e.users.Exists(username) {
		return apperr.ErrUserNotFound
	}
	return nil
}

// Reason maps an error to the reason sent in permission_error events.
func Reason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrChannelNotFound):
		return "channel_not_found"
	case errors.Is(err, apperr.ErrChannelReadOnly):
		return "read_only"
	case errors.Is(err, apperr.ErrPinForbidden):
		return "pin_forbidden"
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindValidation:
		return "invalid"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Stats summarizes the in-memory state.
type Stats struct {
	Users       int `json:"users"`
	OnlineUsers int `json:"online_users"`
	Guilds      int `json:"guilds"`
	Rooms       int `json:"rooms"`
	Messages    int `json:"messages"`
}

// Stats counts users, guilds, rooms and messages.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rooms, msgs := e.messages.Count()
	return Stats{
		Users:       len(e.users.List()),
		OnlineUsers: len(e.presence.OnlineUsers()),
		Guilds:      e.guilds.Count(),
		Rooms:       rooms,
		Messages:    msgs,
	}
}
