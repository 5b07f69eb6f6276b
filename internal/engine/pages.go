package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/message"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// DefaultPageTTL bounds how long a cached page may outlive a missed invalidation.
const DefaultPageTTL = 30 * time.Second

const pagePrefix = "messages|"

// pages caches message pages. Every room has a generation bumped on each
// write; a page read before the bump is never stored after it.
type pages struct {
	store cache.Store[*models.Page]
	ttl   time.Duration

	mu    sync.Mutex
	epoch uint64 // bumped when every room is invalidated at once
	gen   map[roomkey.Key]uint64
}

func newPages(store cache.Store[*models.Page], ttl time.Duration) *pages {
	if store == nil {
		store = cache.Local(cache.NewMemory[*models.Page]())
	}
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	return &pages{store: store, ttl: ttl, gen: make(map[roomkey.Key]uint64)}
}

func roomPrefix(room roomkey.Key) string {
	return pagePrefix + room.String() + "|"
}

func pageKey(room roomkey.Key, page, size int) string {
	return roomPrefix(room) + strconv.Itoa(page) + "|" + strconv.Itoa(size)
}

// normalizePage applies the same bounds as the message store so equivalent
// requests share a cache entry.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = message.DefaultPageSize
	}
	if size > message.MaxPageSize {
		size = message.MaxPageSize
	}
	return page, size
}

// get returns a cached page or loads and caches it. The returned page is
// shared and must not be modified.
func (p *pages) get(ctx context.Context, room roomkey.Key, page, size int, load func() models.Page) *models.Page {
	key := pageKey(room, page, size)
	if cached, ok := p.store.Get(ctx, key); ok && cached != nil {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	p.mu.Lock()
	epoch, before := p.epoch, p.gen[room]
	p.mu.Unlock()

	loaded := load()

	p.mu.Lock()
	if p.epoch == epoch && p.gen[room] == before {
		p.store.Put(ctx, key, &loaded, p.ttl)
	}
	p.mu.Unlock()
	return &loaded
}

// invalidate drops every cached page of room.
func (p *pages) invalidate(ctx context.Context, room roomkey.Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen[room]++
	p.store.Invalidate(ctx, roomPrefix(room))
}

// invalidateAll drops every cached page.
func (p *pages) invalidateAll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.gen = make(map[roomkey.Key]uint64)
	p.store.Invalidate(ctx, pagePrefix)
}
