package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// Hub tracks live connections and room subscriptions and fans events out to
// them. It implements engine.Broadcaster.
type Hub struct {
	mu sync.RWMutex

	// Connection id -> client
	clients map[string]*Client

	// Username -> connection ids
	byUser map[string]map[string]bool

	// Room -> subscribed connection ids
	rooms map[roomkey.Key]map[string]bool

	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		byUser:  make(map[string]map[string]bool),
		rooms:   make(map[roomkey.Key]map[string]bool),
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// Run blocks until ctx is done and then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info().Int("connections", len(clients)).Msg("hub stopped")
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
	if h.byUser[c.user] == nil {
		h.byUser[c.user] = make(map[string]bool)
	}
	h.byUser[c.user][c.id] = true
	metrics.Connections.Inc()
	h.logger.Debug().Str("conn", c.id).Str("user", c.user).Msg("client registered")
}

// unregister removes a client with any subscriptions it still holds and
// closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	delete(h.byUser[c.user], c.id)
	if len(h.byUser[c.user]) == 0 {
		delete(h.byUser, c.user)
	}
	for room, subs := range h.rooms {
		if subs[c.id] {
			delete(subs, c.id)
			if len(subs) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	metrics.Connections.Dec()
	h.logger.Debug().Str("conn", c.id).Str("user", c.user).Msg("client unregistered")
}

// Emit encodes the event once and queues it for every targeted connection.
// A client whose buffer is full misses the frame.
func (h *Hub) Emit(event string, payload any, to engine.Target) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("dropping unencodable event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.targets(to) {
		select {
		case c.send <- frame:
		default:
			metrics.FramesDropped.Inc()
			h.logger.Warn().Str("conn", c.id).Str("event", event).Msg("client buffer full, frame dropped")
		}
	}
}

// targets resolves a target to clients. Callers hold h.mu.
func (h *Hub) targets(to engine.Target) []*Client {
	var out []*Client
	switch {
	case to.All:
		for _, c := range h.clients {
			out = append(out, c)
		}
	case to.Conn != "":
		if c, ok := h.clients[to.Conn]; ok {
			out = append(out, c)
		}
	case len(to.Users) > 0:
		seen := make(map[string]bool)
		for _, u := range to.Users {
			if seen[u] {
				continue
			}
			seen[u] = true
			for id := range h.byUser[u] {
				out = append(out, h.clients[id])
			}
		}
	case !to.Room.IsZero():
		for id := range h.rooms[to.Room] {
			if c, ok := h.clients[id]; ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// Join subscribes a connection to a room.
func (h *Hub) Join(conn string, room roomkey.Key) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[conn]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][conn] = true
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(conn string, room roomkey.Key) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms[room], conn)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

// Rooms lists the rooms a connection subscribes to.
func (h *Hub) Rooms(conn string) []roomkey.Key {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []roomkey.Key
	for room, subs := range h.rooms {
		if subs[conn] {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
