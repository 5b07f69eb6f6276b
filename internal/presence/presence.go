// Package presence counts live connections per user and tracks typing
// indicators. It reports transitions; broadcasting them is the caller's job.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// TypingTTL is how long a typing indicator lives without a refresh.
const TypingTTL = 10 * time.Second

// Typist is a user typing in a room.
type Typist struct {
	Room roomkey.Key
	User string
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	conns  map[string]map[string]struct{} // user -> connection ids
	typing map[Typist]time.Time          // -> expiry
	ttl    time.Duration
	now    func() time.Time
}

// New creates a tracker with the default typing TTL.
func New() *Tracker {
	return &Tracker{
		conns:  make(map[string]map[string]struct{}),
		typing: make(map[Typist]time.Time),
		ttl:    TypingTTL,
		now:    time.Now,
	}
}

// Connect registers a connection. It reports true when this is the user's
// first live connection, i.e. the user just came online.
func (t *Tracker) Connect(user, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[user]
	if !ok {
		set = make(map[string]struct{})
		t.conns[user] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}
	return len(set) == 1
}

// Disconnect removes a connection. It reports true when it was the user's last
// one, i.e. the user just went offline. Unknown connections report false, so a
// connection can never produce two offline transitions.
func (t *Tracker) Disconnect(user, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[user]
	if !ok {
		return false
	}
	if _, known := set[connID]; !known {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(t.conns, user)
	return true
}

// Online reports whether user has a live connection.
func (t *Tracker) Online(user string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[user]) > 0
}

// Connections returns the number of live connections of user.
func (t *Tracker) Connections(user string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[user])
}

// OnlineUsers returns every connected user, sorted.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.conns))
	for u := range t.conns {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Typing starts or stops a typing indicator. It reports whether the indicator
// changed state; refreshing an active indicator extends it and reports false.
func (t *Tracker) Typing(room roomkey.Key, user string, on bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := Typist{Room: room, User: user}
	_, active := t.typing[k]
	if on {
		t.typing[k] = t.now().Add(t.ttl)
		return !active
	}
	delete(t.typing, k)
	return active
}

// Typists returns the users currently typing in room, sorted.
func (t *Tracker) Typists(room roomkey.Key) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []string
	for k, exp := range t.typing {
		if k.Room == room && now.Before(exp) {
			out = append(out, k.User)
		}
	}
	sort.Strings(out)
	return out
}

// ClearUser stops every typing indicator of user and returns the rooms affected.
func (t *Tracker) ClearUser(user string) []roomkey.Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rooms []roomkey.Key
	for k := range t.typing {
		if k.User == user {
			delete(t.typing, k)
			rooms = append(rooms, k.Room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].String() < rooms[j].String() })
	return rooms
}

// Sweep removes expired typing indicators and returns them.
func (t *Tracker) Sweep() []Typist {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []Typist
	for k, exp := range t.typing {
		if !now.Before(exp) {
			delete(t.typing, k)
			expired = append(expired, k)
		}
	}
	return expired
}

// Run sweeps every interval until ctx is done, passing expired indicators to onExpire.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, onExpire func(Typist)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, typist := range t.Sweep() {
				onExpire(typist)
			}
		}
	}
}
