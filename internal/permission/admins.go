package permission

import (
	"sort"
	"sync"
)

// Admins is the set of users allowed to export and import engine state.
type Admins struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewAdmins creates a set seeded with users.
func NewAdmins(users ...string) *Admins {
	a := &Admins{users: make(map[string]struct{})}
	for _, u := range users {
		if u != "" {
			a.users[u] = struct{}{}
		}
	}
	return a
}

func (a *Admins) Has(user string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.users[user]
	return ok
}

func (a *Admins) Add(user string) {
	a.mu.Lock()
	a.users[user] = struct{}{}
	a.mu.Unlock()
}

func (a *Admins) Remove(user string) {
	a.mu.Lock()
	delete(a.users, user)
	a.mu.Unlock()
}

// List returns the administrators in sorted order.
func (a *Admins) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.users))
	for u := range a.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Replace swaps the set for users plus the always-present seed.
func (a *Admins) Replace(users []string, seed ...string) {
	next := make(map[string]struct{}, len(users)+len(seed))
	for _, u := range users {
		if u != "" {
			next[u] = struct{}{}
		}
	}
	for _, u := range seed {
		if u != "" {
			next[u] = struct{}{}
		}
	}
	a.mu.Lock()
	a.users = next
	a.mu.Unlock()
}
