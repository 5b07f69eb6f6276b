package social

import (
	"github.com/oleg-messenger/oleg/internal/models"
)

// State is a detached copy of the social graph with every set flattened to a
// sorted list.
type State struct {
	Users       map[string]models.User
	Friendships map[string][]string
	Incoming    map[string][]string
	Outgoing    map[string][]string
}

// Export copies the graph.
func (s *Store) Export() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Users:       make(map[string]models.User, len(s.users)),
		Friendships: make(map[string][]string, len(s.friends)),
		Incoming:    make(map[string][]string, len(s.requests.in)),
		Outgoing:    make(map[string][]string, len(s.requests.out)),
	}
	for name, u := range s.users {
		st.Users[name] = u.Clone()
	}
	for name, f := range s.friends {
		st.Friendships[name] = f.sorted()
	}
	for name := range s.requests.in {
		st.Incoming[name] = s.requests.incoming(name)
	}
	for name := range s.requests.out {
		st.Outgoing[name] = s.requests.outgoing(name)
	}
	return st
}

// Replace swaps the whole graph for st. Friendships are made symmetric and a
// request listed on either side is restored on both. Edges and notes naming
// unknown users are dropped, and requests pending in both directions become a
// friendship.
func (s *Store) Replace(st State) {
	users := make(map[string]*models.User, len(st.Users))
	for name, u := range st.Users {
		cp := u.Clone()
		cp.Username = name
		users[name] = &cp
	}
	for name, u := range users {
		for target, note := range u.Notes {
			if _, ok := users[target]; !ok || target == name || note == "" {
				delete(u.Notes, target)
			}
		}
		if len(u.Notes) == 0 {
			u.Notes = nil
		}
	}
	known := func(a, b string) bool {
		_, okA := users[a]
		_, okB := users[b]
		return okA && okB && a != b
	}

	next := &Store{
		users:    users,
		friends:  make(map[string]set),
		requests: newRequests(),
	}
	for a, list := range st.Friendships {
		for _, b := range list {
			if known(a, b) {
				next.link(a, b)
			}
		}
	}
	request := func(from, to string) {
		switch {
		case !known(from, to) || next.areFriends(from, to):
		case next.requests.has(to, from):
			next.requests.remove(to, from)
			next.link(from, to)
		default:
			next.requests.add(from, to)
		}
	}
	for from, list := range st.Outgoing {
		for _, to := range list {
			request(from, to)
		}
	}
	for to, list := range st.Incoming {
		for _, from := range list {
			request(from, to)
		}
	}

	s.mu.Lock()
	s.users = next.users
	s.friends = next.friends
	s.requests = next.requests
	s.mu.Unlock()
}
