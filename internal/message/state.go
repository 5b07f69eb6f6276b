package message

import (
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// Export copies every room log.
func (s *Store) Export() map[roomkey.Key][]*models.Message {
	s.mu.RLock()
	keys := make([]roomkey.Key, 0, len(s.rooms))
	rooms := make([]*room, 0, len(s.rooms))
	for k, r := range s.rooms {
		keys = append(keys, k)
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	out := make(map[roomkey.Key][]*models.Message, len(keys))
	for i, r := range rooms {
		r.mu.RLock()
		out[keys[i]] = cloneAll(r.messages)
		r.mu.RUnlock()
	}
	return out
}

// Replace swaps every room log for logs. Each message takes the room it is
// filed under, and logs over capacity keep their newest messages.
func (s *Store) Replace(logs map[roomkey.Key][]*models.Message) {
	next := make(map[roomkey.Key]*room, len(logs))
	for key, msgs := range logs {
		r := &room{messages: make([]*models.Message, 0, len(msgs))}
		for _, m := range msgs {
			if m == nil || m.ID == "" {
				continue
			}
			cp := m.Clone()
			cp.Room = key
			r.messages = append(r.messages, cp)
		}
		if over := len(r.messages) - s.maxPerRoom; over > 0 {
			r.messages = r.messages[over:]
		}
		next[key] = r
	}

	s.mu.Lock()
	s.rooms = next
	s.mu.Unlock()
}
