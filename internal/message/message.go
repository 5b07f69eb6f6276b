// Package message stores the ordered message log of every room. Each room has
// its own lock, so operations on different rooms never contend beyond the
// lookup of the room itself.
package message

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/crypto"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// Page size bounds for paginated reads.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	MaxEmojiLength  = 64
)

type room struct {
	mu       sync.RWMutex
	messages []*models.Message
}

// find returns the index of message id. Callers hold r.mu.
func (r *room) find(id string) int {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Store holds every room log.
type Store struct {
	mu    sync.RWMutex
	rooms map[roomkey.Key]*room

	maxPerRoom int
	newID      func() string
	now        func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rooms:      make(map[roomkey.Key]*room),
		maxPerRoom: models.MaxMessagesPerRoom,
		newID:      crypto.NewULID,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// lookup returns an existing room or nil.
func (s *Store) lookup(key roomkey.Key) *room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[key]
}

// ensure returns the room, creating it if needed.
func (s *Store) ensure(key roomkey.Key) *room {
	if r := s.lookup(key); r != nil {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok {
		r = &room{}
		s.rooms[key] = r
	}
	return r
}

// Ensure creates an empty log for key if none exists.
func (s *Store) Ensure(key roomkey.Key) {
	s.ensure(key)
}

func validateBody(body string, required bool) error {
	if required && strings.TrimSpace(body) == "" {
		return apperr.Invalid("message is required")
	}
	if utf8.RuneCountInString(body) > models.MaxMessageLength {
		return apperr.Invalid(fmt.Sprintf("message must be at most %d characters", models.MaxMessageLength))
	}
	return nil
}

// Send appends a message. A body, a file or both are required. When the room
// is at capacity the oldest message is dropped.
func (s *Store) Send(key roomkey.Key, author, body string, file *models.Attachment) (*models.Message, error) {
	if key.IsZero() {
		return nil, apperr.Invalid("room is required")
	}
	if err := validateBody(body, file == nil); err != nil {
		return nil, err
	}
	if file != nil && (file.URL == "" || file.Name == "") {
		return nil, apperr.Invalid("file must have a name and url")
	}

	msg := &models.Message{
		ID:        s.newID(),
		Room:      key,
		Author:    author,
		Body:      body,
		Timestamp: s.now(),
		Reactions: make(map[string][]string),
	}
	if file != nil {
		f := *file
		msg.File = &f
	}
	s.appendMessage(key, msg)
	return msg.Clone(), nil
}

func (s *Store) appendMessage(key roomkey.Key, msg *models.Message) {
	r := s.ensure(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
	if over := len(r.messages) - s.maxPerRoom; over > 0 {
		r.messages = append(r.messages[:0:0], r.messages[over:]...)
	}
}

// mutate applies fn to message id under the room lock and returns a copy of the result.
func (s *Store) mutate(key roomkey.Key, id string, fn func(m *models.Message) error) (*models.Message, error) {
	r := s.lookup(key)
	if r == nil {
		return nil, fmt.Errorf("message %s in %s: %w", id, key, apperr.ErrMessageNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(id)
	if i < 0 {
		return nil, fmt.Errorf("message %s in %s: %w", id, key, apperr.ErrMessageNotFound)
	}
	if err := fn(r.messages[i]); err != nil {
		return nil, err
	}
	return r.messages[i].Clone(), nil
}

// Edit replaces the body of a message. Only the author may edit.
func (s *Store) Edit(key roomkey.Key, id, actor, body string) (*models.Message, error) {
	if err := validateBody(body, true); err != nil {
		return nil, err
	}
	return s.mutate(key, id, func(m *models.Message) error {
		if m.Author != actor {
			return fmt.Errorf("edit %s: %w", id, apperr.ErrNotAuthor)
		}
		now := s.now()
		m.Body = body
		m.Edited = true
		m.EditedAt = &now
		return nil
	})
}

// Delete removes a message. Only the author may delete.
func (s *Store) Delete(key roomkey.Key, id, actor string) error {
	r := s.lookup(key)
	if r == nil {
		return fmt.Errorf("message %s in %s: %w", id, key, apperr.ErrMessageNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(id)
	if i < 0 {
		return fmt.Errorf("message %s in %s: %w", id, key, apperr.ErrMessageNotFound)
	}
	if r.messages[i].Author != actor {
		return fmt.Errorf("delete %s: %w", id, apperr.ErrNotAuthor)
	}
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
	return nil
}

// Pin marks a message as pinned. Authorization is the caller's concern.
func (s *Store) Pin(key roomkey.Key, id string) (*models.Message, error) {
	return s.setPinned(key, id, true)
}

// Unpin clears the pinned flag.
func (s *Store) Unpin(key roomkey.Key, id string) (*models.Message, error) {
	return s.setPinned(key, id, false)
}

func (s *Store) setPinned(key roomkey.Key, id string, pinned bool) (*models.Message, error) {
	return s.mutate(key, id, func(m *models.Message) error {
		m.Pinned = pinned
		return nil
	})
}

func validateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return apperr.Invalid("emoji is required")
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiLength {
		return apperr.Invalid("emoji is too long")
	}
	return nil
}

// AddReaction records actor reacting with emoji. Repeating a reaction is a no-op.
func (s *Store) AddReaction(key roomkey.Key, id, actor, emoji string) (*models.Message, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}
	return s.mutate(key, id, func(m *models.Message) error {
		users := m.Reactions[emoji]
		i := sort.SearchStrings(users, actor)
		if i < len(users) && users[i] == actor {
			return nil
		}
		users = append(users, "")
		copy(users[i+1:], users[i:])
		users[i] = actor
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		m.Reactions[emoji] = users
		return nil
	})
}

// RemoveReaction withdraws actor's emoji reaction. Removing an absent reaction is a no-op.
func (s *Store) RemoveReaction(key roomkey.Key, id, actor, emoji string) (*models.Message, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}
	return s.mutate(key, id, func(m *models.Message) error {
		users := m.Reactions[emoji]
		i := sort.SearchStrings(users, actor)
		if i == len(users) || users[i] != actor {
			return nil
		}
		users = append(users[:i], users[i+1:]...)
		if len(users) == 0 {
			delete(m.Reactions, emoji)
		} else {
			m.Reactions[emoji] = users
		}
		return nil
	})
}

// LinkThread records that a thread was started from message id.
func (s *Store) LinkThread(key roomkey.Key, id, threadID string) (*models.Message, error) {
	return s.mutate(key, id, func(m *models.Message) error {
		m.ThreadID = threadID
		return nil
	})
}

// Get returns a copy of one message.
func (s *Store) Get(key roomkey.Key, id string) (*models.Message, error) {
	r := s.lookup(key)
	if r == nil {
		return nil, fmt.Errorf("message %s in %s: %w", id, key, apperr.ErrMessageNotFound)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.find(id)
	if i < 0 {
		return nil, fmt.Errorf("message %s in %s: %w", id, key, apperr.ErrMessageNotFound)
	}
	return r.messages[i].Clone(), nil
}

// History returns copies of every message in a room, oldest first.
func (s *Store) History(key roomkey.Key) []*models.Message {
	r := s.lookup(key)
	if r == nil {
		return []*models.Message{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.messages)
}

// Page returns one page of a room counted from the newest message: page 1 holds
// the newest size messages. Messages within a page are oldest first.
func (s *Store) Page(key roomkey.Key, page, size int) models.Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	out := models.Page{
		Room:     key.String(),
		Messages: []*models.Message{},
		Page:     page,
		PageSize: size,
	}

	r := s.lookup(key)
	if r == nil {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out.Total = len(r.messages)
	end := out.Total - (page-1)*size
	if end <= 0 {
		return out
	}
	start := end - size
	if start < 0 {
		start = 0
	}
	out.Messages = cloneAll(r.messages[start:end])
	out.HasMore = start > 0
	return out
}

// Rooms returns every room with a log, sorted by key.
func (s *Store) Rooms() []roomkey.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]roomkey.Key, 0, len(s.rooms))
	for k := range s.rooms {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// AnonymizeAuthor rewrites every message by user to the deleted-user
// placeholder and drops user's reactions. It returns the rooms that changed.
func (s *Store) AnonymizeAuthor(user string) []roomkey.Key {
	var changed []roomkey.Key
	for _, key := range s.Rooms() {
		r := s.lookup(key)
		if r == nil {
			continue
		}
		r.mu.Lock()
		touched := false
		for _, m := range r.messages {
			if m.Author == user {
				m.Author = models.DeletedUser
				touched = true
			}
			for emoji, users := range m.Reactions {
				i := sort.SearchStrings(users, user)
				if i < len(users) && users[i] == user {
					users = append(users[:i], users[i+1:]...)
					if len(users) == 0 {
						delete(m.Reactions, emoji)
					} else {
						m.Reactions[emoji] = users
					}
					touched = true
				}
			}
		}
		r.mu.Unlock()
		if touched {
			changed = append(changed, key)
		}
	}
	return changed
}

// DropRooms deletes every room for which match returns true and returns them.
func (s *Store) DropRooms(match func(roomkey.Key) bool) []roomkey.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []roomkey.Key
	for k := range s.rooms {
		if match(k) {
			delete(s.rooms, k)
			dropped = append(dropped, k)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].String() < dropped[j].String() })
	return dropped
}

func cloneAll(msgs []*models.Message) []*models.Message {
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Count returns the number of rooms and the total number of messages stored.
func (s *Store) Count() (rooms, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rooms {
		r.mu.RLock()
		messages += len(r.messages)
		r.mu.RUnlock()
	}
	return len(s.rooms), messages
}
