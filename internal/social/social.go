// Package social holds registered users, their profiles, friendships and
// pending friend requests.
package social

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
)

// MaxFriends is the largest friend set a user may have.
const MaxFriends = 1000

// MaxUsernameLength bounds usernames.
const MaxUsernameLength = 32

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store is the social graph. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	friends  map[string]set
	requests *requests
}

// New creates an empty social graph.
func New() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		friends:  make(map[string]set),
		requests: newRequests(),
	}
}

// ValidateUsername rejects names that cannot address a direct message room.
func ValidateUsername(name string) error {
	if name == "" {
		return apperr.Invalid("username is required")
	}
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		return apperr.Invalid(fmt.Sprintf("username must be at most %d characters", MaxUsernameLength))
	}
	if name == models.DeletedUser {
		return apperr.Invalid("username is reserved")
	}
	for _, r := range name {
		if r == ':' || r == '|' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return apperr.Invalid("username contains invalid characters")
		}
	}
	return nil
}

// Register adds a new user.
func (s *Store) Register(u *models.User) error {
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("register %s: %w", u.Username, apperr.ErrUserExists)
	}
	cp := u.Clone()
	s.users[u.Username] = &cp
	return nil
}

// Get returns a copy of the user record.
func (s *Store) Get(username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return models.User{}, fmt.Errorf("get %s: %w", username, apperr.ErrUserNotFound)
	}
	return u.Clone(), nil
}

// Exists reports whether username is registered.
func (s *Store) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// List returns every user's public view sorted by username.
func (s *Store) List() []models.PublicUser {
	return s.Search("")
}

// Search returns users whose name contains query, ignoring case, sorted by username.
func (s *Store) Search(query string) []models.PublicUser {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PublicUser, 0)
	for name, u := range s.users {
		if q == "" || strings.Contains(strings.ToLower(name), q) {
			out = append(out, u.Public())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// UpdateProfile applies the non-nil fields of upd.
func (s *Store) UpdateProfile(username string, upd models.ProfileUpdate) (models.User, error) {
	if upd.Bio != nil && utf8.RuneCountInString(*upd.Bio) > models.MaxBioLength {
		return models.User{}, apperr.Invalid(fmt.Sprintf("bio must be at most %d characters", models.MaxBioLength))
	}
	if upd.StatusText != nil && utf8.RuneCountInString(*upd.StatusText) > models.MaxStatusLength {
		return models.User{}, apperr.Invalid(fmt.Sprintf("status must be at most %d characters", models.MaxStatusLength))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return models.User{}, fmt.Errorf("update profile %s: %w", username, apperr.ErrUserNotFound)
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.StatusText != nil {
		u.StatusText = *upd.StatusText
	}
	return u.Clone(), nil
}

// SetOnline records the presence flag. It reports whether the flag changed.
func (s *Store) SetOnline(username string, online bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return false, fmt.Errorf("set online %s: %w", username, apperr.ErrUserNotFound)
	}
	if u.Online == online {
		return false, nil
	}
	u.Online = online
	return true, nil
}

// Delete removes a user with every friendship and request touching them. It
// returns the users whose friend status changed as a result.
func (s *Store) Delete(username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return nil, fmt.Errorf("delete %s: %w", username, apperr.ErrUserNotFound)
	}

	affected := make(set)
	for other := range s.friends[username] {
		affected[other] = struct{}{}
		s.unlink(username, other)
	}
	for _, other := range s.requests.outgoing(username) {
		affected[other] = struct{}{}
		s.requests.remove(username, other)
	}
	for _, other := range s.requests.incoming(username) {
		affected[other] = struct{}{}
		s.requests.remove(other, username)
	}
	delete(s.friends, username)
	delete(s.users, username)
	for _, u := range s.users {
		delete(u.Notes, username)
	}
	return affected.sorted(), nil
}

// SetNote stores owner's private note about target. An empty note removes it.
func (s *Store) SetNote(owner, target, note string) error {
	if utf8.RuneCountInString(note) > models.MaxNoteLength {
		return apperr.Invalid(fmt.Sprintf("note must be at most %d characters", models.MaxNoteLength))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[owner]
	if !ok {
		return fmt.Errorf("note %s -> %s: %w", owner, target, apperr.ErrUserNotFound)
	}
	if _, ok := s.users[target]; !ok || target == owner {
		return fmt.Errorf("note %s -> %s: %w", owner, target, apperr.ErrInvalidTarget)
	}
	if note == "" {
		delete(u.Notes, target)
		if len(u.Notes) == 0 {
			u.Notes = nil
		}
		return nil
	}
	if u.Notes == nil {
		u.Notes = make(map[string]string)
	}
	u.Notes[target] = note
	return nil
}

// Notes returns a copy of owner's private notes.
func (s *Store) Notes(owner string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[owner]
	if !ok {
		return nil, fmt.Errorf("notes %s: %w", owner, apperr.ErrUserNotFound)
	}
	out := make(map[string]string, len(u.Notes))
	for k, v := range u.Notes {
		out[k] = v
	}
	return out, nil
}

// RequestFriend sends a friend request from one user to another. If to already
// asked from, the pair becomes friends instead and RequestFriend reports true.
func (s *Store) RequestFriend(from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == to {
		return false, fmt.Errorf("request %s -> %s: %w", from, to, apperr.ErrInvalidTarget)
	}
	if _, ok := s.users[from]; !ok {
		return false, fmt.Errorf("request %s -> %s: %w", from, to, apperr.ErrUserNotFound)
	}
	if _, ok := s.users[to]; !ok {
		return false, fmt.Errorf("request %s -> %s: %w", from, to, apperr.ErrInvalidTarget)
	}
	if s.areFriends(from, to) {
		return false, fmt.Errorf("request %s -> %s: %w", from, to, apperr.ErrAlreadyFriends)
	}
	if s.requests.has(from, to) {
		return false, fmt.Errorf("request %s -> %s: %w", from, to, apperr.ErrAlreadyRequested)
	}
	if len(s.friends[from]) >= MaxFriends || len(s.friends[to]) >= MaxFriends {
		return false, fmt.Errorf("request %s -> %s: %w", from, to, apperr.ErrFriendLimit)
	}

	if s.requests.has(to, from) {
		s.requests.remove(to, from)
		s.link(from, to)
		return true, nil
	}
	s.requests.add(from, to)
	return false, nil
}

// CancelRequest withdraws a request from sent to to.
func (s *Store) CancelRequest(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.requests.has(from, to) {
		return fmt.Errorf("cancel %s -> %s: %w", from, to, apperr.ErrNoRequest)
	}
	s.requests.remove(from, to)
	return nil
}

// AcceptRequest turns the pending request from -> self into a friendship.
func (s *Store) AcceptRequest(self, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.requests.has(from, self) {
		return fmt.Errorf("accept %s -> %s: %w", from, self, apperr.ErrNoRequest)
	}
	if len(s.friends[from]) >= MaxFriends || len(s.friends[self]) >= MaxFriends {
		return fmt.Errorf("accept %s -> %s: %w", from, self, apperr.ErrFriendLimit)
	}
	s.requests.remove(from, self)
	s.link(self, from)
	return nil
}

// DeclineRequest drops the pending request from -> self.
func (s *Store) DeclineRequest(self, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.requests.has(from, self) {
		return fmt.Errorf("decline %s -> %s: %w", from, self, apperr.ErrNoRequest)
	}
	s.requests.remove(from, self)
	return nil
}

// RemoveFriend ends a friendship from either side.
func (s *Store) RemoveFriend(self, other string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.areFriends(self, other) {
		return fmt.Errorf("remove friend %s: %w", other, apperr.ErrNotFound)
	}
	s.unlink(self, other)
	return nil
}

// AreFriends reports whether a and b are friends.
func (s *Store) AreFriends(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areFriends(a, b)
}

// Status returns the sorted friend, incoming and outgoing lists of self.
func (s *Store) Status(self string) (models.FriendStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[self]; !ok {
		return models.FriendStatus{}, fmt.Errorf("status %s: %w", self, apperr.ErrUserNotFound)
	}
	return models.FriendStatus{
		Friends:  s.friends[self].sorted(),
		Incoming: s.requests.incoming(self),
		Outgoing: s.requests.outgoing(self),
	}, nil
}

func (s *Store) areFriends(a, b string) bool {
	_, ok := s.friends[a][b]
	return ok
}

// link and unlink are the only writers of the friendship relation.
func (s *Store) link(a, b string) {
	if s.friends[a] == nil {
		s.friends[a] = make(set)
	}
	if s.friends[b] == nil {
		s.friends[b] = make(set)
	}
	s.friends[a][b] = struct{}{}
	s.friends[b][a] = struct{}{}
}

func (s *Store) unlink(a, b string) {
	delete(s.friends[a], b)
	delete(s.friends[b], a)
	if len(s.friends[a]) == 0 {
		delete(s.friends, a)
	}
	if len(s.friends[b]) == 0 {
		delete(s.friends, b)
	}
}
