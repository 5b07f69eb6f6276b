// Package guild holds the guild -> channel -> thread hierarchy together with
// memberships, invites and per-guild metadata (roles, categories, emojis, stickers).
package guild

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
)

// Limits.
const (
	MaxGuildsPerOwner = 100
	MaxChannels       = 100
	MaxNameLength     = 100
)

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// scope addresses the threads of one channel.
type scope struct {
	guild   string
	channel string
}

// Store is the guild hierarchy. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	guilds  map[string]*models.Guild
	members map[string]set // guild id -> usernames
	invites map[string]string
	threads map[scope]map[string]*models.Thread

	newID   func() string
	newCode func() string
	now     func() time.Time
}

// New creates an empty hierarchy.
func New() *Store {
	return &Store{
		guilds:  make(map[string]*models.Guild),
		members: make(map[string]set),
		invites: make(map[string]string),
		threads: make(map[scope]map[string]*models.Thread),
		newID:   crypto.NewID,
		newCode: crypto.GenerateInviteCode,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func cleanName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid(kind + " name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperr.Invalid(fmt.Sprintf("%s name must be at most %d characters", kind, MaxNameLength))
	}
	return name, nil
}

// guild returns the guild or ErrGuildNotFound. Callers hold mu.
func (s *Store) guild(id string) (*models.Guild, error) {
	g, ok := s.guilds[id]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", id, apperr.ErrGuildNotFound)
	}
	return g, nil
}

// ownedGuild returns the guild if actor owns it. Callers hold mu.
func (s *Store) ownedGuild(id, actor string) (*models.Guild, error) {
	g, err := s.guild(id)
	if err != nil {
		return nil, err
	}
	if g.Owner != actor {
		return nil, fmt.Errorf("guild %s: %w", id, apperr.ErrNotOwner)
	}
	return g, nil
}

func (s *Store) isMember(g *models.Guild, user string) bool {
	if g.Owner == user {
		return true
	}
	_, ok := s.members[g.ID][user]
	return ok
}

// CreateGuild creates a guild owned by owner with a default channel.
func (s *Store) CreateGuild(owner, name string) (*models.Guild, error) {
	name, err := cleanName("guild", name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createGuild(owner, name)
}

func (s *Store) createGuild(owner, name string) (*models.Guild, error) {
	owned := 0
	for _, g := range s.guilds {
		if g.Owner == owner {
			owned++
		}
	}
	if owned >= MaxGuildsPerOwner {
		return nil, fmt.Errorf("create guild for %s: %w", owner, apperr.ErrGuildLimit)
	}

	now := s.now()
	g := &models.Guild{
		ID:         s.newID(),
		Name:       name,
		Owner:      owner,
		CreatedAt:  now,
		Channels:   make(map[string]*models.Channel),
		Roles:      []models.Role{},
		Categories: []models.Category{},
		Emojis:     []models.Asset{},
		Stickers:   []models.Asset{},
	}
	ch := &models.Channel{
		ID:        s.newID(),
		GuildID:   g.ID,
		Name:      models.DefaultChannelName,
		CreatedAt: now,
	}
	g.Channels[ch.ID] = ch

	s.guilds[g.ID] = g
	s.members[g.ID] = set{owner: {}}
	return g.Clone(), nil
}

// EnsureDefault provisions "<user>'s Server" when user owns and belongs to no
// guild. It returns the new guild, or nil when user already had one.
func (s *Store) EnsureDefault(user string) (*models.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.guilds {
		if s.isMember(g, user) {
			return nil, nil
		}
	}
	return s.createGuild(user, user+"'s Server")
}

// Get returns a copy of a guild.
func (s *Store) Get(id string) (*models.Guild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(id)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// ListForUser returns the guilds user owns or belongs to, oldest first.
func (s *Store) ListForUser(user string) []*models.Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Guild, 0)
	for _, g := range s.guilds {
		if s.isMember(g, user) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteGuild removes a guild with its invites and threads. Owner only.
func (s *Store) DeleteGuild(id, actor string) (*models.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGuild(id, actor)
	if err != nil {
		return nil, err
	}
	s.deleteGuild(g.ID)
	return g, nil
}

func (s *Store) deleteGuild(id string) {
	delete(s.guilds, id)
	delete(s.members, id)
	for code, gid := range s.invites {
		if gid == id {
			delete(s.invites, code)
		}
	}
	for sc := range s.threads {
		if sc.guild == id {
			delete(s.threads, sc)
		}
	}
}

// AddMember adds user to a guild. Adding an existing member is a no-op.
func (s *Store) AddMember(guildID, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.guild(guildID); err != nil {
		return err
	}
	s.addMember(guildID, user)
	return nil
}

func (s *Store) addMember(guildID, user string) {
	if s.members[guildID] == nil {
		s.members[guildID] = make(set)
	}
	s.members[guildID][user] = struct{}{}
}

// RemoveMember removes user from a guild. The owner cannot be removed.
func (s *Store) RemoveMember(guildID, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.guild(guildID)
	if err != nil {
		return err
	}
	if g.Owner == user {
		return fmt.Errorf("remove owner of %s: %w", guildID, apperr.ErrForbidden)
	}
	if _, ok := s.members[guildID][user]; !ok {
		return fmt.Errorf("remove %s from %s: %w", user, guildID, apperr.ErrNotMember)
	}
	delete(s.members[guildID], user)
	return nil
}

// Members returns the sorted member list; the owner is always included.
func (s *Store) Members(guildID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	all := make(set, len(s.members[guildID])+1)
	for u := range s.members[guildID] {
		all[u] = struct{}{}
	}
	all[g.Owner] = struct{}{}
	return all.sorted(), nil
}

// IsMember reports whether user belongs to the guild, owners included.
func (s *Store) IsMember(guildID, user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guilds[guildID]
	return ok && s.isMember(g, user)
}

// IsOwner reports whether user owns the guild.
func (s *Store) IsOwner(guildID, user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guilds[guildID]
	return ok && g.Owner == user
}

// Owner returns the owner of a guild.
func (s *Store) Owner(guildID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(guildID)
	if err != nil {
		return "", err
	}
	return g.Owner, nil
}

// RemoveUser drops user from every membership and deletes the guilds user owns.
// It returns the ids of the deleted guilds.
func (s *Store) RemoveUser(user string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for id, g := range s.guilds {
		if g.Owner == user {
			deleted = append(deleted, id)
			continue
		}
		delete(s.members[id], user)
	}
	for _, id := range deleted {
		s.deleteGuild(id)
	}
	sort.Strings(deleted)
	return deleted
}

// Count returns the number of guilds.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guilds)
}

// IDs returns every guild id, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
