package guild

import (
	"fmt"
	"sort"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
)

// CreateChannel adds a channel to a guild. Owner only.
func (s *Store) CreateChannel(guildID, name, actor string) (*models.Channel, error) {
	name, err := cleanName("channel", name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGuild(guildID, actor)
	if err != nil {
		return nil, err
	}
	if len(g.Channels) >= MaxChannels {
		return nil, fmt.Errorf("create channel in %s: %w", guildID, apperr.ErrChannelLimit)
	}

	ch := &models.Channel{
		ID:        s.newID(),
		GuildID:   guildID,
		Name:      name,
		CreatedAt: s.now(),
	}
	g.Channels[ch.ID] = ch
	cp := *ch
	return &cp, nil
}

// Channel returns a copy of one channel.
func (s *Store) Channel(guildID, channelID string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, err := s.channel(guildID, channelID)
	if err != nil {
		return nil, err
	}
	cp := *ch
	return &cp, nil
}

func (s *Store) channel(guildID, channelID string) (*models.Channel, error) {
	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	ch, ok := g.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s/%s: %w", guildID, channelID, apperr.ErrChannelNotFound)
	}
	return ch, nil
}

// ListChannels returns a guild's channels, oldest first.
func (s *Store) ListChannels(guildID string) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Channel, 0, len(g.Channels))
	for _, ch := range g.Channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetChannelReadOnly toggles the read-only flag. Owner only.
func (s *Store) SetChannelReadOnly(guildID, channelID string, readOnly bool, actor string) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedGuild(guildID, actor); err != nil {
		return nil, err
	}
	ch, err := s.channel(guildID, channelID)
	if err != nil {
		return nil, err
	}
	ch.ReadOnly = readOnly
	cp := *ch
	return &cp, nil
}

// CreateThread opens a thread in a channel. The creator must be a guild member.
func (s *Store) CreateThread(guildID, channelID, title, creator, parentMessageID string) (*models.Thread, error) {
	title, err := cleanName("thread", title)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	if _, err := s.channel(guildID, channelID); err != nil {
		return nil, err
	}
	if !s.isMember(g, creator) {
		return nil, fmt.Errorf("create thread in %s: %w", guildID, apperr.ErrNotMember)
	}

	th := &models.Thread{
		ID:              s.newID(),
		GuildID:         guildID,
		ChannelID:       channelID,
		Title:           title,
		Creator:         creator,
		ParentMessageID: parentMessageID,
		CreatedAt:       s.now(),
	}
	sc := scope{guild: guildID, channel: channelID}
	if s.threads[sc] == nil {
		s.threads[sc] = make(map[string]*models.Thread)
	}
	s.threads[sc][th.ID] = th
	cp := *th
	return &cp, nil
}

// ListThreads returns a channel's threads, oldest first.
func (s *Store) ListThreads(guildID, channelID string) ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.channel(guildID, channelID); err != nil {
		return nil, err
	}
	byID := s.threads[scope{guild: guildID, channel: channelID}]
	out := make([]models.Thread, 0, len(byID))
	for _, th := range byID {
		out = append(out, *th)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Thread returns one thread.
func (s *Store) Thread(guildID, channelID, threadID string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[scope{guild: guildID, channel: channelID}][threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, apperr.ErrThreadNotFound)
	}
	cp := *th
	return &cp, nil
}
