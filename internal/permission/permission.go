// Package permission answers authorization questions about rooms and guilds.
// The only runtime-enforced distinction inside a guild is owner versus member.
package permission

import (
	"fmt"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// GuildReader is the part of the guild store the gate consults.
type GuildReader interface {
	IsOwner(guildID, user string) bool
	IsMember(guildID, user string) bool
	Channel(guildID, channelID string) (*models.Channel, error)
	Thread(guildID, channelID, threadID string) (*models.Thread, error)
}

// Gate evaluates permissions against the current guild hierarchy.
type Gate struct {
	guilds GuildReader
	admins *Admins
}

// NewGate creates a gate.
func NewGate(guilds GuildReader, admins *Admins) *Gate {
	return &Gate{guilds: guilds, admins: admins}
}

// channel resolves the backing channel of a guild room.
func (g *Gate) channel(room roomkey.Key) (*models.Channel, error) {
	ch, err := g.guilds.Channel(room.GuildID(), room.ChannelID())
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", room, apperr.ErrChannelNotFound)
	}
	if room.Kind() == roomkey.Thread {
		if _, err := g.guilds.Thread(room.GuildID(), room.ChannelID(), room.ThreadID()); err != nil {
			return nil, fmt.Errorf("room %s: %w", room, err)
		}
	}
	return ch, nil
}

// CanRead reports whether user may join and read a room.
func (g *Gate) CanRead(room roomkey.Key, user string) error {
	switch room.Kind() {
	case roomkey.DirectMessage:
		if !room.Involves(user) {
			return fmt.Errorf("room %s: %w", room, apperr.ErrForbidden)
		}
	case roomkey.GuildChannel, roomkey.Thread:
		if _, err := g.channel(room); err != nil {
			return err
		}
		if !g.guilds.IsMember(room.GuildID(), user) {
			return fmt.Errorf("room %s: %w", room, apperr.ErrNotMember)
		}
	default:
		if room.IsZero() {
			return apperr.Invalid("room is required")
		}
	}
	return nil
}

// CanSend reports whether user may post into a room. Read-only channels, and
// the threads inside them, accept posts from the guild owner only.
func (g *Gate) CanSend(room roomkey.Key, user string) error {
	if err := g.CanRead(room, user); err != nil {
		return err
	}
	if !room.IsGuild() {
		return nil
	}
	ch, err := g.channel(room)
	if err != nil {
		return err
	}
	if ch.ReadOnly && !g.guilds.IsOwner(room.GuildID(), user) {
		return fmt.Errorf("room %s: %w", room, apperr.ErrChannelReadOnly)
	}
	return nil
}

// CanPin reports whether user may pin or unpin messages in a room. Guild rooms
// require the owner; direct message and legacy rooms allow anyone who can read.
func (g *Gate) CanPin(room roomkey.Key, user string) error {
	if err := g.CanRead(room, user); err != nil {
		return err
	}
	if room.IsGuild() && !g.guilds.IsOwner(room.GuildID(), user) {
		return fmt.Errorf("room %s: %w", room, apperr.ErrPinForbidden)
	}
	return nil
}

// CanManageGuild reports whether user may change guild settings.
func (g *Gate) CanManageGuild(guildID, user string) error {
	if !g.guilds.IsOwner(guildID, user) {
		return fmt.Errorf("guild %s: %w", guildID, apperr.ErrNotOwner)
	}
	return nil
}

// IsAdmin reports whether user may export and import engine state.
func (g *Gate) IsAdmin(user string) bool {
	return g.admins != nil && g.admins.Has(user)
}

// RequireAdmin returns ErrForbidden unless user is an administrator.
func (g *Gate) RequireAdmin(user string) error {
	if !g.IsAdmin(user) {
		return fmt.Errorf("admin %s: %w", user, apperr.ErrForbidden)
	}
	return nil
}
