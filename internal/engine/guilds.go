package engine

import (
	"context"
	"fmt"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// CreateGuild creates a guild owned by owner with a default channel.
func (e *Engine) CreateGuild(ctx context.Context, owner, name string) (*models.Guild, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireUser(owner); err != nil {
		return nil, err
	}
	g, err := e.guilds.CreateGuild(owner, name)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(g.ID)
	e.emit(EventGuildsUpdated, GuildsUpdated{GuildID: g.ID}, ToUsers(owner))
	e.logger.Info().Str("guild", g.ID).Str("owner", owner).Msg("guild created")
	e.persist()
	return g, nil
}

// ListGuilds returns the guilds user belongs to.
func (e *Engine) ListGuilds(user string) []*models.Guild {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.guilds.ListForUser(user)
}

// Guild returns a guild the user belongs to.
func (e *Engine) Guild(user, guildID string) (*models.Guild, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMember(guildID, user); err != nil {
		return nil, err
	}
	return e.guilds.Get(guildID)
}

// Members lists the members of a guild the user belongs to.
func (e *Engine) Members(user, guildID string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMember(guildID, user); err != nil {
		return nil, err
	}
	return e.guilds.Members(guildID)
}

// DeleteGuild removes a guild and every message in its channels and threads.
func (e *Engine) DeleteGuild(ctx context.Context, actor, guildID string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanManageGuild(guildID, actor); err != nil {
		if _, gerr := e.guilds.Get(guildID); gerr != nil {
			return gerr
		}
		return err
	}
	members, _ := e.guilds.Members(guildID)
	if _, err := e.guilds.DeleteGuild(guildID, actor); err != nil {
		return err
	}
	dropped := e.dropGuildRooms([]string{guildID})
	e.invalidate(ctx, dropped...)
	e.mirrorGuildDeleted(guildID)
	e.emit(EventGuildsUpdated, GuildsUpdated{GuildID: guildID}, ToUsers(members...))
	for _, member := range members {
		e.provision(member)
	}
	e.logger.Info().Str("guild", guildID).Int("rooms", len(dropped)).Msg("guild deleted")
	e.persist()
	return nil
}

// CreateChannel adds a channel to a guild. Owner only.
func (e *Engine) CreateChannel(ctx context.Context, actor, guildID, name string) (*models.Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ch, err := e.guilds.CreateChannel(guildID, name, actor)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(guildID)
	e.emitToGuild(guildID, EventChannelsUpdated, ChannelsUpdated{GuildID: guildID, ChannelID: ch.ID})
	e.persist()
	return ch, nil
}

// ListChannels lists the channels of a guild the user belongs to.
func (e *Engine) ListChannels(user, guildID string) ([]models.Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMember(guildID, user); err != nil {
		return nil, err
	}
	return e.guilds.ListChannels(guildID)
}

// SetChannelReadOnly toggles whether only the owner may post in a channel.
func (e *Engine) SetChannelReadOnly(ctx context.Context, actor, guildID, channelID string, readOnly bool) (*models.Channel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ch, err := e.guilds.SetChannelReadOnly(guildID, channelID, readOnly, actor)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(guildID)
	e.emitToGuild(guildID, EventChannelSettingsUpdated, ChannelSettingsUpdated{
		GuildID:   guildID,
		ChannelID: channelID,
		ReadOnly:  ch.ReadOnly,
	})
	e.persist()
	return ch, nil
}

// CreateInvite issues a single-use invite code. Owner only.
func (e *Engine) CreateInvite(ctx context.Context, actor, guildID string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	code, err := e.guilds.CreateInvite(guildID, actor)
	if err != nil {
		return "", err
	}
	e.persist()
	return code, nil
}

// JoinInvite redeems an invite code and returns the joined guild.
func (e *Engine) JoinInvite(ctx context.Context, actor, code string) (*models.Guild, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireUser(actor); err != nil {
		return nil, err
	}
	guildID, err := e.guilds.RedeemInvite(code, actor)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(guildID)
	e.emitToGuild(guildID, EventGuildsUpdated, GuildsUpdated{GuildID: guildID})
	e.persist()
	return e.guilds.Get(guildID)
}

// CreateRole adds a role to a guild. Owner only.
func (e *Engine) CreateRole(ctx context.Context, actor, guildID, name, color string) (*models.Role, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, err := e.guilds.CreateRole(guildID, name, color, actor)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(guildID)
	e.persist()
	return r, nil
}

// Roles lists the roles of a guild the user belongs to.
func (e *Engine) Roles(user, guildID string) ([]models.Role, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMember(guildID, user); err != nil {
		return nil, err
	}
	return e.guilds.Roles(guildID)
}

// CreateCategory adds a channel category to a guild. Owner only.
func (e *Engine) CreateCategory(ctx context.Context, actor, guildID, name string) (*models.Category, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, err := e.guilds.CreateCategory(guildID, name, actor)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(guildID)
	e.emitToGuild(guildID, EventChannelsUpdated, ChannelsUpdated{GuildID: guildID})
	e.persist()
	return c, nil
}

// Categories lists the categories of a guild the user belongs to.
func (e *Engine) Categories(user, guildID string) ([]models.Category, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMember(guildID, user); err != nil {
		return nil, err
	}
	return e.guilds.Categories(guildID)
}

// ListThreads lists the threads of a channel the user can read.
func (e *Engine) ListThreads(user, guildID, channelID string) ([]models.Thread, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(roomkey.Channel(guildID, channelID), user); err != nil {
		return nil, err
	}
	return e.guilds.ListThreads(guildID, channelID)
}

// AssetUpload is a custom emoji or sticker image with its metadata.
type AssetUpload struct {
	Name        string
	FileName    string
	ContentType string
	Data        []byte
	Animated    bool
	Description string
}

// AddAsset stores an image and registers it as a guild emoji or sticker.
// Owner only.
func (e *Engine) AddAsset(ctx context.Context, kind guild.AssetKind, actor, guildID string, up AssetUpload) (*models.Asset, error) {
	if e.blobs == nil {
		return nil, apperr.Invalid("uploads are disabled")
	}
	if !avatarExtensions[extOf(up.FileName)] {
		return nil, apperr.Invalid(fmt.Sprintf("%s must be an image", kind))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanManageGuild(guildID, actor); err != nil {
		if _, gerr := e.guilds.Get(guildID); gerr != nil {
			return nil, gerr
		}
		return nil, err
	}
	att, err := e.blobs.Save(ctx, up.Data, blob.Meta{Name: up.FileName, Type: up.ContentType})
	if err != nil {
		return nil, err
	}
	a, err := e.guilds.AddAsset(kind, guildID, models.Asset{
		Name:        up.Name,
		URL:         att.URL,
		Animated:    up.Animated,
		Description: up.Description,
	}, actor)
	if err != nil {
		return nil, err
	}
	e.mirrorGuild(guildID)
	e.persist()
	return a, nil
}

// DeleteAsset removes an emoji or sticker. The guild owner and the asset's
// creator may delete it.
func (e *Engine) DeleteAsset(ctx context.Context, kind guild.AssetKind, actor, guildID, assetID string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.guilds.DeleteAsset(kind, guildID, assetID, actor); err != nil {
		return err
	}
	e.mirrorGuild(guildID)
	e.persist()
	return nil
}

// Assets lists a guild's emojis or stickers.
func (e *Engine) Assets(kind guild.AssetKind, user, guildID string) ([]models.Asset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireMember(guildID, user); err != nil {
		return nil, err
	}
	return e.guilds.Assets(kind, guildID)
}

// requireMember fails with not found for unknown guilds and forbidden for
// non-members.
func (e *Engine) requireMember(guildID, user string) error {
	if _, err := e.guilds.Get(guildID); err != nil {
		return err
	}
	if !e.guilds.IsMember(guildID, user) {
		return fmt.Errorf("guild %s: %w", guildID, apperr.ErrNotMember)
	}
	return nil
}

// emitToGuild sends an event to every member of a guild.
func (e *Engine) emitToGuild(guildID, event string, payload any) {
	members, err := e.guilds.Members(guildID)
	if err != nil || len(members) == 0 {
		return
	}
	e.emit(event, payload, ToUsers(members...))
}
