package models

import (
	"time"
)

// DefaultChannelName is the channel every provisioned guild starts with.
const DefaultChannelName = "general"

// DefaultRoleColor is used when a role is created without a color.
const DefaultRoleColor = "#99aab5"

// Guild is a top-level container owning channels, roles and categories.
type Guild struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Owner      string              `json:"owner"`
	CreatedAt  time.Time           `json:"created_at"`
	Channels   map[string]*Channel `json:"channels"`
	Roles      []Role              `json:"roles"`
	Categories []Category          `json:"categories"`
	Emojis     []Asset             `json:"emojis"`
	Stickers   []Asset             `json:"stickers"`
}

// Channel is a named sub-room of a guild.
type Channel struct {
	ID         string    `json:"id"`
	GuildID    string    `json:"guild_id"`
	Name       string    `json:"name"`
	ReadOnly   bool      `json:"read_only"`
	CategoryID string    `json:"category_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Thread is a sub-room scoped to one guild channel.
type Thread struct {
	ID              string    `json:"id"`
	GuildID         string    `json:"guild_id"`
	ChannelID       string    `json:"channel_id"`
	Title           string    `json:"title"`
	Creator         string    `json:"creator"`
	ParentMessageID string    `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Role is administrative metadata; only guild ownership is enforced at runtime.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Position int    `json:"position"`
}

// Category groups channels for display.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Asset is a custom emoji or sticker uploaded to a guild.
type Asset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	CreatedBy   string    `json:"created_by"`
	Animated    bool      `json:"animated,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a deep copy of g.
func (g *Guild) Clone() *Guild {
	c := *g
	c.Channels = make(map[string]*Channel, len(g.Channels))
	for id, ch := range g.Channels {
		if ch == nil {
			continue
		}
		cp := *ch
		c.Channels[id] = &cp
	}
	c.Roles = append(make([]Role, 0, len(g.Roles)), g.Roles...)
	c.Categories = append(make([]Category, 0, len(g.Categories)), g.Categories...)
	c.Emojis = append(make([]Asset, 0, len(g.Emojis)), g.Emojis...)
	c.Stickers = append(make([]Asset, 0, len(g.Stickers)), g.Stickers...)
	return &c
}
