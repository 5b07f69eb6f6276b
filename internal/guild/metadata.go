package guild

import (
	"fmt"
	"strings"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
)

// CreateRole appends a role. Positions follow creation order. Owner only.
func (s *Store) CreateRole(guildID, name, color, actor string) (*models.Role, error) {
	name, err := cleanName("role", name)
	if err != nil {
		return nil, err
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = models.DefaultRoleColor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGuild(guildID, actor)
	if err != nil {
		return nil, err
	}
	r := models.Role{
		ID:       s.newID(),
		Name:     name,
		Color:    color,
		Position: len(g.Roles),
	}
	g.Roles = append(g.Roles, r)
	return &r, nil
}

// Roles lists a guild's roles by position.
func (s *Store) Roles(guildID string) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	return append([]models.Role{}, g.Roles...), nil
}

// CreateCategory appends a channel category. Owner only.
func (s *Store) CreateCategory(guildID, name, actor string) (*models.Category, error) {
	name, err := cleanName("category", name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGuild(guildID, actor)
	if err != nil {
		return nil, err
	}
	c := models.Category{
		ID:       s.newID(),
		Name:     name,
		Position: len(g.Categories),
	}
	g.Categories = append(g.Categories, c)
	return &c, nil
}

// Categories lists a guild's categories by position.
func (s *Store) Categories(guildID string) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	return append([]models.Category{}, g.Categories...), nil
}

// AssetKind selects the emoji or the sticker collection of a guild.
type AssetKind int

const (
	Emoji AssetKind = iota
	Sticker
)

func (k AssetKind) String() string {
	if k == Sticker {
		return "sticker"
	}
	return "emoji"
}

func (k AssetKind) list(g *models.Guild) *[]models.Asset {
	if k == Sticker {
		return &g.Stickers
	}
	return &g.Emojis
}

// AddAsset registers a custom emoji or sticker. Owner only.
func (s *Store) AddAsset(kind AssetKind, guildID string, a models.Asset, actor string) (*models.Asset, error) {
	name, err := cleanName(kind.String(), a.Name)
	if err != nil {
		return nil, err
	}
	if a.URL == "" {
		return nil, apperr.Invalid(kind.String() + " url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGuild(guildID, actor)
	if err != nil {
		return nil, err
	}
	a.ID = s.newID()
	a.Name = name
	a.CreatedBy = actor
	a.CreatedAt = s.now()
	if kind == Emoji {
		a.Description = ""
	} else {
		a.Animated = false
	}

	list := kind.list(g)
	*list = append(*list, a)
	return &a, nil
}

// DeleteAsset removes an emoji or sticker. Allowed for the owner and the creator.
func (s *Store) DeleteAsset(kind AssetKind, guildID, assetID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.guild(guildID)
	if err != nil {
		return err
	}
	list := kind.list(g)
	for i, a := range *list {
		if a.ID != assetID {
			continue
		}
		if actor != g.Owner && actor != a.CreatedBy {
			return fmt.Errorf("delete %s %s: %w", kind, assetID, apperr.ErrForbidden)
		}
		*list = append((*list)[:i], (*list)[i+1:]...)
		return nil
	}
	return fmt.Errorf("delete %s %s: %w", kind, assetID, apperr.ErrAssetNotFound)
}

// Assets lists a guild's emojis or stickers in creation order.
func (s *Store) Assets(kind AssetKind, guildID string) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.guild(guildID)
	if err != nil {
		return nil, err
	}
	return append([]models.Asset{}, *kind.list(g)...), nil
}
