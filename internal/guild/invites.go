package guild

import (
	"fmt"
	"strings"

	"github.com/oleg-messenger/oleg/internal/apperr"
)

// CreateInvite issues a new invite code for a guild. Owner only.
func (s *Store) CreateInvite(guildID, actor string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedGuild(guildID, actor); err != nil {
		return "", err
	}
	code := s.newCode()
	for {
		if _, taken := s.invites[code]; !taken {
			break
		}
		code = s.newCode()
	}
	s.invites[code] = guildID
	return code, nil
}

// RedeemInvite adds actor to the invite's guild and consumes the code.
// Redeeming into a guild actor already belongs to still consumes the code.
func (s *Store) RedeemInvite(code, actor string) (string, error) {
	code = strings.TrimSpace(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	guildID, ok := s.invites[code]
	if !ok {
		return "", fmt.Errorf("redeem %q: %w", code, apperr.ErrInvalidInvite)
	}
	delete(s.invites, code)
	if _, err := s.guild(guildID); err != nil {
		return "", fmt.Errorf("redeem %q: %w", code, apperr.ErrInvalidInvite)
	}
	s.addMember(guildID, actor)
	return guildID, nil
}
