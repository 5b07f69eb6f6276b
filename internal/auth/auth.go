// Package auth verifies passwords and manages opaque session tokens. It never
// reads engine state: the engine keeps the credential hash on the user record
// and hands it back for verification.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/crypto"
)

// DefaultSessionTTL is used when the configured TTL is not positive.
const DefaultSessionTTL = 7 * 24 * time.Hour

const sessionPrefix = "session|"

// Provider hashes passwords and issues session tokens.
type Provider struct {
	sessions cache.Store[string]
	ttl      time.Duration
}

// New creates a provider keeping tokens in sessions for ttl.
func New(sessions cache.Store[string], ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Provider{sessions: sessions, ttl: ttl}
}

// Hash returns the credential reference stored for a new password.
func (p *Provider) Hash(password string) (string, error) {
	hash, err := crypto.HashPassword(password)
	if errors.Is(err, crypto.ErrPasswordTooShort) {
		return "", apperr.Invalid(fmt.Sprintf("password must be at least %d characters", crypto.MinPasswordLength))
	}
	return hash, err
}

// Verify checks password against a stored credential reference. An empty
// credential, as for an unknown user, never matches.
func (p *Provider) Verify(credential, password string) error {
	if credential == "" || password == "" {
		return apperr.ErrBadCredentials
	}
	if err := crypto.ComparePassword(credential, password); err != nil {
		return apperr.ErrBadCredentials
	}
	return nil
}

// IssueToken creates a session for username.
func (p *Provider) IssueToken(ctx context.Context, username string) (string, error) {
	token, err := crypto.GenerateSessionToken()
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	p.sessions.Put(ctx, sessionPrefix+token, username, p.ttl)
	return token, nil
}

// ValidateToken returns the user a live token belongs to.
func (p *Provider) ValidateToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.ErrBadCredentials
	}
	username, ok := p.sessions.Get(ctx, sessionPrefix+token)
	if !ok {
		return "", apperr.ErrBadCredentials
	}
	return username, nil
}

// RevokeToken ends a session. Unknown tokens are ignored.
func (p *Provider) RevokeToken(ctx context.Context, token string) {
	if token == "" {
		return
	}
	p.sessions.Delete(ctx, sessionPrefix+token)
}
