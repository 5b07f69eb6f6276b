package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/cache"
)

func TestHashAndVerify(t *testing.T) {
	p := New(cache.Local(cache.NewMemory[string]()), time.Hour)

	hash, err := p.Hash("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Verify(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := p.Verify(hash, "wrong horse"); !errors.Is(err, apperr.ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
	if err := p.Verify("", "correct horse"); !errors.Is(err, apperr.ErrBadCredentials) {
		t.Fatalf("empty credential must not match, got %v", err)
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	p := New(cache.Local(cache.NewMemory[string]()), time.Hour)
	if _, err := p.Hash("abc"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	mem := cache.NewMemory[string]().WithClock(func() time.Time { return now })
	p := New(cache.Local(mem), time.Hour)

	token, err := p.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	user, err := p.ValidateToken(ctx, token)
	if err != nil || user != "alice" {
		t.Fatalf("expected alice, got %q %v", user, err)
	}

	if _, err := p.ValidateToken(ctx, "nope"); !errors.Is(err, apperr.ErrBadCredentials) {
		t.Fatalf("expected bad credentials for unknown token, got %v", err)
	}

	p.RevokeToken(ctx, token)
	if _, err := p.ValidateToken(ctx, token); err == nil {
		t.Fatal("revoked token must not validate")
	}

	token, _ = p.IssueToken(ctx, "alice")
	now = now.Add(time.Hour)
	if _, err := p.ValidateToken(ctx, token); err == nil {
		t.Fatal("expired token must not validate")
	}
}
