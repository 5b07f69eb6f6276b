// Package ratelimit implements fixed-window counters keyed by (actor, action).
package ratelimit

import (
	"context"
	"time"
)

// Window is the length of every rate limit window.
const Window = 60 * time.Second

// Actions with their own ceilings.
const (
	ActionSendMessage   = "send_message"
	ActionAddReaction   = "add_reaction"
	ActionTypingStart   = "typing_start"
	ActionCreateThread  = "create_thread"
	ActionFriendRequest = "friend_request"
)

// DefaultCeiling applies to any action without an explicit ceiling.
const DefaultCeiling = 120

// DefaultCeilings returns the per-action ceilings used by the engine.
func DefaultCeilings() map[string]int {
	return map[string]int{
		ActionSendMessage:   60,
		ActionAddReaction:   120,
		ActionTypingStart:   120,
		ActionCreateThread:  10,
		ActionFriendRequest: 30,
	}
}

// Counter counts hits against a key within a window.
// It returns whether the hit is allowed, the hits remaining, and when the window resets.
type Counter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time)
}

// Limiter applies per-action ceilings on top of a Counter.
type Limiter struct {
	counter  Counter
	ceilings map[string]int
	window   time.Duration
}

// New creates a limiter. A nil ceilings map uses DefaultCeilings.
func New(counter Counter, ceilings map[string]int) *Limiter {
	if ceilings == nil {
		ceilings = DefaultCeilings()
	}
	return &Limiter{counter: counter, ceilings: ceilings, window: Window}
}

// Ceiling returns the number of calls allowed per window for action.
func (l *Limiter) Ceiling(action string) int {
	if n, ok := l.ceilings[action]; ok {
		return n
	}
	return DefaultCeiling
}

// Allow reports whether actor may perform action now, counting the call if so.
func (l *Limiter) Allow(ctx context.Context, actor, action string) bool {
	allowed, _, _ := l.counter.CheckAndIncrement(ctx, Key(actor, action), l.Ceiling(action), l.window)
	return allowed
}

// Key returns the bucket key for an (actor, action) pair.
func Key(actor, action string) string {
	return "ratelimit:" + action + ":" + actor
}
