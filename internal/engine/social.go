package engine

import (
	"context"
	"fmt"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
)

// RequestFriend sends a friend request, or completes the friendship when the
// target had already asked.
func (e *Engine) RequestFriend(ctx context.Context, from, to string) error {
	if !e.allow(ctx, from, ratelimit.ActionFriendRequest) {
		return fmt.Errorf("friend request: %w", apperr.ErrRateLimited)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	accepted, err := e.users.RequestFriend(from, to)
	if err != nil {
		return err
	}
	e.friendsChanged(ctx, from, to)
	e.logger.Debug().Str("from", from).Str("to", to).Bool("auto_accepted", accepted).Msg("friend request")
	return nil
}

// CancelFriendRequest withdraws a pending outgoing request.
func (e *Engine) CancelFriendRequest(ctx context.Context, from, to string) error {
	return e.friendOp(ctx, from, to, e.users.CancelRequest)
}

// AcceptFriend accepts the request from another user.
func (e *Engine) AcceptFriend(ctx context.Context, self, from string) error {
	return e.friendOp(ctx, self, from, e.users.AcceptRequest)
}

// DeclineFriend rejects the request from another user.
func (e *Engine) DeclineFriend(ctx context.Context, self, from string) error {
	return e.friendOp(ctx, self, from, e.users.DeclineRequest)
}

// RemoveFriend ends a friendship.
func (e *Engine) RemoveFriend(ctx context.Context, self, other string) error {
	return e.friendOp(ctx, self, other, e.users.RemoveFriend)
}

func (e *Engine) friendOp(ctx context.Context, actor, other string, op func(a, b string) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := op(actor, other); err != nil {
		return err
	}
	e.friendsChanged(ctx, actor, other)
	return nil
}

// friendsChanged tells both users that the actor changed their relationship.
func (e *Engine) friendsChanged(ctx context.Context, actor, other string) {
	e.emit(EventFriendsUpdate, FriendsUpdate{Username: actor}, ToUsers(actor, other))
	e.persist()
}

// FriendStatus returns a user's friends and pending requests.
func (e *Engine) FriendStatus(username string) (models.FriendStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users.Status(username)
}

// SetNote stores the owner's private note about another user. An empty note
// removes it. Notes are never broadcast.
func (e *Engine) SetNote(ctx context.Context, owner, target, note string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.users.SetNote(owner, target, note); err != nil {
		return err
	}
	e.persist()
	return nil
}

// Notes returns the owner's private notes keyed by target username.
func (e *Engine) Notes(owner string) (map[string]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users.Notes(owner)
}

// SearchUsers finds users by a case-insensitive substring of their name.
func (e *Engine) SearchUsers(query string) []models.PublicUser {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users.Search(query)
}

// ListUsers returns every user.
func (e *Engine) ListUsers() []models.PublicUser {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users.List()
}
