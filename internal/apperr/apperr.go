// Package apperr defines the error taxonomy shared by the stores, the engine and the
// HTTP layer. Stores return the sentinel values below, usually wrapped with
// fmt.Errorf("...: %w", err); callers classify them with Kind or errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindRateLimited
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Error is a classified error with a stable reason code.
type Error struct {
	Kind   Kind
	Reason string
	Msg    string
}

func (e *Error) Error() string {
	return e.Msg
}

// New creates a classified sentinel error.
func New(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Msg: msg}
}

var (
	ErrValidation  = New(KindValidation, "invalid", "invalid request")
	ErrNotFound    = New(KindNotFound, "not_found", "not found")
	ErrForbidden   = New(KindForbidden, "forbidden", "forbidden")
	ErrRateLimited = New(KindRateLimited, "rate_limited", "rate limit exceeded")
	ErrPersistence = New(KindPersistence, "persistence", "persistence failure")

	// Social graph
	ErrUserExists       = New(KindConflict, "user_exists", "user already exists")
	ErrUserNotFound     = New(KindNotFound, "user_not_found", "user not found")
	ErrInvalidTarget    = New(KindValidation, "invalid_target", "invalid target user")
	ErrAlreadyFriends   = New(KindConflict, "already_friends", "already friends")
	ErrAlreadyRequested = New(KindConflict, "already_requested", "friend request already pending")
	ErrNoRequest        = New(KindNotFound, "no_request", "no pending friend request")
	ErrFriendLimit      = New(KindConflict, "friend_limit", "friend limit reached")
	ErrBadCredentials   = New(KindForbidden, "invalid_credentials", "invalid credentials")

	// Guild hierarchy
	ErrGuildNotFound   = New(KindNotFound, "guild_not_found", "guild not found")
	ErrChannelNotFound = New(KindNotFound, "channel_not_found", "channel not found")
	ErrThreadNotFound  = New(KindNotFound, "thread_not_found", "thread not found")
	ErrInvalidInvite   = New(KindNotFound, "invalid_invite", "invalid invite code")
	ErrNotMember       = New(KindForbidden, "not_member", "not a guild member")
	ErrNotOwner        = New(KindForbidden, "forbidden", "only the guild owner may do this")
	ErrGuildLimit      = New(KindConflict, "guild_limit", "guild limit reached")
	ErrChannelLimit    = New(KindConflict, "channel_limit", "channel limit reached")
	ErrAssetNotFound   = New(KindNotFound, "asset_not_found", "emoji or sticker not found")

	// Messages
	ErrMessageNotFound = New(KindNotFound, "message_not_found", "message not found")
	ErrNotAuthor       = New(KindForbidden, "forbidden", "only the author may do this")
	ErrChannelReadOnly = New(KindForbidden, "read_only", "channel is read-only")
	ErrPinForbidden    = New(KindForbidden, "pin_forbidden", "only the guild owner may pin")
	ErrPollNotFound    = New(KindNotFound, "poll_not_found", "poll not found")
	ErrPollExists      = New(KindConflict, "poll_exists", "message already has a poll")
	ErrPollExpired     = New(KindValidation, "poll_expired", "poll has expired")
	ErrAlreadyVoted    = New(KindConflict, "already_voted", "already voted in this poll")
	ErrInvalidOption   = New(KindValidation, "invalid_option", "invalid poll option")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code of the first classified error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal"
}

// HTTPStatus maps an error to the response status used by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Invalid returns a validation error with a caller-specific message.
func Invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}
