package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/message"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// JoinRoom subscribes a connection to a room and sends it the newest page of
// history.
func (e *Engine) JoinRoom(ctx context.Context, user, conn, room string) error {
	key := roomkey.Parse(room)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return err
	}
	e.bus.Join(conn, key)
	e.emit(EventRoomJoined, RoomMembership{Room: key.String(), Username: user}, ToRoom(key))

	page := e.page(ctx, key, 1, message.DefaultPageSize)
	e.emit(EventMessagesHistory, page.Messages, ToConn(conn))
	return nil
}

// LeaveRoom unsubscribes a connection from a room.
func (e *Engine) LeaveRoom(ctx context.Context, user, conn, room string) error {
	key := roomkey.Parse(room)
	if key.IsZero() {
		return apperr.Invalid("room is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	e.emit(EventRoomLeft, RoomMembership{Room: key.String(), Username: user}, ToRoom(key))
	e.bus.Leave(conn, key)
	e.stopTyping(key, user)
	return nil
}

// Messages returns one page of a room's history, newest page first.
func (e *Engine) Messages(ctx context.Context, user, room string, page, size int) (*models.Page, error) {
	key := roomkey.Parse(room)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return nil, err
	}
	return e.page(ctx, key, page, size), nil
}

func (e *Engine) page(ctx context.Context, key roomkey.Key, page, size int) *models.Page {
	page, size = normalizePage(page, size)
	return e.pages.get(ctx, key, page, size, func() models.Page {
		return e.messages.Page(key, page, size)
	})
}

// SendMessage posts a message with an optional uploaded file.
func (e *Engine) SendMessage(ctx context.Context, user, room, body string, file *models.Attachment) (*models.Message, error) {
	key := roomkey.Parse(room)
	if !e.allow(ctx, user, ratelimit.ActionSendMessage) {
		return nil, fmt.Errorf("send to %s: %w", key, apperr.ErrRateLimited)
	}
	if err := requireAttachment(file); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.canPost(key, user); err != nil {
		return nil, err
	}
	msg, err := e.messages.Send(key, user, body, file)
	if err != nil {
		return nil, err
	}
	e.posted(ctx, key, msg)
	return msg, nil
}

// canPost checks send permission. A direct message also needs both
// participants to exist.
func (e *Engine) canPost(key roomkey.Key, user string) error {
	if err := e.gate.CanSend(key, user); err != nil {
		return err
	}
	if key.Kind() == roomkey.DirectMessage {
		a, b := key.Participants()
		other := a
		if other == user {
			other = b
		}
		if err := e.requireUser(other); err != nil {
			return fmt.Errorf("room %s: %w", key, err)
		}
	}
	return nil
}

func (e *Engine) posted(ctx context.Context, key roomkey.Key, msg *models.Message) {
	e.invalidate(ctx, key)
	e.stopTyping(key, msg.Author)
	e.emit(EventNewMessage, msg, ToRoom(key))
	metrics.MessagesPosted.WithLabelValues(key.Kind().String()).Inc()
	e.mirrorMessage(msg)
	e.persist()
}

// Typing starts or stops the user's typing indicator in a room.
func (e *Engine) Typing(ctx context.Context, user, room string, on bool) error {
	key := roomkey.Parse(room)
	if on && !e.allow(ctx, user, ratelimit.ActionTypingStart) {
		return fmt.Errorf("typing in %s: %w", key, apperr.ErrRateLimited)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return err
	}
	if e.presence.Typing(key, user, on) {
		e.emit(EventUserTyping, Typing{Username: user, Typing: on, Room: key.String()}, ToRoom(key))
	}
	return nil
}

func (e *Engine) stopTyping(key roomkey.Key, user string) {
	if e.presence.Typing(key, user, false) {
		e.emit(EventUserTyping, Typing{Username: user, Typing: false, Room: key.String()}, ToRoom(key))
	}
}

// EditMessage replaces the body of the user's own message.
func (e *Engine) EditMessage(ctx context.Context, user, room, id, body string) (*models.Message, error) {
	key := roomkey.Parse(room)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return nil, err
	}
	msg, err := e.messages.Edit(key, id, user, body)
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, key)
	ev := MessageEdited{Room: key.String(), MessageID: id, NewContent: msg.Body}
	if msg.EditedAt != nil {
		ev.EditedAt = *msg.EditedAt
	}
	e.emit(EventMessageEdited, ev, ToRoom(key))
	e.mirrorMessage(msg)
	e.persist()
	return msg, nil
}

// DeleteMessage removes the user's own message.
func (e *Engine) DeleteMessage(ctx context.Context, user, room, id string) error {
	key := roomkey.Parse(room)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return err
	}
	if err := e.messages.Delete(key, id, user); err != nil {
		return err
	}
	e.invalidate(ctx, key)
	e.emit(EventMessageDeleted, MessageDeleted{Room: key.String(), MessageID: id}, ToRoom(key))
	e.mirrorMessageDeleted(id)
	e.persist()
	return nil
}

// PinMessage sets or clears a message's pinned flag.
func (e *Engine) PinMessage(ctx context.Context, user, room, id string, pinned bool) (*models.Message, error) {
	key := roomkey.Parse(room)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanPin(key, user); err != nil {
		return nil, err
	}
	var (
		msg *models.Message
		err error
	)
	if pinned {
		msg, err = e.messages.Pin(key, id)
	} else {
		msg, err = e.messages.Unpin(key, id)
	}
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, key)
	e.emit(EventMessagePinned, MessagePinned{Room: key.String(), MessageID: id, Pinned: pinned}, ToRoom(key))
	e.mirrorMessage(msg)
	e.persist()
	return msg, nil
}

// React adds or removes the user's emoji reaction on a message.
func (e *Engine) React(ctx context.Context, user, room, id, emoji string, add bool) (*models.Message, error) {
	key := roomkey.Parse(room)
	if add && !e.allow(ctx, user, ratelimit.ActionAddReaction) {
		return nil, fmt.Errorf("react in %s: %w", key, apperr.ErrRateLimited)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return nil, err
	}
	var (
		msg *models.Message
		err error
	)
	if add {
		msg, err = e.messages.AddReaction(key, id, user, emoji)
	} else {
		msg, err = e.messages.RemoveReaction(key, id, user, emoji)
	}
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, key)
	e.emit(EventReactionUpdated, ReactionUpdated{Room: key.String(), MessageID: id, Reactions: msg.Reactions}, ToRoom(key))
	e.mirrorMessage(msg)
	e.persist()
	return msg, nil
}

// CreateThread opens a thread in a channel, optionally anchored to a message
// of that channel.
func (e *Engine) CreateThread(ctx context.Context, user, guildID, channelID, title, parentID string) (*models.Thread, error) {
	if !e.allow(ctx, user, ratelimit.ActionCreateThread) {
		return nil, fmt.Errorf("create thread: %w", apperr.ErrRateLimited)
	}
	chanKey := roomkey.Channel(guildID, channelID)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(chanKey, user); err != nil {
		return nil, err
	}
	if parentID != "" {
		if _, err := e.messages.Get(chanKey, parentID); err != nil {
			return nil, err
		}
	}
	th, err := e.guilds.CreateThread(guildID, channelID, title, user, parentID)
	if err != nil {
		return nil, err
	}
	threadKey := roomkey.ThreadOf(guildID, channelID, th.ID)
	e.messages.Ensure(threadKey)

	touched := []roomkey.Key{threadKey}
	if parentID != "" {
		if msg, err := e.messages.LinkThread(chanKey, parentID, th.ID); err == nil {
			touched = append(touched, chanKey)
			e.mirrorMessage(msg)
		}
	}
	e.invalidate(ctx, touched...)
	e.emit(EventThreadCreated, ThreadCreated{GuildID: guildID, ChannelID: channelID, Thread: th}, ToRoom(chanKey))
	e.persist()
	return th, nil
}

// PollRequest describes a poll to post.
type PollRequest struct {
	Question      string
	Options       []string
	ExpiresAt     *time.Time
	AllowMultiple bool
}

// CreatePoll posts a message carrying a poll.
func (e *Engine) CreatePoll(ctx context.Context, user, room string, req PollRequest) (*models.Message, error) {
	key := roomkey.Parse(room)
	if !e.allow(ctx, user, ratelimit.ActionSendMessage) {
		return nil, fmt.Errorf("poll in %s: %w", key, apperr.ErrRateLimited)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.canPost(key, user); err != nil {
		return nil, err
	}
	msg, err := e.messages.SendPoll(key, user, message.PollDraft{
		Question:      req.Question,
		Options:       req.Options,
		ExpiresAt:     req.ExpiresAt,
		AllowMultiple: req.AllowMultiple,
	})
	if err != nil {
		return nil, err
	}
	e.posted(ctx, key, msg)
	return msg, nil
}

// VotePoll records the user's vote for a poll option.
func (e *Engine) VotePoll(ctx context.Context, user, room, id, optionID string) (*models.Message, error) {
	key := roomkey.Parse(room)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.gate.CanRead(key, user); err != nil {
		return nil, err
	}
	msg, err := e.messages.Vote(key, id, user, optionID)
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, key)
	e.emit(EventPollUpdated, PollUpdated{Room: key.String(), MessageID: id, Poll: msg.Poll}, ToRoom(key))
	e.mirrorMessage(msg)
	e.persist()
	return msg, nil
}
