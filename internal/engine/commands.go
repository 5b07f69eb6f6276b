package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/models"
)

// Push commands accepted from a live connection.
const (
	CmdJoinRoom       = "join_room"
	CmdLeaveRoom      = "leave_room"
	CmdSendMessage    = "send_message"
	CmdGetMessages    = "get_messages"
	CmdTypingStart    = "typing_start"
	CmdTypingStop     = "typing_stop"
	CmdEditMessage    = "edit_message"
	CmdDeleteMessage  = "delete_message"
	CmdPinMessage     = "pin_message"
	CmdUnpinMessage   = "unpin_message"
	CmdAddReaction    = "add_reaction"
	CmdRemoveReaction = "remove_reaction"
	CmdCreateThread   = "create_thread"
	CmdCreatePoll     = "create_poll"
	CmdVotePoll       = "vote_poll"
)

type roomRequest struct {
	Room string `json:"room"`
}

type sendRequest struct {
	Room    string             `json:"room"`
	Message string             `json:"message"`
	File    *attachmentRequest `json:"file,omitempty"`
}

type attachmentRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

func (a *attachmentRequest) attachment() *models.Attachment {
	if a == nil {
		return nil
	}
	return &models.Attachment{Name: a.Name, URL: a.URL, Type: a.Type, Size: a.Size}
}

type pageRequest struct {
	Room  string `json:"room"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type messageRequest struct {
	Room       string `json:"room"`
	MessageID  string `json:"message_id"`
	NewContent string `json:"new_content,omitempty"`
	Emoji      string `json:"emoji,omitempty"`
	OptionID   string `json:"option_id,omitempty"`
}

type threadRequest struct {
	GuildID         string `json:"guild_id"`
	ChannelID       string `json:"channel_id"`
	Title           string `json:"title"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
}

type pollRequest struct {
	Room          string     `json:"room"`
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	AllowMultiple bool       `json:"allow_multiple"`
}

// HandleCommand runs one push command from conn. Rate-limited commands are
// dropped silently; any other failure is answered with permission_error on
// the same connection. The returned error is for logging only.
func (e *Engine) HandleCommand(ctx context.Context, user, conn, name string, raw json.RawMessage) error {
	err := e.dispatch(ctx, user, conn, name, raw)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrRateLimited):
		result = "rate_limited"
	default:
		result = "error"
		e.emit(EventPermissionError, PermissionError{Reason: Reason(err), Event: name}, ToConn(conn))
	}
	metrics.Commands.WithLabelValues(name, result).Inc()

	if err != nil {
		e.logger.Debug().Err(err).Str("user", user).Str("command", name).Msg("command rejected")
	}
	return err
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return apperr.Invalid("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Invalid("malformed payload")
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, user, conn, name string, raw json.RawMessage) error {
	switch name {
	case CmdJoinRoom, CmdLeaveRoom, CmdTypingStart, CmdTypingStop:
		var req roomRequest
		if err := decode(raw, &req); err != nil {
			return err
		}
		switch name {
		case CmdJoinRoom:
			return e.JoinRoom(ctx, user, conn, req.Room)
		case CmdLeaveRoom:
			return e.LeaveRoom(ctx, user, conn, req.Room)
		default:
			return e.Typing(ctx, user, req.Room, name == CmdTypingStart)
		}

	case CmdSendMessage:
		var req sendRequest
		if err := decode(raw, &req); err != nil {
			return err
		}
		_, err := e.SendMessage(ctx, user, req.Room, req.Message, req.File.attachment())
		return err

	case CmdGetMessages:
		var req pageRequest
		if err := decode(raw, &req); err != nil {
			return err
		}
		page, err := e.Messages(ctx, user, req.Room, req.Page, req.Limit)
		if err != nil {
			return err
		}
		e.emit(EventMessagesHistory, page.Messages, ToConn(conn))
		return nil

	case CmdEditMessage, CmdDeleteMessage, CmdPinMessage, CmdUnpinMessage,
		CmdAddReaction, CmdRemoveReaction, CmdVotePoll:
		var req messageRequest
		if err := decode(raw, &req); err != nil {
			return err
		}
		if req.MessageID == "" {
			return apperr.Invalid("message_id is required")
		}
		return e.messageCommand(ctx, user, name, req)

	case CmdCreateThread:
		var req threadRequest
		if err := decode(raw, &req); err != nil {
			return err
		}
		_, err := e.CreateThread(ctx, user, req.GuildID, req.ChannelID, req.Title, req.ParentMessageID)
		return err

	case CmdCreatePoll:
		var req pollRequest
		if err := decode(raw, &req); err != nil {
			return err
		}
		_, err := e.CreatePoll(ctx, user, req.Room, PollRequest{
			Question:      req.Question,
			Options:       req.Options,
			ExpiresAt:     req.ExpiresAt,
			AllowMultiple: req.AllowMultiple,
		})
		return err
	}
	return apperr.Invalid("unknown command " + name)
}

func (e *Engine) messageCommand(ctx context.Context, user, name string, req messageRequest) error {
	var err error
	switch name {
	case CmdEditMessage:
		_, err = e.EditMessage(ctx, user, req.Room, req.MessageID, req.NewContent)
	case CmdDeleteMessage:
		err = e.DeleteMessage(ctx, user, req.Room, req.MessageID)
	case CmdPinMessage, CmdUnpinMessage:
		_, err = e.PinMessage(ctx, user, req.Room, req.MessageID, name == CmdPinMessage)
	case CmdAddReaction, CmdRemoveReaction:
		_, err = e.React(ctx, user, req.Room, req.MessageID, req.Emoji, name == CmdAddReaction)
	case CmdVotePoll:
		_, err = e.VotePoll(ctx, user, req.Room, req.MessageID, req.OptionID)
	}
	return err
}
