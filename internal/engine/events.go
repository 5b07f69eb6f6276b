package engine

import (
	"time"

	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// Push event names.
const (
	EventUserStatus             = "user_status"
	EventRoomJoined             = "room_joined"
	EventRoomLeft               = "room_left"
	EventNewMessage             = "new_message"
	EventMessagesHistory        = "messages_history"
	EventUserTyping             = "user_typing"
	EventMessageEdited          = "message_edited"
	EventMessageDeleted         = "message_deleted"
	EventMessagePinned          = "message_pinned"
	EventReactionUpdated        = "reaction_updated"
	EventPollUpdated            = "poll_updated"
	EventPermissionError        = "permission_error"
	EventThreadCreated          = "thread_created"
	EventFriendsUpdate          = "friends_update"
	EventGuildsUpdated          = "guilds_updated"
	EventChannelsUpdated        = "channels_updated"
	EventChannelSettingsUpdated = "channel_settings_updated"
)

// Target addresses an event: one connection, the live connections of some
// users, a room's subscribers, or everyone.
type Target struct {
	Conn  string
	Users []string
	Room  roomkey.Key
	All   bool
}

// ToConn targets a single connection.
func ToConn(id string) Target { return Target{Conn: id} }

// ToUsers targets every connection of the given users.
func ToUsers(users ...string) Target { return Target{Users: users} }

// ToRoom targets the subscribers of a room.
func ToRoom(k roomkey.Key) Target { return Target{Room: k} }

// ToAll targets every connection.
func ToAll() Target { return Target{All: true} }

// Broadcaster delivers events and tracks which connections subscribe to which
// rooms. Emit must not block on delivery.
type Broadcaster interface {
	Emit(event string, payload any, to Target)
	Join(conn string, room roomkey.Key)
	Leave(conn string, room roomkey.Key)
	Rooms(conn string) []roomkey.Key
}

// Event payloads.
type (
	UserStatus struct {
		Username string `json:"username"`
		Online   bool   `json:"online"`
	}

	RoomMembership struct {
		Room     string `json:"room"`
		Username string `json:"username"`
	}

	Typing struct {
		Username string `json:"username"`
		Typing   bool   `json:"typing"`
		Room     string `json:"room"`
	}

	MessageEdited struct {
		Room       string    `json:"room"`
		MessageID  string    `json:"message_id"`
		NewContent string    `json:"new_content"`
		EditedAt   time.Time `json:"edited_at"`
	}

	MessageDeleted struct {
		Room      string `json:"room"`
		MessageID string `json:"message_id"`
	}

	MessagePinned struct {
		Room      string `json:"room"`
		MessageID string `json:"message_id"`
		Pinned    bool   `json:"pinned"`
	}

	ReactionUpdated struct {
		Room      string              `json:"room"`
		MessageID string              `json:"message_id"`
		Reactions map[string][]string `json:"reactions"`
	}

	PollUpdated struct {
		Room      string       `json:"room"`
		MessageID string       `json:"message_id"`
		Poll      *models.Poll `json:"poll"`
	}

	PermissionError struct {
		Reason string `json:"reason"`
		Event  string `json:"event,omitempty"`
	}

	ThreadCreated struct {
		GuildID   string         `json:"guild_id"`
		ChannelID string         `json:"channel_id"`
		Thread    *models.Thread `json:"thread"`
	}

	FriendsUpdate struct {
		Username string `json:"username"`
	}

	GuildsUpdated struct {
		GuildID string `json:"guild_id"`
	}

	ChannelsUpdated struct {
		GuildID   string `json:"guild_id"`
		ChannelID string `json:"channel_id"`
	}

	ChannelSettingsUpdated struct {
		GuildID   string `json:"guild_id"`
		ChannelID string `json:"channel_id"`
		ReadOnly  bool   `json:"read_only"`
	}
)
