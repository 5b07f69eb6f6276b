// Package roomkey implements the addressing scheme shared by every message log:
//
//	dm:<userA>:<userB>                      direct message, participants sorted
//	g:<guildId>:c:<channelId>               guild channel
//	g:<guildId>:c:<channelId>:t:<threadId>  thread inside a guild channel
//
// Any other string names a legacy room. Keys arrive from clients, so Parse never
// fails; input that does not match a structured form degrades to a legacy key.
package roomkey

import (
	"strings"
)

// Kind is the shape of a room key.
type Kind int

const (
	Legacy Kind = iota
	DirectMessage
	GuildChannel
	Thread
)

func (k Kind) String() string {
	switch k {
	case DirectMessage:
		return "dm"
	case GuildChannel:
		return "channel"
	case Thread:
		return "thread"
	default:
		return "legacy"
	}
}

const sep = ":"

// Key is a parsed room address. The zero value is the empty legacy room.
// Keys are comparable and safe to use as map keys.
type Key struct {
	kind    Kind
	userA   string
	userB   string
	guild   string
	channel string
	thread  string
	name    string
}

// Parse decodes a room string. It is total: malformed input yields a legacy key
// whose String is the input unchanged.
func Parse(s string) Key {
	parts := strings.Split(s, sep)
	for _, p := range parts {
		if p == "" {
			return Key{kind: Legacy, name: s}
		}
	}

	switch {
	case len(parts) == 3 && parts[0] == "dm":
		a, b := parts[1], parts[2]
		if b < a {
			a, b = b, a
		}
		return Key{kind: DirectMessage, userA: a, userB: b}
	case len(parts) == 4 && parts[0] == "g" && parts[2] == "c":
		return Key{kind: GuildChannel, guild: parts[1], channel: parts[3]}
	case len(parts) == 6 && parts[0] == "g" && parts[2] == "c" && parts[4] == "t":
		return Key{kind: Thread, guild: parts[1], channel: parts[3], thread: parts[5]}
	}
	return Key{kind: Legacy, name: s}
}

// DM returns the direct message room between two users. DM(a, b) == DM(b, a).
func DM(a, b string) Key {
	if b < a {
		a, b = b, a
	}
	return Parse(strings.Join([]string{"dm", a, b}, sep))
}

// Channel returns the room of a guild channel.
func Channel(guildID, channelID string) Key {
	return Parse(strings.Join([]string{"g", guildID, "c", channelID}, sep))
}

// ThreadOf returns the room of a thread inside a guild channel.
func ThreadOf(guildID, channelID, threadID string) Key {
	return Parse(strings.Join([]string{"g", guildID, "c", channelID, "t", threadID}, sep))
}

// Named returns the key for a free-form room name. A name that happens to match a
// structured form addresses that structured room.
func Named(name string) Key {
	return Parse(name)
}

// String encodes the key in its canonical form.
func (k Key) String() string {
	switch k.kind {
	case DirectMessage:
		return strings.Join([]string{"dm", k.userA, k.userB}, sep)
	case GuildChannel:
		return strings.Join([]string{"g", k.guild, "c", k.channel}, sep)
	case Thread:
		return strings.Join([]string{"g", k.guild, "c", k.channel, "t", k.thread}, sep)
	default:
		return k.name
	}
}

func (k Key) Kind() Kind { return k.kind }

// IsZero reports whether k is the empty legacy room.
func (k Key) IsZero() bool { return k == Key{} }

// IsGuild reports whether k addresses a guild channel or one of its threads.
func (k Key) IsGuild() bool { return k.kind == GuildChannel || k.kind == Thread }

func (k Key) GuildID() string   { return k.guild }
func (k Key) ChannelID() string { return k.channel }
func (k Key) ThreadID() string  { return k.thread }

// Participants returns the two users of a direct message room in sorted order.
func (k Key) Participants() (string, string) {
	return k.userA, k.userB
}

// Involves reports whether user is a participant of a direct message room.
func (k Key) Involves(user string) bool {
	return k.kind == DirectMessage && (k.userA == user || k.userB == user)
}

// ChannelKey returns the channel room a thread belongs to. For any other key it
// returns k itself.
func (k Key) ChannelKey() Key {
	if k.kind != Thread {
		return k
	}
	return Key{kind: GuildChannel, guild: k.guild, channel: k.channel}
}

// MarshalText implements encoding.TextMarshaler so keys can be JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	*k = Parse(string(b))
	return nil
}
