// Package snapshot serializes the engine state into a single portable
// document and writes it asynchronously through a versioned single writer.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
	"github.com/oleg-messenger/oleg/internal/social"
)

// Document is the on-disk and export format. Sets are sorted lists and the
// thread index is keyed by "<guildId>:<channelId>".
type Document struct {
	Users             map[string]models.User              `json:"users"`
	Rooms             []string                            `json:"rooms"`
	Messages          map[string][]*models.Message        `json:"messages"`
	Friendships       map[string][]string                 `json:"friendships"`
	FriendRequestsIn  map[string][]string                 `json:"friend_requests_in"`
	FriendRequestsOut map[string][]string                 `json:"friend_requests_out"`
	Guilds            map[string]*models.Guild            `json:"guilds"`
	MemberOfGuild     map[string][]string                 `json:"member_of_guild"`
	Invites           map[string]string                   `json:"invites"`
	ThreadsIndex      map[string]map[string]models.Thread `json:"threads_index"`
	Admins            []string                            `json:"admins"`
}

// State is the in-memory form of a document.
type State struct {
	Social   social.State
	Guilds   guild.State
	Messages map[roomkey.Key][]*models.Message
	Admins   []string
}

// Empty returns a state with every collection allocated.
func Empty() State {
	return Restore(Document{})
}

// Capture flattens st into a document.
func Capture(st State) Document {
	doc := Document{
		Users:             orEmpty(st.Social.Users),
		Rooms:             []string{},
		Messages:          make(map[string][]*models.Message, len(st.Messages)),
		Friendships:       orEmpty(st.Social.Friendships),
		FriendRequestsIn:  orEmpty(st.Social.Incoming),
		FriendRequestsOut: orEmpty(st.Social.Outgoing),
		Guilds:            orEmpty(st.Guilds.Guilds),
		MemberOfGuild:     orEmpty(st.Guilds.Members),
		Invites:           orEmpty(st.Guilds.Invites),
		ThreadsIndex:      orEmpty(st.Guilds.Threads),
		Admins:            sortedCopy(st.Admins),
	}
	for key, msgs := range st.Messages {
		name := key.String()
		if msgs == nil {
			msgs = []*models.Message{}
		}
		doc.Messages[name] = msgs
		if key.Kind() == roomkey.Legacy {
			doc.Rooms = append(doc.Rooms, name)
		}
	}
	sort.Strings(doc.Rooms)
	return doc
}

// Restore rebuilds a state from doc. Missing collections become empty.
func Restore(doc Document) State {
	st := State{
		Social: social.State{
			Users:       orEmpty(doc.Users),
			Friendships: orEmpty(doc.Friendships),
			Incoming:    orEmpty(doc.FriendRequestsIn),
			Outgoing:    orEmpty(doc.FriendRequestsOut),
		},
		Guilds: guild.State{
			Guilds:  orEmpty(doc.Guilds),
			Members: orEmpty(doc.MemberOfGuild),
			Invites: orEmpty(doc.Invites),
			Threads: orEmpty(doc.ThreadsIndex),
		},
		Messages: make(map[roomkey.Key][]*models.Message, len(doc.Messages)+len(doc.Rooms)),
		Admins:   sortedCopy(doc.Admins),
	}
	for name, msgs := range doc.Messages {
		if msgs == nil {
			msgs = []*models.Message{}
		}
		st.Messages[roomkey.Parse(name)] = msgs
	}
	for _, name := range doc.Rooms {
		key := roomkey.Named(name)
		if _, ok := st.Messages[key]; !ok {
			st.Messages[key] = []*models.Message{}
		}
	}
	return st
}

// Encode serializes a document.
func Encode(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a document. Anything other than a JSON object is rejected.
func Decode(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Document{}, fmt.Errorf("decode snapshot: %w", ErrCorrupt)
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w: %v", ErrCorrupt, err)
	}
	return doc, nil
}

func orEmpty[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return m
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
