package models

import (
	"time"

	"github.com/oleg-messenger/oleg/internal/roomkey"
)

// Message limits.
const (
	MaxMessageLength   = 4000
	MaxMessagesPerRoom = 10000
	MinPollOptions     = 2
	MaxPollOptions     = 10
)

// Message represents a chat message in a room log.
type Message struct {
	ID        string              `json:"id"` // ULID
	Room      roomkey.Key         `json:"room"`
	Author    string              `json:"username"`
	Body      string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
	File      *Attachment         `json:"file,omitempty"`
	Edited    bool                `json:"edited"`
	EditedAt  *time.Time          `json:"edited_at,omitempty"`
	Pinned    bool                `json:"pinned"`
	Reactions map[string][]string `json:"reactions"` // emoji -> sorted usernames
	ThreadID  string              `json:"thread_id,omitempty"`
	Poll      *Poll               `json:"poll,omitempty"`
}

// Attachment references an uploaded file.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Poll is attached to a message; expiry is checked when a vote arrives.
type Poll struct {
	ID            string              `json:"id"`
	Question      string              `json:"question"`
	Options       []PollOption        `json:"options"`
	Voters        map[string][]string `json:"voters"` // username -> option ids
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	AllowMultiple bool                `json:"allow_multiple"`
}

// PollOption is one answer of a poll.
type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Clone returns a deep copy of m so callers never share mutable state with a store.
func (m *Message) Clone() *Message {
	c := *m
	if m.File != nil {
		f := *m.File
		c.File = &f
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	c.Reactions = make(map[string][]string, len(m.Reactions))
	for emoji, users := range m.Reactions {
		c.Reactions[emoji] = append([]string(nil), users...)
	}
	if m.Poll != nil {
		c.Poll = m.Poll.Clone()
	}
	return &c
}

// Clone returns a deep copy of p.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]PollOption(nil), p.Options...)
	c.Voters = make(map[string][]string, len(p.Voters))
	for user, opts := range p.Voters {
		c.Voters[user] = append([]string(nil), opts...)
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Page is one page of a room's history together with pagination metadata.
type Page struct {
	Room     string     `json:"room"`
	Messages []*Message `json:"messages"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Total    int        `json:"total"`
	HasMore  bool       `json:"has_more"`
}
