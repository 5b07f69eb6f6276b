package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile field limits.
const (
	MaxBioLength    = 200
	MaxStatusLength = 80
	MaxNoteLength   = 256
)

// DeletedUser replaces the author of messages written by a deleted account.
const DeletedUser = "deleted_user"

// User represents a registered account.
type User struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Credential string    `json:"password"` // opaque hash owned by the auth provider
	Online     bool      `json:"online"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	StatusText string    `json:"status_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// Notes are private annotations about other users, keyed by their name.
	Notes map[string]string `json:"notes,omitempty"`
}

// Clone returns a copy that shares no maps with u.
func (u User) Clone() User {
	if u.Notes != nil {
		notes := make(map[string]string, len(u.Notes))
		for k, v := range u.Notes {
			notes[k] = v
		}
		u.Notes = notes
	}
	return u
}

// PublicUser is the view of a user shown to other users.
type PublicUser struct {
	Username   string `json:"username"`
	Online     bool   `json:"online"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Bio        string `json:"bio,omitempty"`
	StatusText string `json:"status_text,omitempty"`
}

// Public strips the credential reference.
func (u *User) Public() PublicUser {
	return PublicUser{
		Username:   u.Username,
		Online:     u.Online,
		AvatarURL:  u.AvatarURL,
		Bio:        u.Bio,
		StatusText: u.StatusText,
	}
}

// ProfileUpdate holds optional profile changes. Nil fields are left unchanged.
type ProfileUpdate struct {
	AvatarURL  *string `json:"avatar_url,omitempty"`
	Bio        *string `json:"bio,omitempty"`
	StatusText *string `json:"status_text,omitempty"`
}
