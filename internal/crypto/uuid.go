package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewID returns a UUID v7 in its string form, used for guild, channel and thread ids.
func NewID() string {
	return NewUUIDv7().String()
}

// NewULID returns a lexically sortable id, used for messages and blob names.
func NewULID() string {
	return ulid.Make().String()
}
