package session

import (
	"strings"

	"github.com/google/uuid"
)

const idPrefix = "session_"

// NewID returns an opaque session identifier built from a random UUID. It is
// unique against accidental collision among concurrent clients and carries no
// personal data.
func NewID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShortID is the display form of a session identifier: its last 8 characters.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
