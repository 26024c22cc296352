package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SessionID identifies one analysis session. Ids are UUID v7 strings, so they
// sort by creation time.
type SessionID string

func (id SessionID) String() string { return string(id) }

// NewSessionID creates a time-ordered session identifier
func NewSessionID() SessionID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return SessionID(id.String())
}

// ParseSessionID validates an externally supplied session id and returns it in
// canonical lower-case form
func ParseSessionID(s string) (SessionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid session ID %q: %w", s, err)
	}
	return SessionID(id.String()), nil
}
