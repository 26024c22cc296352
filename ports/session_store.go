package ports

import (
	"context"
	"time"

	"gostudio/domain/core"
)

// SessionSnapshot is the serialized form of one session as the store keeps it
type SessionSnapshot struct {
	ID        core.SessionID
	Phase     string
	Data      []byte // session.Encode output
	UpdatedAt time.Time
}

// SessionStore persists session snapshots by id
type SessionStore interface {
	// Save inserts or replaces the snapshot
	Save(ctx context.Context, snap SessionSnapshot) error

	// Load returns core.ErrSessionNotFound when no snapshot exists
	Load(ctx context.Context, id core.SessionID) (*SessionSnapshot, error)

	// Delete is a no-op for unknown ids
	Delete(ctx context.Context, id core.SessionID) error
}
