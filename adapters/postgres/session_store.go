package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver.

	"gostudio/domain/core"
	apperrors "gostudio/internal/errors"
	"gostudio/internal/migration"
	"gostudio/ports"
)

// SessionStore keeps session snapshots in a JSONB column
type SessionStore struct {
	db *sqlx.DB
}

// Connect opens the database, checks it is reachable and applies migrations
func Connect(ctx context.Context, url string) (*SessionStore, error) {
	if url == "" {
		return nil, apperrors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to database", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := migration.NewRunner(migration.Postgres).Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(err, "database migration failed")
	}
	return NewSessionStore(db), nil
}

// NewSessionStore wraps an already migrated database
func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Close closes the underlying database
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the snapshot
func (s *SessionStore) Save(ctx context.Context, snap ports.SessionSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO studio_sessions (id, phase, snapshot, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at
	`, string(snap.ID), snap.Phase, string(snap.Data), snap.UpdatedAt)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("failed to save session %s", snap.ID), err)
	}
	return nil
}

// Load returns core.ErrSessionNotFound for unknown ids
func (s *SessionStore) Load(ctx context.Context, id core.SessionID) (*ports.SessionSnapshot, error) {
	var row struct {
		ID        string    `db:"id"`
		Phase     string    `db:"phase"`
		Snapshot  []byte    `db:"snapshot"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phase, snapshot, updated_at
		FROM studio_sessions
		WHERE id = $1
	`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to load session %s", id), err)
	}
	return &ports.SessionSnapshot{
		ID:        core.SessionID(row.ID),
		Phase:     row.Phase,
		Data:      row.Snapshot,
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

// Delete removes the snapshot if present
func (s *SessionStore) Delete(ctx context.Context, id core.SessionID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM studio_sessions WHERE id = $1`, string(id)); err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("failed to delete session %s", id), err)
	}
	return nil
}
