package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver.

	"gostudio/domain/core"
	"gostudio/internal/migration"
	"gostudio/ports"
)

// SessionStore keeps session snapshots in an embedded SQLite file. Use ":memory:"
// for a throwaway database.
type SessionStore struct {
	db *sqlx.DB
}

type snapshotRow struct {
	ID        string `db:"id"`
	Phase     string `db:"phase"`
	Snapshot  string `db:"snapshot"`
	UpdatedAt string `db:"updated_at"`
}

// Open opens or creates the database at path and applies migrations
func Open(ctx context.Context, path string) (*SessionStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// one connection serializes writers and keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if err := migration.NewRunner(migration.SQLite).Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SessionStore{db: db}, nil
}

// Close closes the underlying database
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the snapshot
func (s *SessionStore) Save(ctx context.Context, snap ports.SessionSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO studio_sessions (id, phase, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			phase = excluded.phase,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, string(snap.ID), snap.Phase, string(snap.Data), snap.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", snap.ID, err)
	}
	return nil
}

// Load returns core.ErrSessionNotFound for unknown ids
func (s *SessionStore) Load(ctx context.Context, id core.SessionID) (*ports.SessionSnapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phase, snapshot, updated_at
		FROM studio_sessions
		WHERE id = ?
	`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("session %s has a malformed updated_at %q: %w", id, row.UpdatedAt, err)
	}
	return &ports.SessionSnapshot{
		ID:        core.SessionID(row.ID),
		Phase:     row.Phase,
		Data:      []byte(row.Snapshot),
		UpdatedAt: updatedAt,
	}, nil
}

// Delete removes the snapshot if present
func (s *SessionStore) Delete(ctx context.Context, id core.SessionID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM studio_sessions WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored sessions
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM studio_sessions`)
	return n, err
}
