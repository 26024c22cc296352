package migration

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gostudio/internal"
	"gostudio/internal/errors"
)

// Dialect selects the SQL flavour of a migration
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// step is one numbered schema change with a statement list per dialect
type step struct {
	version    int
	name       string
	statements map[Dialect][]string
}

// steps are applied in order and recorded in schema_migrations. Never edit an
// applied step; append a new one.
var steps = []step{
	{
		version: 1,
		name:    "create studio_sessions",
		statements: map[Dialect][]string{
			Postgres: {`
				CREATE TABLE IF NOT EXISTS studio_sessions (
					id UUID PRIMARY KEY,
					phase VARCHAR(50) NOT NULL,
					snapshot JSONB NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				)`,
			},
			SQLite: {`
				CREATE TABLE IF NOT EXISTS studio_sessions (
					id TEXT PRIMARY KEY,
					phase TEXT NOT NULL,
					snapshot TEXT NOT NULL,
					created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TEXT NOT NULL
				)`,
			},
		},
	},
	{
		version: 2,
		name:    "index studio_sessions",
		statements: map[Dialect][]string{
			Postgres: {
				`CREATE INDEX IF NOT EXISTS idx_studio_sessions_updated_at ON studio_sessions(updated_at)`,
				`CREATE INDEX IF NOT EXISTS idx_studio_sessions_phase ON studio_sessions(phase)`,
			},
			SQLite: {
				`CREATE INDEX IF NOT EXISTS idx_studio_sessions_updated_at ON studio_sessions(updated_at)`,
				`CREATE INDEX IF NOT EXISTS idx_studio_sessions_phase ON studio_sessions(phase)`,
			},
		},
	},
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	dialect Dialect
	logger  *internal.Logger
}

// NewRunner creates a new migration runner for dialect
func NewRunner(dialect Dialect) *MigrationRunner {
	return &MigrationRunner{dialect: dialect, logger: internal.DefaultLogger}
}

// Version returns the schema version the runner migrates to
func (r *MigrationRunner) Version() string {
	return fmt.Sprintf("%d", steps[len(steps)-1].version)
}

// Run applies every step not yet recorded, each in its own transaction
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if r.dialect != Postgres && r.dialect != SQLite {
		return errors.ConfigInvalid(fmt.Sprintf("unsupported migration dialect %q", r.dialect))
	}
	if err := r.createMigrationsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create schema_migrations table", err)
	}

	applied, err := r.appliedVersions(ctx, db)
	if err != nil {
		return errors.DatabaseError("failed to read applied migrations", err)
	}

	for _, s := range steps {
		if applied[s.version] {
			continue
		}
		if err := r.apply(ctx, db, s); err != nil {
			return errors.DatabaseError(fmt.Sprintf("migration %d (%s) failed", s.version, s.name), err)
		}
		r.logger.Info("[Migration] Applied %d: %s (%s)", s.version, s.name, r.dialect)
	}
	return nil
}

func (r *MigrationRunner) createMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) appliedVersions(ctx context.Context, db *sqlx.DB) (map[int]bool, error) {
	var versions []int
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (r *MigrationRunner) apply(ctx context.Context, db *sqlx.DB, s step) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range s.statements[r.dialect] {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`), s.version, s.name); err != nil {
		return err
	}
	return tx.Commit()
}
