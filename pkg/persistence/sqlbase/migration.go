// Package sqlbase holds the schema migration runner shared by SQL backends.
package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

var (
	ErrDuplicateVersion = errors.New("duplicate migration version")
	ErrInvalidVersion   = errors.New("migration version must be positive")
)

// Migration is one schema step. Versions must be unique and positive.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Dialect supplies the statements that differ between SQL engines.
type Dialect struct {
	// Lock runs first inside each migration transaction and must block until the
	// caller holds a transaction-scoped lock. Empty disables locking.
	Lock string
	// Record inserts the version and name; it must be a no-op for a version that
	// is already recorded.
	Record string
}

// PostgresDialect serializes concurrent migrators with an advisory lock.
var PostgresDialect = Dialect{
	Lock:   "SELECT pg_advisory_xact_lock(7259081405)",
	Record: "INSERT INTO schema_migrations (version, name) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
}

// Migrator applies pending migrations in version order, one transaction each.
// Several processes may run it at once; every migration is applied exactly once.
type Migrator struct {
	db         *sql.DB
	dialect    Dialect
	logger     *slog.Logger
	migrations []Migration
}

func NewMigrator(logger *slog.Logger, db *sql.DB, dialect Dialect, migrations []Migration) (*Migrator, error) {
	ordered := slices.Clone(migrations)
	slices.SortFunc(ordered, func(a, b Migration) int { return a.Version - b.Version })

	for i, migration := range ordered {
		if migration.Version <= 0 {
			return nil, fmt.Errorf("%w: %q has version %d", ErrInvalidVersion, migration.Name, migration.Version)
		}

		if i > 0 && ordered[i-1].Version == migration.Version {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVersion, migration.Version)
		}
	}

	return &Migrator{
		db:         db,
		dialect:    dialect,
		logger:     logger.With("module", "migrations"),
		migrations: ordered,
	}, nil
}

// LatestVersion is the highest known migration version.
func (m *Migrator) LatestVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return m.migrations[len(m.migrations)-1].Version
}

// Pending lists the migrations above version, in order.
func (m *Migrator) Pending(version int) []Migration {
	index, _ := slices.BinarySearchFunc(m.migrations, version+1, func(migration Migration, target int) int {
		return migration.Version - target
	})

	return m.migrations[index:]
}

// Run brings the schema up to LatestVersion.
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	pending := m.Pending(current)
	m.logger.InfoContext(ctx, "Checking database schema", "version", current, "pending", len(pending))

	for _, migration := range pending {
		applied, err := m.apply(ctx, migration)
		if err != nil {
			return err
		}

		if applied {
			m.logger.InfoContext(ctx, "Migration applied", "version", migration.Version, "name", migration.Name)
		}
	}

	return nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema_migrations setup: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if m.dialect.Lock != "" {
		if _, err := tx.ExecContext(ctx, m.dialect.Lock); err != nil {
			return fmt.Errorf("failed to lock schema: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return tx.Commit()
}

// CurrentVersion returns the highest applied schema version.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int

	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query current schema version: %w", err)
	}

	return version, nil
}

// apply runs one migration unless another process recorded it first.
func (m *Migrator) apply(ctx context.Context, migration Migration) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
	}

	defer func() { _ = tx.Rollback() }()

	if m.dialect.Lock != "" {
		if _, err := tx.ExecContext(ctx, m.dialect.Lock); err != nil {
			return false, fmt.Errorf("failed to lock schema for migration %d: %w", migration.Version, err)
		}
	}

	var done bool

	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", migration.Version).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
	}

	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return false, fmt.Errorf("failed to execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if _, err := tx.ExecContext(ctx, m.dialect.Record, migration.Version, migration.Name); err != nil {
		return false, fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	return true, nil
}
