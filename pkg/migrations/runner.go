package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/openctemio/authz/pkg/logger"
)

// Runner executes database migrations.
type Runner struct {
	db     *sql.DB
	fsys   fs.FS
	logger *logger.Logger
}

// NewRunner creates a new migration runner.
func NewRunner(db *sql.DB, fsys fs.FS, log *logger.Logger) *Runner {
	return &Runner{
		db:     db,
		fsys:   fsys,
		logger: log.With("component", "migrations"),
	}
}

// MigrationRecord represents a migration in the schema_migrations table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// EnsureMigrationTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Applied returns all applied migration versions.
func (r *Runner) Applied(ctx context.Context) ([]MigrationRecord, error) {
	query := `SELECT version, applied_at FROM schema_migrations ORDER BY version`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		if err := rows.Scan(&rec.Version, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Pending returns the up migrations that have not been applied.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	available, err := Load(r.fsys, "up")
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedSet := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	var pending []Migration
	for _, m := range available {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Up runs all pending migrations, each in its own transaction.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	pending, err := r.Pending(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		r.logger.Info("no pending migrations")
		return nil
	}

	for _, m := range pending {
		if err := r.apply(ctx, m, true); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		r.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down(ctx context.Context) error {
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		r.logger.Info("no migrations to roll back")
		return nil
	}
	last := applied[len(applied)-1]

	downs, err := Load(r.fsys, "down")
	if err != nil {
		return err
	}
	for _, m := range downs {
		if m.Version != last.Version {
			continue
		}
		if err := r.apply(ctx, m, false); err != nil {
			return fmt.Errorf("rollback %s failed: %w", m.Version, err)
		}
		r.logger.Info("migration rolled back", "version", m.Version, "name", m.Name)
		return nil
	}

	return fmt.Errorf("down migration not found for version %s", last.Version)
}

// apply executes one migration file and records (or removes) its version
// in the same transaction.
func (r *Runner) apply(ctx context.Context, m Migration, up bool) error {
	content, err := fs.ReadFile(r.fsys, m.Path)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}

	if up {
		_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version)
	} else {
		_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
