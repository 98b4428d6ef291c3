package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite/migrations"
)

// targetVersion is the schema version this binary expects. Opening an
// older database applies pending migrations in order; opening a newer one
// (a downgrade) is a schema mismatch and fatal.
const targetVersion = 1

// runMigrations applies every pending numbered migration inside its own
// transaction, recording progress in schema_migrations, mirroring the
// teacher's migrations/*.go idempotent-under-retry convention.
func runMigrations(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("sqlite: creating schema_migrations: %w", err)
	}

	current, err := currentVersion(ctx, conn)
	if err != nil {
		return err
	}
	if current > targetVersion {
		return fmt.Errorf("sqlite: %w: database is at version %d, binary expects %d",
			storage.ErrSchemaMismatch, current, targetVersion)
	}

	for _, m := range migrations.All {
		if m.Version <= current {
			continue
		}
		if err := applyOne(ctx, conn, m); err != nil {
			return fmt.Errorf("sqlite: migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func currentVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v sql.NullInt64
	err := conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func applyOne(ctx context.Context, conn *sql.DB, m migrations.Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`,
		m.Version,
	); err != nil {
		return err
	}
	return tx.Commit()
}
