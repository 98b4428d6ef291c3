package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite/migrations"
)

func openRawConn(t *testing.T, path string) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRunMigrations_AppliesAllPendingAndRecordsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	conn := openRawConn(t, path)
	ctx := context.Background()

	require.NoError(t, runMigrations(ctx, conn))

	v, err := currentVersion(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, migrations.All[len(migrations.All)-1].Version, v)
}

func TestRunMigrations_SecondCallIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	conn := openRawConn(t, path)
	ctx := context.Background()

	require.NoError(t, runMigrations(ctx, conn))
	v1, err := currentVersion(ctx, conn)
	require.NoError(t, err)

	require.NoError(t, runMigrations(ctx, conn), "re-running against an up-to-date schema must be a no-op")
	v2, err := currentVersion(ctx, conn)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestRunMigrations_NewerSchemaThanBinaryIsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	conn := openRawConn(t, path)
	ctx := context.Background()

	require.NoError(t, runMigrations(ctx, conn))

	_, err := conn.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`,
		targetVersion+1,
	)
	require.NoError(t, err)

	err = runMigrations(ctx, conn)
	assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
}

func TestCurrentVersion_EmptyTableReturnsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	conn := openRawConn(t, path)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	v, err := currentVersion(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
