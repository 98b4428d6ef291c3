// Package migrations holds the numbered, idempotent schema migrations for
// the sqlite storage backend, registered in order in All. Each migration
// is applied inside its own transaction by the caller; a migration must be
// safe to re-run against a database where it already partially applied,
// checking pragma_table_info/sqlite_master before altering, matching the
// teacher's migrations/*.go convention (e.g. 023_pinned_column.go).
package migrations

import (
	"context"
	"database/sql"
)

// Migration is one numbered schema step.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// All is the ordered migration registry. The sqlite package applies every
// entry whose Version exceeds the database's current schema_migrations
// high-water mark.
var All = []Migration{
	{Version: 1, Name: "initial_schema", Up: upInitialSchema},
}
