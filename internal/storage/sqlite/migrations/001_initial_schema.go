package migrations

import (
	"context"
	"database/sql"
)

// upInitialSchema creates every table the persistence layer owns. Every
// statement is IF NOT EXISTS so a retry after a partial failure (process
// killed mid-migration, before the schema_migrations row committed) is a
// no-op rather than an error.
func upInitialSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS content_items (
			id                  TEXT PRIMARY KEY,
			source              TEXT NOT NULL,
			session_id          TEXT NOT NULL,
			transcript_path     TEXT NOT NULL,
			project_path        TEXT NOT NULL DEFAULT '',
			occurred_at         TEXT NOT NULL,
			ingested_at         TEXT NOT NULL,
			text_hash           TEXT NOT NULL,
			byte_len            INTEGER NOT NULL,
			raw_text            TEXT NOT NULL,
			metadata            TEXT NOT NULL DEFAULT '{}',
			git_branch          TEXT NOT NULL DEFAULT '',
			working_dir         TEXT NOT NULL DEFAULT '',
			tool_caller_version TEXT NOT NULL DEFAULT '',
			thinking_level      TEXT NOT NULL DEFAULT '',
			source_mod_time     TEXT,
			UNIQUE (text_hash, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_items_ingested_at ON content_items(ingested_at)`,

		`CREATE TABLE IF NOT EXISTS delta_cursors (
			session_id      TEXT NOT NULL,
			transcript_path TEXT NOT NULL,
			offset_bytes    INTEGER NOT NULL,
			updated_at      TEXT NOT NULL,
			PRIMARY KEY (session_id, transcript_path)
		)`,

		`CREATE TABLE IF NOT EXISTS entities (
			id             TEXT PRIMARY KEY,
			type           TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			slug           TEXT NOT NULL UNIQUE,
			created_at     TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS entity_aliases (
			id         TEXT PRIMARY KEY,
			entity_id  TEXT NOT NULL REFERENCES entities(id),
			alias      TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			confidence REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_aliases_entity_id ON entity_aliases(entity_id)`,

		`CREATE TABLE IF NOT EXISTS facts (
			id                TEXT PRIMARY KEY,
			subject_id        TEXT NOT NULL REFERENCES entities(id),
			predicate         TEXT NOT NULL,
			object_entity_id  TEXT REFERENCES entities(id),
			object_literal    TEXT,
			object_datatype   TEXT NOT NULL DEFAULT 'string',
			polarity          TEXT NOT NULL,
			valid_from        TEXT NOT NULL,
			valid_to          TEXT,
			status            TEXT NOT NULL,
			confidence        REAL NOT NULL,
			source            TEXT NOT NULL DEFAULT '',
			created_at        TEXT NOT NULL,
			scope             TEXT NOT NULL,
			project_path      TEXT NOT NULL DEFAULT '',
			embedding         BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_slot ON facts(subject_id, predicate, status)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_status ON facts(status)`,

		`CREATE TABLE IF NOT EXISTS provenance_receipts (
			id               TEXT PRIMARY KEY,
			fact_id          TEXT NOT NULL REFERENCES facts(id),
			content_item_id  TEXT REFERENCES content_items(id),
			quote            TEXT NOT NULL,
			attribution_id   TEXT REFERENCES entities(id),
			strength         TEXT NOT NULL,
			created_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_fact_id ON provenance_receipts(fact_id)`,
		`CREATE INDEX IF NOT EXISTS idx_provenance_content_item_id ON provenance_receipts(content_item_id)`,

		`CREATE TABLE IF NOT EXISTS fact_links (
			id         TEXT PRIMARY KEY,
			from_id    TEXT NOT NULL REFERENCES facts(id),
			to_id      TEXT NOT NULL REFERENCES facts(id),
			link_type  TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_links_from ON fact_links(from_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fact_links_to ON fact_links(to_id)`,

		`CREATE TABLE IF NOT EXISTS conflicts (
			id          TEXT PRIMARY KEY,
			fact_a_id   TEXT NOT NULL REFERENCES facts(id),
			fact_b_id   TEXT NOT NULL REFERENCES facts(id),
			status      TEXT NOT NULL,
			detected_at TEXT NOT NULL,
			notes       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_status ON conflicts(status)`,

		`CREATE TABLE IF NOT EXISTS operations (
			id             TEXT PRIMARY KEY,
			operation_type TEXT NOT NULL,
			scope          TEXT NOT NULL,
			total          INTEGER NOT NULL,
			processed      INTEGER NOT NULL,
			checkpoint     BLOB,
			state          TEXT NOT NULL,
			started_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ingestion_metrics (
			id              TEXT PRIMARY KEY,
			input_tokens    INTEGER NOT NULL,
			output_tokens   INTEGER NOT NULL,
			facts_extracted INTEGER NOT NULL,
			created_at      TEXT NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
