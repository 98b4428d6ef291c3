package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// UpsertContentItem returns the existing id for (text_hash, session_id) if
// one is already present, otherwise inserts a new row and returns its id.
// Ingestion timestamp is always set server-side to "now".
func (d *DB) UpsertContentItem(ctx context.Context, tx storage.Tx, item types.ContentItem) (string, error) {
	t, err := txOf(tx)
	if err != nil {
		return "", err
	}

	var existing string
	err = t.QueryRowContext(ctx,
		`SELECT id FROM content_items WHERE text_hash = ? AND session_id = ?`,
		item.TextHash, item.SessionID,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", storage.WrapDBError("upsert_content_item", err)
	}

	id := uuid.NewString()
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", err
	}

	var sourceModTime *string
	if item.SourceModTime != nil {
		s := item.SourceModTime.UTC().Format(time.RFC3339)
		sourceModTime = &s
	}

	_, err = t.ExecContext(ctx, `
		INSERT INTO content_items
			(id, source, session_id, transcript_path, project_path, occurred_at,
			 ingested_at, text_hash, byte_len, raw_text, metadata, git_branch,
			 working_dir, tool_caller_version, thinking_level, source_mod_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, item.Source, item.SessionID, item.TranscriptPath, item.ProjectPath,
		item.OccurredAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		item.TextHash, item.ByteLen, item.RawText, string(meta),
		item.GitBranch, item.WorkingDir, item.ToolCallerVersion, item.ThinkingLevel,
		sourceModTime,
	)
	if err != nil {
		return "", storage.WrapDBError("upsert_content_item", err)
	}
	return id, nil
}

// GetDeltaCursor returns the last consumed byte offset for (session, path),
// or nil if no cursor has ever been recorded for that pair.
func (d *DB) GetDeltaCursor(ctx context.Context, session, path string) (*types.DeltaCursor, error) {
	var c types.DeltaCursor
	var updatedAt string
	err := d.conn.QueryRowContext(ctx, `
		SELECT session_id, transcript_path, offset_bytes, updated_at
		FROM delta_cursors WHERE session_id = ? AND transcript_path = ?`,
		session, path,
	).Scan(&c.SessionID, &c.TranscriptPath, &c.Offset, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapDBError("get_delta_cursor", err)
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// UpdateDeltaCursor atomically upserts the cursor for (session, path),
// refusing the write in the same statement when offset does not advance
// the recorded one: the `DO UPDATE ... WHERE` guard makes a non-monotonic
// offset a no-op row rather than letting it silently move the cursor
// backward. A no-op (zero rows affected) is reported as storage.ErrConflict
// so the caller knows its offset was stale.
func (d *DB) UpdateDeltaCursor(ctx context.Context, tx storage.Tx, session, path string, offset int64) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx, `
		INSERT INTO delta_cursors (session_id, transcript_path, offset_bytes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, transcript_path)
		DO UPDATE SET offset_bytes = excluded.offset_bytes, updated_at = excluded.updated_at
		WHERE excluded.offset_bytes > delta_cursors.offset_bytes`,
		session, path, offset, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return storage.WrapDBError("update_delta_cursor", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.WrapDBError("update_delta_cursor", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: update_delta_cursor: %w: offset %d is not ahead of the recorded cursor", storage.ErrConflict, offset)
	}
	return nil
}

// PruneContentOlderThan deletes content items ingested before the given
// horizon that have no remaining provenance receipts, as the Sweeper's
// content-pruning phase requires.
func (d *DB) PruneContentOlderThan(ctx context.Context, tx storage.Tx, horizonUnixSeconds int64) (int, error) {
	t, err := txOf(tx)
	if err != nil {
		return 0, err
	}
	horizon := time.Unix(horizonUnixSeconds, 0).UTC().Format(time.RFC3339)
	res, err := t.ExecContext(ctx, `
		DELETE FROM content_items
		WHERE ingested_at < ?
		  AND id NOT IN (SELECT DISTINCT content_item_id FROM provenance_receipts WHERE content_item_id IS NOT NULL)`,
		horizon,
	)
	if err != nil {
		return 0, storage.WrapDBError("prune_content", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.WrapDBError("prune_content", err)
	}
	return int(n), nil
}
