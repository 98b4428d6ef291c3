package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// InsertProvenance appends one receipt. The ledger never updates or
// deletes receipts from client code; only the Sweeper's orphan reap does.
func (d *DB) InsertProvenance(ctx context.Context, tx storage.Tx, r types.ProvenanceReceipt) (string, error) {
	t, err := txOf(tx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = t.ExecContext(ctx, `
		INSERT INTO provenance_receipts (id, fact_id, content_item_id, quote, attribution_id, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, r.FactID, r.ContentItemID, r.Quote, r.AttributionID, string(r.Strength),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", storage.WrapDBError("insert_provenance", err)
	}
	return id, nil
}

const provenanceColumns = `id, fact_id, content_item_id, quote, attribution_id, strength, created_at`

func scanProvenanceRows(rows *sql.Rows) ([]types.ProvenanceReceipt, error) {
	var out []types.ProvenanceReceipt
	for rows.Next() {
		var r types.ProvenanceReceipt
		var contentItemID, attributionID sql.NullString
		var strength, createdAt string
		if err := rows.Scan(&r.ID, &r.FactID, &contentItemID, &r.Quote, &attributionID, &strength, &createdAt); err != nil {
			return nil, storage.WrapDBError("scan_provenance", err)
		}
		if contentItemID.Valid {
			v := contentItemID.String
			r.ContentItemID = &v
		}
		if attributionID.Valid {
			v := attributionID.String
			r.AttributionID = &v
		}
		r.Strength = types.Strength(strength)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("scan_provenance", err)
	}
	return out, nil
}

// ProvenanceForFact returns every receipt for one fact.
func (d *DB) ProvenanceForFact(ctx context.Context, factID string) ([]types.ProvenanceReceipt, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+provenanceColumns+` FROM provenance_receipts WHERE fact_id = ?`, factID)
	if err != nil {
		return nil, storage.WrapDBError("provenance_for_fact", err)
	}
	defer rows.Close()
	return scanProvenanceRows(rows)
}

// ProvenanceForContent returns every receipt attached to one content item.
func (d *DB) ProvenanceForContent(ctx context.Context, contentItemID string) ([]types.ProvenanceReceipt, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+provenanceColumns+` FROM provenance_receipts WHERE content_item_id = ?`, contentItemID)
	if err != nil {
		return nil, storage.WrapDBError("provenance_for_content", err)
	}
	defer rows.Close()
	return scanProvenanceRows(rows)
}

// ProvenanceForFacts is the recall engine's mandatory batched provenance
// fetch for query/recall_details: one query for every involved fact id,
// never a loop.
func (d *DB) ProvenanceForFacts(ctx context.Context, factIDs []string) (map[string][]types.ProvenanceReceipt, error) {
	out := make(map[string][]types.ProvenanceReceipt, len(factIDs))
	if len(factIDs) == 0 {
		return out, nil
	}
	placeholders, args := inClause(factIDs)
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+provenanceColumns+` FROM provenance_receipts WHERE fact_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storage.WrapDBError("provenance_for_facts", err)
	}
	defer rows.Close()
	receipts, err := scanProvenanceRows(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range receipts {
		out[r.FactID] = append(out[r.FactID], r)
	}
	return out, nil
}

// ProvenanceForContentBatch is query_index's step (b): one batched query
// across every matching content item id from the lexical search.
func (d *DB) ProvenanceForContentBatch(ctx context.Context, contentItemIDs []string) (map[string][]types.ProvenanceReceipt, error) {
	out := make(map[string][]types.ProvenanceReceipt, len(contentItemIDs))
	if len(contentItemIDs) == 0 {
		return out, nil
	}
	placeholders, args := inClause(contentItemIDs)
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+provenanceColumns+` FROM provenance_receipts WHERE content_item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storage.WrapDBError("provenance_for_content_batch", err)
	}
	defer rows.Close()
	receipts, err := scanProvenanceRows(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range receipts {
		if r.ContentItemID == nil {
			continue
		}
		out[*r.ContentItemID] = append(out[*r.ContentItemID], r)
	}
	return out, nil
}

// DeleteOrphanedProvenance removes receipts whose fact_id no longer
// resolves to an existing, non-retracted fact, the Sweeper's phase 3.
func (d *DB) DeleteOrphanedProvenance(ctx context.Context, tx storage.Tx) (int, error) {
	t, err := txOf(tx)
	if err != nil {
		return 0, err
	}
	res, err := t.ExecContext(ctx, `
		DELETE FROM provenance_receipts
		WHERE fact_id NOT IN (SELECT id FROM facts WHERE status != ?)`,
		string(types.FactRetracted),
	)
	if err != nil {
		return 0, storage.WrapDBError("delete_orphaned_provenance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.WrapDBError("delete_orphaned_provenance", err)
	}
	return int(n), nil
}
