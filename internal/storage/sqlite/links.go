package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// InsertFactLink records a directed edge. Multiple supersession edges
// targeting the same fact are allowed (two facts each superseding the same
// stale fact is a valid, if unusual, resolver outcome).
func (d *DB) InsertFactLink(ctx context.Context, tx storage.Tx, l types.FactLink) (string, error) {
	t, err := txOf(tx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = t.ExecContext(ctx, `
		INSERT INTO fact_links (id, from_id, to_id, link_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, l.FromID, l.ToID, string(l.LinkType), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", storage.WrapDBError("insert_fact_link", err)
	}
	return id, nil
}

// InsertConflict records an open conflict between two facts on the same
// single-valued slot.
func (d *DB) InsertConflict(ctx context.Context, tx storage.Tx, c types.Conflict) (string, error) {
	t, err := txOf(tx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = t.ExecContext(ctx, `
		INSERT INTO conflicts (id, fact_a_id, fact_b_id, status, detected_at, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, c.FactAID, c.FactBID, string(types.ConflictOpen), time.Now().UTC().Format(time.RFC3339), c.Notes,
	)
	if err != nil {
		return "", storage.WrapDBError("insert_conflict", err)
	}
	return id, nil
}

// ResolveConflict transitions a conflict to resolved, called when the
// resolver later establishes a supersession between the conflicting pair
// or an operator marks it resolved directly.
func (d *DB) ResolveConflict(ctx context.Context, tx storage.Tx, id string) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx, `UPDATE conflicts SET status = ? WHERE id = ?`, string(types.ConflictResolved), id)
	if err != nil {
		return storage.WrapDBError("resolve_conflict", err)
	}
	return requireOneRow(res, "resolve_conflict")
}

// SupersessionEdges returns the fact links where factID is the replacement
// (supersedes) and where factID is the replaced target (superseded_by),
// fetched with one query covering both directions.
func (d *DB) SupersessionEdges(ctx context.Context, factID string) (supersedes, supersededBy []types.FactLink, err error) {
	links, err := queryLinks(ctx, d.conn, `SELECT id, from_id, to_id, link_type, created_at FROM fact_links WHERE from_id = ?1 OR to_id = ?1`, factID)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range links {
		if l.FromID == factID {
			supersedes = append(supersedes, l)
		}
		if l.ToID == factID {
			supersededBy = append(supersededBy, l)
		}
	}
	return supersedes, supersededBy, nil
}

func queryLinks(ctx context.Context, conn *sql.DB, query, factID string) ([]types.FactLink, error) {
	rows, err := conn.QueryContext(ctx, query, factID)
	if err != nil {
		return nil, storage.WrapDBError("supersession_edges", err)
	}
	defer rows.Close()
	var out []types.FactLink
	for rows.Next() {
		var l types.FactLink
		var linkType, createdAt string
		if err := rows.Scan(&l.ID, &l.FromID, &l.ToID, &linkType, &createdAt); err != nil {
			return nil, storage.WrapDBError("supersession_edges", err)
		}
		l.LinkType = types.LinkType(linkType)
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("supersession_edges", err)
	}
	return out, nil
}

// SupersessionEdgesBatch is SupersessionEdges over many fact ids at once:
// two queries total (one per direction) regardless of how many ids are
// requested, the pattern recall_details relies on to stay loop-free.
func (d *DB) SupersessionEdgesBatch(ctx context.Context, factIDs []string) (supersedes, supersededBy map[string][]types.FactLink, err error) {
	supersedes = make(map[string][]types.FactLink, len(factIDs))
	supersededBy = make(map[string][]types.FactLink, len(factIDs))
	if len(factIDs) == 0 {
		return supersedes, supersededBy, nil
	}
	placeholders, args := inClause(factIDs)

	fromRows, err := queryLinksBatch(ctx, d.conn,
		`SELECT id, from_id, to_id, link_type, created_at FROM fact_links WHERE from_id IN (`+placeholders+`)`, args)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range fromRows {
		supersedes[l.FromID] = append(supersedes[l.FromID], l)
	}

	toRows, err := queryLinksBatch(ctx, d.conn,
		`SELECT id, from_id, to_id, link_type, created_at FROM fact_links WHERE to_id IN (`+placeholders+`)`, args)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range toRows {
		supersededBy[l.ToID] = append(supersededBy[l.ToID], l)
	}
	return supersedes, supersededBy, nil
}

func queryLinksBatch(ctx context.Context, conn *sql.DB, query string, args []any) ([]types.FactLink, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.WrapDBError("supersession_edges_batch", err)
	}
	defer rows.Close()
	var out []types.FactLink
	for rows.Next() {
		var l types.FactLink
		var linkType, createdAt string
		if err := rows.Scan(&l.ID, &l.FromID, &l.ToID, &linkType, &createdAt); err != nil {
			return nil, storage.WrapDBError("supersession_edges_batch", err)
		}
		l.LinkType = types.LinkType(linkType)
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("supersession_edges_batch", err)
	}
	return out, nil
}

// ConflictsForFacts is ConflictsForFact's batched counterpart: one query
// for every fact named as either side of a conflict, across all requested
// ids.
func (d *DB) ConflictsForFacts(ctx context.Context, factIDs []string) (map[string][]types.Conflict, error) {
	out := make(map[string][]types.Conflict, len(factIDs))
	if len(factIDs) == 0 {
		return out, nil
	}
	placeholdersA, argsA := inClause(factIDs)
	placeholdersB, argsB := inClause(factIDs)
	args := append(argsA, argsB...)

	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, fact_a_id, fact_b_id, status, detected_at, notes
		FROM conflicts WHERE fact_a_id IN (`+placeholdersA+`) OR fact_b_id IN (`+placeholdersB+`)`, args...)
	if err != nil {
		return nil, storage.WrapDBError("conflicts_for_facts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c types.Conflict
		var status, detectedAt string
		if err := rows.Scan(&c.ID, &c.FactAID, &c.FactBID, &status, &detectedAt, &c.Notes); err != nil {
			return nil, storage.WrapDBError("conflicts_for_facts", err)
		}
		c.Status = types.ConflictStatus(status)
		c.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
		out[c.FactAID] = append(out[c.FactAID], c)
		if c.FactBID != c.FactAID {
			out[c.FactBID] = append(out[c.FactBID], c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("conflicts_for_facts", err)
	}
	return out, nil
}

// ConflictsForFact returns every conflict naming factID as either side,
// one batched query.
func (d *DB) ConflictsForFact(ctx context.Context, factID string) ([]types.Conflict, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, fact_a_id, fact_b_id, status, detected_at, notes
		FROM conflicts WHERE fact_a_id = ? OR fact_b_id = ?`, factID, factID)
	if err != nil {
		return nil, storage.WrapDBError("conflicts_for_fact", err)
	}
	defer rows.Close()
	var out []types.Conflict
	for rows.Next() {
		var c types.Conflict
		var status, detectedAt string
		if err := rows.Scan(&c.ID, &c.FactAID, &c.FactBID, &status, &detectedAt, &c.Notes); err != nil {
			return nil, storage.WrapDBError("conflicts_for_fact", err)
		}
		c.Status = types.ConflictStatus(status)
		c.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("conflicts_for_fact", err)
	}
	return out, nil
}
