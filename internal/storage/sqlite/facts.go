package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// InsertFact inserts a new fact row and returns its generated id.
func (d *DB) InsertFact(ctx context.Context, tx storage.Tx, f types.Fact) (string, error) {
	t, err := txOf(tx)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if id2 := f.ID; id2 != "" {
		id = id2
	}

	var validTo *string
	if f.ValidTo != nil {
		s := f.ValidTo.UTC().Format(time.RFC3339)
		validTo = &s
	}

	var embedding []byte
	if len(f.Embedding) > 0 {
		embedding = encodeEmbedding(f.Embedding)
	}

	_, err = t.ExecContext(ctx, `
		INSERT INTO facts
			(id, subject_id, predicate, object_entity_id, object_literal, object_datatype,
			 polarity, valid_from, valid_to, status, confidence, source, created_at,
			 scope, project_path, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.SubjectID, f.Predicate, f.Object.EntityID, f.Object.Literal, f.Object.Datatype,
		string(f.Polarity), f.ValidFrom.UTC().Format(time.RFC3339), validTo,
		string(f.Status), f.Confidence, f.Source, time.Now().UTC().Format(time.RFC3339),
		string(f.Scope), f.ProjectPath, embedding,
	)
	if err != nil {
		return "", storage.WrapDBError("insert_fact", err)
	}
	return id, nil
}

// UpdateFactStatus transitions a fact's status and, when non-nil, closes
// its validity window. validTo is a unix-seconds timestamp because callers
// (resolver, sweeper) always compute it relative to "now" or an occurrence
// time already in that form.
func (d *DB) UpdateFactStatus(ctx context.Context, tx storage.Tx, id string, status types.FactStatus, validTo *int64) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	var vt *string
	if validTo != nil {
		s := time.Unix(*validTo, 0).UTC().Format(time.RFC3339)
		vt = &s
	}
	res, err := t.ExecContext(ctx, `UPDATE facts SET status = ?, valid_to = ? WHERE id = ?`, string(status), vt, id)
	if err != nil {
		return storage.WrapDBError("update_fact_status", err)
	}
	return requireOneRow(res, "update_fact_status")
}

// UpdateFactConfidence raises (or sets) a fact's stored confidence, used by
// the resolver's Equivalent decision when a candidate's confidence
// strictly exceeds the stored value.
func (d *DB) UpdateFactConfidence(ctx context.Context, tx storage.Tx, id string, confidence float64) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx, `UPDATE facts SET confidence = ? WHERE id = ?`, confidence, id)
	if err != nil {
		return storage.WrapDBError("update_fact_confidence", err)
	}
	return requireOneRow(res, "update_fact_confidence")
}

// UpdateFactEmbedding sets or replaces a fact's stored embedding.
func (d *DB) UpdateFactEmbedding(ctx context.Context, tx storage.Tx, id string, embedding []float32) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	res, err := t.ExecContext(ctx, `UPDATE facts SET embedding = ? WHERE id = ?`, encodeEmbedding(embedding), id)
	if err != nil {
		return storage.WrapDBError("update_fact_embedding", err)
	}
	return requireOneRow(res, "update_fact_embedding")
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storage.WrapDBError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

const factColumns = `
	id, subject_id, predicate, object_entity_id, object_literal, object_datatype,
	polarity, valid_from, valid_to, status, confidence, source, created_at,
	scope, project_path, embedding`

// qualifiedFactColumns is factColumns with an explicit "f." table prefix,
// needed once a query joins facts against another table under an alias.
const qualifiedFactColumns = `
	f.id, f.subject_id, f.predicate, f.object_entity_id, f.object_literal, f.object_datatype,
	f.polarity, f.valid_from, f.valid_to, f.status, f.confidence, f.source, f.created_at,
	f.scope, f.project_path, f.embedding`

func scanFact(row *sql.Row) (*types.Fact, error) {
	var f types.Fact
	var polarity, validFrom, status, scope string
	var validTo sql.NullString
	var objectEntityID, objectLiteral sql.NullString
	var embedding []byte

	err := row.Scan(
		&f.ID, &f.SubjectID, &f.Predicate, &objectEntityID, &objectLiteral, &f.Object.Datatype,
		&polarity, &validFrom, &validTo, &status, &f.Confidence, &f.Source, &f.CreatedAt,
		&scope, &f.ProjectPath, &embedding,
	)
	if err != nil {
		return nil, storage.WrapDBError("get_fact", err)
	}
	populateFact(&f, polarity, validFrom, validTo, status, scope, objectEntityID, objectLiteral, embedding)
	return &f, nil
}

func populateFact(f *types.Fact, polarity, validFrom string, validTo sql.NullString, status, scope string,
	objectEntityID, objectLiteral sql.NullString, embedding []byte) {
	f.Polarity = types.Polarity(polarity)
	f.ValidFrom, _ = time.Parse(time.RFC3339, validFrom)
	if validTo.Valid {
		t, _ := time.Parse(time.RFC3339, validTo.String)
		f.ValidTo = &t
	}
	f.Status = types.FactStatus(status)
	f.Scope = types.Scope(scope)
	if objectEntityID.Valid {
		id := objectEntityID.String
		f.Object.EntityID = &id
	}
	if objectLiteral.Valid {
		lit := objectLiteral.String
		f.Object.Literal = &lit
	}
	if len(embedding) > 0 {
		f.Embedding = decodeEmbedding(embedding)
	}
}

// GetFact fetches one fact by id.
func (d *DB) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	return scanFact(row)
}

// ActiveFactsForSlot returns every active fact on (subject_id, predicate),
// the resolver's slot lookup step. When tx is non-nil the query runs on
// that same transaction so it observes the transaction's own prior writes
// (needed when a single extraction carries two candidates on the same
// slot); a nil tx reads the last committed state via the plain pool
// connection.
func (d *DB) ActiveFactsForSlot(ctx context.Context, tx storage.Tx, subjectID, predicate string) ([]types.Fact, error) {
	q, err := d.txOrConn(tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE subject_id = ? AND predicate = ? AND status = ?`,
		subjectID, predicate, string(types.FactActive),
	)
	if err != nil {
		return nil, storage.WrapDBError("active_facts_for_slot", err)
	}
	defer rows.Close()
	return scanFactRows(rows)
}

// FactsWithEmbeddings returns every fact carrying a non-null embedding, the
// batch scan the fallback vector backend uses.
func (d *DB) FactsWithEmbeddings(ctx context.Context) ([]types.Fact, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT `+factColumns+` FROM facts WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, storage.WrapDBError("facts_with_embeddings", err)
	}
	defer rows.Close()
	return scanFactRows(rows)
}

// FactsByIDs is the recall engine's mandatory batched fact fetch: one
// query regardless of how many ids are requested, never a loop of
// per-id lookups.
func (d *DB) FactsByIDs(ctx context.Context, ids []string) (map[string]types.Fact, error) {
	out := make(map[string]types.Fact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+factColumns+` FROM facts WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storage.WrapDBError("facts_by_ids", err)
	}
	defer rows.Close()
	facts, err := scanFactRows(rows)
	if err != nil {
		return nil, err
	}
	for _, f := range facts {
		out[f.ID] = f
	}
	return out, nil
}

// FactsByIDsProjected joins facts against entities twice (subject, object)
// in a single query so callers get the subject's canonical name and the
// object's display text without a per-row follow-up lookup.
func (d *DB) FactsByIDsProjected(ctx context.Context, ids []string) (map[string]storage.FactProjection, error) {
	out := make(map[string]storage.FactProjection, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := d.conn.QueryContext(ctx, `
		SELECT `+qualifiedFactColumns+`,
		       se.canonical_name, oe.canonical_name
		FROM facts f
		LEFT JOIN entities se ON se.id = f.subject_id
		LEFT JOIN entities oe ON oe.id = f.object_entity_id
		WHERE f.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storage.WrapDBError("facts_by_ids_projected", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f types.Fact
		var polarity, validFrom, status, scope string
		var validTo sql.NullString
		var objectEntityID, objectLiteral sql.NullString
		var embedding []byte
		var subjectName, objectEntityName sql.NullString

		if err := rows.Scan(
			&f.ID, &f.SubjectID, &f.Predicate, &objectEntityID, &objectLiteral, &f.Object.Datatype,
			&polarity, &validFrom, &validTo, &status, &f.Confidence, &f.Source, &f.CreatedAt,
			&scope, &f.ProjectPath, &embedding,
			&subjectName, &objectEntityName,
		); err != nil {
			return nil, storage.WrapDBError("scan_fact_projected", err)
		}
		populateFact(&f, polarity, validFrom, validTo, status, scope, objectEntityID, objectLiteral, embedding)

		display := ""
		if objectEntityName.Valid {
			display = objectEntityName.String
		} else if objectLiteral.Valid {
			display = objectLiteral.String
		}
		out[f.ID] = storage.FactProjection{
			Fact:          f,
			SubjectName:   subjectName.String,
			ObjectDisplay: display,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("scan_fact_projected", err)
	}
	return out, nil
}

func scanFactRows(rows *sql.Rows) ([]types.Fact, error) {
	var out []types.Fact
	for rows.Next() {
		var f types.Fact
		var polarity, validFrom, status, scope string
		var validTo sql.NullString
		var objectEntityID, objectLiteral sql.NullString
		var embedding []byte

		if err := rows.Scan(
			&f.ID, &f.SubjectID, &f.Predicate, &objectEntityID, &objectLiteral, &f.Object.Datatype,
			&polarity, &validFrom, &validTo, &status, &f.Confidence, &f.Source, &f.CreatedAt,
			&scope, &f.ProjectPath, &embedding,
		); err != nil {
			return nil, storage.WrapDBError("scan_fact", err)
		}
		populateFact(&f, polarity, validFrom, validTo, status, scope, objectEntityID, objectLiteral, embedding)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("scan_fact", err)
	}
	return out, nil
}

// ExpireProposedOlderThan transitions every proposed fact created before
// the horizon to retracted, the Sweeper's phase 1.
func (d *DB) ExpireProposedOlderThan(ctx context.Context, tx storage.Tx, horizonUnixSeconds int64) (int, error) {
	return expireStatusOlderThan(ctx, tx, types.FactProposed, horizonUnixSeconds)
}

// ExpireDisputedOlderThan transitions every disputed fact created before
// the horizon to retracted, the Sweeper's phase 2.
func (d *DB) ExpireDisputedOlderThan(ctx context.Context, tx storage.Tx, horizonUnixSeconds int64) (int, error) {
	return expireStatusOlderThan(ctx, tx, types.FactDisputed, horizonUnixSeconds)
}

func expireStatusOlderThan(ctx context.Context, tx storage.Tx, status types.FactStatus, horizonUnixSeconds int64) (int, error) {
	t, err := txOf(tx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	horizon := time.Unix(horizonUnixSeconds, 0).UTC().Format(time.RFC3339)
	res, err := t.ExecContext(ctx, `
		UPDATE facts SET status = ?, valid_to = ?
		WHERE status = ? AND created_at < ?`,
		string(types.FactRetracted), now, string(status), horizon,
	)
	if err != nil {
		return 0, storage.WrapDBError("expire_facts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.WrapDBError("expire_facts", err)
	}
	return int(n), nil
}

// inClause builds a "?,?,?" placeholder string and matching []any args for
// a batched IN (...) query, the pattern every progressive-disclosure and
// batch-delete method in this package relies on to stay N+1-free.
func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
