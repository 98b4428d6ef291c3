package sqlite

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug computes the canonical "{type}:{name}" slug used for the entity
// registry's uniqueness constraint: lowercased, non-alphanumeric runs
// collapsed to a single underscore, leading/trailing underscores trimmed.
func Slug(typ types.EntityType, name string) string {
	lowered := strings.ToLower(name)
	collapsed := slugNonAlnum.ReplaceAllString(lowered, "_")
	trimmed := strings.Trim(collapsed, "_")
	return string(typ) + ":" + trimmed
}

// FindOrCreateEntity returns the id of the entity (type, name), inserting
// it if absent, and reports whether this call is the one that created it.
// Race-safety: two concurrent callers racing to insert the same slug
// converge on the same id because the slug column is UNIQUE; the loser's
// insert fails with a constraint violation and is retried once as a plain
// lookup (reported as created=false), per the error taxonomy's "retry once
// on entity upsert" rule.
func (d *DB) FindOrCreateEntity(ctx context.Context, tx storage.Tx, typ types.EntityType, name string) (string, bool, error) {
	t, err := txOf(tx)
	if err != nil {
		return "", false, err
	}
	slug := Slug(typ, name)

	id, err := lookupEntityBySlug(ctx, t, slug)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, storage.WrapDBError("find_or_create_entity", err)
	}

	newID := uuid.NewString()
	_, insertErr := t.ExecContext(ctx, `
		INSERT INTO entities (id, type, canonical_name, slug, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		newID, string(typ), name, slug, time.Now().UTC().Format(time.RFC3339),
	)
	if insertErr == nil {
		return newID, true, nil
	}

	// Lost the race to a concurrent insert of the same slug: retry the
	// lookup once rather than surfacing the constraint violation.
	id, err = lookupEntityBySlug(ctx, t, slug)
	if err == nil {
		return id, false, nil
	}
	return "", false, storage.WrapDBError("find_or_create_entity", insertErr)
}

func lookupEntityBySlug(ctx context.Context, q querier, slug string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM entities WHERE slug = ?`, slug).Scan(&id)
	return id, err
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting lookup helpers
// run either inside an ongoing write transaction or against the plain
// connection for read-only accessors.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetEntity fetches one entity by id.
func (d *DB) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	return scanEntity(d.conn.QueryRowContext(ctx, `
		SELECT id, type, canonical_name, slug, created_at FROM entities WHERE id = ?`, id))
}

// GetEntityBySlug fetches one entity by its computed slug.
func (d *DB) GetEntityBySlug(ctx context.Context, slug string) (*types.Entity, error) {
	return scanEntity(d.conn.QueryRowContext(ctx, `
		SELECT id, type, canonical_name, slug, created_at FROM entities WHERE slug = ?`, slug))
}

func scanEntity(row *sql.Row) (*types.Entity, error) {
	var e types.Entity
	var typ, createdAt string
	if err := row.Scan(&e.ID, &typ, &e.CanonicalName, &e.Slug, &createdAt); err != nil {
		return nil, storage.WrapDBError("get_entity", err)
	}
	e.Type = types.EntityType(typ)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}
