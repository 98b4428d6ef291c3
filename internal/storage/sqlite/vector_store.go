package sqlite

import (
	"context"

	"github.com/recallgraph/recall/internal/storage"
)

// UpsertVector mirrors a fact's embedding into the resolved vector
// backend. In native mode this writes to the vec0 virtual table; in
// fallback mode it is a no-op since the fallback scan reads
// facts.embedding directly.
func (d *DB) UpsertVector(ctx context.Context, factID string, embedding []float32) error {
	return d.vector.upsert(ctx, factID, embedding)
}

// SearchVector performs step (a) of the mandatory two-step k-NN pattern,
// returning up to k*3 nearest fact ids with similarity scores. Callers
// must fetch the referenced fact rows in a separate batched query.
func (d *DB) SearchVector(ctx context.Context, embedding []float32, k int) ([]storage.ScoredID, error) {
	return d.vector.search(ctx, embedding, k)
}

// Mode reports which vector storage mode this store resolved to: "native"
// or "fallback".
func (d *DB) Mode() string { return d.vectorMode }
