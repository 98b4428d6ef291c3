package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces" // registers the vec0 virtual table module

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/storage"
)

// vectorBackend is the internal strategy interface behind storage.Vector;
// the DB type delegates to whichever mode (native -vec0 or fallback scan)
// was resolved at Open time.
type vectorBackend interface {
	upsert(ctx context.Context, factID string, embedding []float32) error
	search(ctx context.Context, embedding []float32, k int) ([]storage.ScoredID, error)
	mode() string
}

// openVectorBackend probes for the vec0 virtual table module by attempting
// to create fact_vectors; a failure (module not registered, or the build
// was compiled without the cgo-free extension loader) falls back to the
// in-process cosine scan. Config.VectorMode can force either mode
// explicitly, primarily so tests can exercise both paths deterministically.
func openVectorBackend(ctx context.Context, conn *sql.DB, opts Options) (string, vectorBackend, error) {
	switch opts.VectorMode {
	case config.VectorModeFallback:
		return "fallback", &fallbackVector{conn: conn, dim: opts.VectorDim}, nil
	case config.VectorModeNative:
		nv, err := newNativeVector(ctx, conn, opts.VectorDim)
		if err != nil {
			return "", nil, fmt.Errorf("sqlite: vector_mode=native but vec0 unavailable: %w", err)
		}
		return "native", nv, nil
	default:
		if nv, err := newNativeVector(ctx, conn, opts.VectorDim); err == nil {
			return "native", nv, nil
		}
		return "fallback", &fallbackVector{conn: conn, dim: opts.VectorDim}, nil
	}
}

// --- native vec0 backend ---

type nativeVector struct {
	conn *sql.DB
	dim  int
}

func newNativeVector(ctx context.Context, conn *sql.DB, dim int) (*nativeVector, error) {
	_, err := conn.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS fact_vectors USING vec0(fact_id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dim,
	))
	if err != nil {
		return nil, err
	}
	return &nativeVector{conn: conn, dim: dim}, nil
}

func (n *nativeVector) mode() string { return "native" }

func (n *nativeVector) upsert(ctx context.Context, factID string, embedding []float32) error {
	if len(embedding) != n.dim {
		return storage.ErrDimensionMismatch
	}
	_, err := n.conn.ExecContext(ctx,
		`INSERT INTO fact_vectors (fact_id, embedding) VALUES (?, ?)
		 ON CONFLICT (fact_id) DO UPDATE SET embedding = excluded.embedding`,
		factID, encodeEmbedding(embedding),
	)
	if err != nil {
		return storage.WrapDBError("upsert_vector", err)
	}
	return nil
}

// search performs step (a) of the mandatory two-step k-NN pattern: fetch
// k*3 nearest {fact_id, distance} pairs from the vector index alone. The
// caller (recall engine, via Store.FactsByIDsProjected) performs step (b) as a
// separate batched fact fetch; the two must never be joined in one query,
// a combination documented to hang under this vec0 binding.
func (n *nativeVector) search(ctx context.Context, embedding []float32, k int) ([]storage.ScoredID, error) {
	if len(embedding) != n.dim {
		return nil, storage.ErrDimensionMismatch
	}
	rows, err := n.conn.QueryContext(ctx, `
		SELECT fact_id, distance FROM fact_vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`,
		encodeEmbedding(embedding), k*3,
	)
	if err != nil {
		return nil, storage.WrapDBError("search_vector", err)
	}
	defer rows.Close()

	var out []storage.ScoredID
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, storage.WrapDBError("search_vector", err)
		}
		// cosine distance -> similarity score so callers compare like
		// the fallback backend's output.
		out = append(out, storage.ScoredID{ID: id, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("search_vector", err)
	}
	return out, nil
}

// --- fallback in-process cosine scan ---

type fallbackVector struct {
	conn *sql.DB
	dim  int
}

func (f *fallbackVector) mode() string { return "fallback" }

// upsert is a no-op: embeddings live in facts.embedding already, written by
// Fact Store.UpdateFactEmbedding/InsertFact. The fallback backend reads
// that column directly at search time rather than mirroring it elsewhere.
func (f *fallbackVector) upsert(ctx context.Context, factID string, embedding []float32) error {
	if len(embedding) != f.dim {
		return storage.ErrDimensionMismatch
	}
	return nil
}

func (f *fallbackVector) search(ctx context.Context, embedding []float32, k int) ([]storage.ScoredID, error) {
	if len(embedding) != f.dim {
		return nil, storage.ErrDimensionMismatch
	}
	rows, err := f.conn.QueryContext(ctx, `SELECT id, embedding FROM facts WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, storage.WrapDBError("search_vector_fallback", err)
	}
	defer rows.Close()

	var out []storage.ScoredID
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, storage.WrapDBError("search_vector_fallback", err)
		}
		vec := decodeEmbedding(blob)
		if len(vec) != f.dim {
			continue
		}
		out = append(out, storage.ScoredID{ID: id, Score: cosineSimilarity(embedding, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("search_vector_fallback", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k*3 {
		out = out[:k*3]
	}
	return out, nil
}

// cosineSimilarity is a hand-rolled dot-product/magnitude computation, the
// same shape as the pack's dedicated vector-store repo uses for the same
// formula — there is no third-party numerics library in this ecosystem
// better suited to one cosine calculation than the standard math package.
func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
