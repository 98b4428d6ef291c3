// Package recall implements the hybrid retrieval pipeline: progressive
// disclosure (query_index -> query -> recall_details), lexical+vector
// fusion via Reciprocal Rank Fusion, a shortcut-query registry, and batched
// explanation assembly. Every batched read method issues a fixed, small
// number of queries per involved store regardless of result size.
package recall

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/recallgraph/recall/internal/embedding"
	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storemgr"
	"github.com/recallgraph/recall/internal/types"
)

var tracer = otel.Tracer("github.com/recallgraph/recall/internal/recall")

// Config tunes the hybrid pipeline.
type Config struct {
	RRFK         int
	DefaultLimit int
}

// Engine is the Recall Engine: it reads across the Lexical Index, Vector
// Index, Fact Store, and Provenance Ledger through the Store Manager. It
// holds no storage handle of its own.
type Engine struct {
	mgr    *storemgr.Manager
	gen    embedding.Generator
	cfg    Config
	shortcuts Registry
}

// New constructs a recall Engine bound to a store manager and embedding
// generator.
func New(mgr *storemgr.Manager, gen embedding.Generator, cfg Config) *Engine {
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	return &Engine{mgr: mgr, gen: gen, cfg: cfg, shortcuts: DefaultRegistry()}
}

// IndexHit is one row of the query_index progressive-disclosure layer.
type IndexHit struct {
	ID            string           `json:"id"`
	Subject       string           `json:"subject"`
	Predicate     string           `json:"predicate"`
	ObjectPreview string           `json:"object_preview"`
	Status        types.FactStatus `json:"status"`
	Scope         types.Scope      `json:"scope"`
	Confidence    float64          `json:"confidence"`
	TokenEstimate int              `json:"token_estimate"`
	Source        string           `json:"source"`
}

// FullHit is one row of the legacy query shape: full fact, full receipts,
// and an optional similarity score.
type FullHit struct {
	Fact       types.Fact                `json:"fact"`
	Receipts   []types.ProvenanceReceipt `json:"receipts"`
	Source     string                    `json:"source"`
	Similarity *float64                  `json:"similarity,omitempty"`
}

// Relationships bundles a fact's supersession and conflict neighborhood.
type Relationships struct {
	Supersedes   []types.FactLink `json:"supersedes"`
	SupersededBy []types.FactLink `json:"superseded_by"`
	Conflicts    []types.Conflict `json:"conflicts"`
}

// DetailHit is one row of recall_details.
type DetailHit struct {
	Fact          types.Fact                `json:"fact"`
	Receipts      []types.ProvenanceReceipt `json:"receipts"`
	Relationships Relationships             `json:"relationships"`
}

// ExplainResult is explain's response shape. A not-found fact yields the
// null-object form: Status="not_found", empty collections, never an error.
type ExplainResult struct {
	Status       string                     `json:"status"`
	Fact         *types.Fact                `json:"fact,omitempty"`
	Receipts     []types.ProvenanceReceipt  `json:"receipts"`
	Supersedes   []types.FactLink           `json:"supersedes"`
	SupersededBy []types.FactLink           `json:"superseded_by"`
	Conflicts    []types.Conflict           `json:"conflicts"`
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// subjectName resolves a fact's subject entity name via its owning store.
// Batched callers pre-fetch all needed entities in one pass; this helper
// serves only factSignature's single-fact lookup, never a per-hit loop
// during recall.
func subjectName(ctx context.Context, s storage.Store, subjectID string) (string, error) {
	e, err := s.GetEntity(ctx, subjectID)
	if err != nil {
		return "", err
	}
	return e.CanonicalName, nil
}

// objectPreview renders a fact's object as display text truncated to at
// most 50 characters, per query_index's contract.
func objectPreview(ctx context.Context, s storage.Store, f types.Fact) string {
	var text string
	if f.Object.IsEntity() {
		if e, err := s.GetEntity(ctx, *f.Object.EntityID); err == nil {
			text = e.CanonicalName
		}
	} else if f.Object.Literal != nil {
		text = *f.Object.Literal
	}
	return truncateRunes(text, 50)
}

func factSignature(ctx context.Context, s storage.Store, f types.Fact) (string, error) {
	name, err := subjectName(ctx, s, f.SubjectID)
	if err != nil {
		return "", err
	}
	obj := ""
	if f.Object.IsEntity() {
		e, err := s.GetEntity(ctx, *f.Object.EntityID)
		if err != nil {
			return "", err
		}
		obj = e.CanonicalName
	} else if f.Object.Literal != nil {
		obj = *f.Object.Literal
	}
	return strings.ToLower(name) + "\x00" + f.Predicate + "\x00" + strings.ToLower(strings.TrimSpace(obj)), nil
}
