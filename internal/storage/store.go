package storage

import (
	"context"

	"github.com/recallgraph/recall/internal/types"
)

// Tx is an ongoing transaction handle. Components pass the same Tx down
// through nested calls rather than opening nested transactions, per the
// no-implicit-nesting rule: every public write method owns its own
// transaction and accepts an existing one when called as a sub-step.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the full persistence-layer surface for one scope's database
// file (global or project). A Store owns exactly one underlying
// connection pool; StoreManager is the only component allowed to hold one.
type Store interface {
	// Begin opens a new write transaction. ctx governs how long Begin may
	// block waiting for the busy-timeout before returning ErrBusy.
	Begin(ctx context.Context) (Tx, error)

	Content
	Entities
	Facts
	Provenance
	Links
	Lexical
	Vector
	Operations

	// Checkpoint runs a truncating WAL checkpoint, invoked by the Sweeper.
	Checkpoint(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

// Content is the Content Log's persistence surface.
type Content interface {
	UpsertContentItem(ctx context.Context, tx Tx, item types.ContentItem) (string, error)
	GetDeltaCursor(ctx context.Context, session, path string) (*types.DeltaCursor, error)
	UpdateDeltaCursor(ctx context.Context, tx Tx, session, path string, offset int64) error
	PruneContentOlderThan(ctx context.Context, tx Tx, horizonUnixSeconds int64) (int, error)
}

// Entities is the Entity Registry's persistence surface.
type Entities interface {
	// FindOrCreateEntity returns the id of the entity (typ, name), the
	// caller-visible insert flag distinguishing "created just now" from
	// "already existed", and inserting the row if absent.
	FindOrCreateEntity(ctx context.Context, tx Tx, typ types.EntityType, name string) (id string, created bool, err error)
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	GetEntityBySlug(ctx context.Context, slug string) (*types.Entity, error)
}

// Facts is the Fact Store's persistence surface.
type Facts interface {
	InsertFact(ctx context.Context, tx Tx, f types.Fact) (string, error)
	UpdateFactStatus(ctx context.Context, tx Tx, id string, status types.FactStatus, validTo *int64) error
	UpdateFactConfidence(ctx context.Context, tx Tx, id string, confidence float64) error
	UpdateFactEmbedding(ctx context.Context, tx Tx, id string, embedding []float32) error
	GetFact(ctx context.Context, id string) (*types.Fact, error)
	// ActiveFactsForSlot fetches every active fact on (subjectID,
	// predicate). tx must be the caller's in-flight write transaction
	// when the result needs to reflect this same transaction's prior
	// writes (the resolver's within-extraction slot re-checks); pass nil
	// for a plain committed-state read (e.g. from the recall engine).
	ActiveFactsForSlot(ctx context.Context, tx Tx, subjectID, predicate string) ([]types.Fact, error)
	FactsWithEmbeddings(ctx context.Context) ([]types.Fact, error)
	FactsByIDs(ctx context.Context, ids []string) (map[string]types.Fact, error)
	// FactsByIDsProjected is the entity-joined counterpart to FactsByIDs:
	// one query resolves every fact plus its subject's canonical name and
	// its object's display text (entity name or literal), so progressive
	// disclosure layers like query_index can render a hit without an
	// extra per-hit entity lookup.
	FactsByIDsProjected(ctx context.Context, ids []string) (map[string]FactProjection, error)
	ExpireProposedOlderThan(ctx context.Context, tx Tx, horizonUnixSeconds int64) (int, error)
	ExpireDisputedOlderThan(ctx context.Context, tx Tx, horizonUnixSeconds int64) (int, error)
}

// FactProjection bundles a fact with read-time-joined display fields so
// batched callers never need a second, per-row entity lookup.
type FactProjection struct {
	Fact          types.Fact
	SubjectName   string
	ObjectDisplay string
}

// Provenance is the Provenance Ledger's persistence surface.
type Provenance interface {
	InsertProvenance(ctx context.Context, tx Tx, r types.ProvenanceReceipt) (string, error)
	ProvenanceForFact(ctx context.Context, factID string) ([]types.ProvenanceReceipt, error)
	ProvenanceForContent(ctx context.Context, contentItemID string) ([]types.ProvenanceReceipt, error)
	ProvenanceForFacts(ctx context.Context, factIDs []string) (map[string][]types.ProvenanceReceipt, error)
	ProvenanceForContentBatch(ctx context.Context, contentItemIDs []string) (map[string][]types.ProvenanceReceipt, error)
	DeleteOrphanedProvenance(ctx context.Context, tx Tx) (int, error)
}

// Links is the Link & Conflict Store's persistence surface.
type Links interface {
	InsertFactLink(ctx context.Context, tx Tx, l types.FactLink) (string, error)
	InsertConflict(ctx context.Context, tx Tx, c types.Conflict) (string, error)
	ResolveConflict(ctx context.Context, tx Tx, id string) error
	SupersessionEdges(ctx context.Context, factID string) (supersedes, supersededBy []types.FactLink, err error)
	ConflictsForFact(ctx context.Context, factID string) ([]types.Conflict, error)
	// SupersessionEdgesBatch is the batched counterpart to SupersessionEdges,
	// used by recall_details so a multi-id request never loops one query
	// per id.
	SupersessionEdgesBatch(ctx context.Context, factIDs []string) (supersedes, supersededBy map[string][]types.FactLink, err error)
	// ConflictsForFacts is the batched counterpart to ConflictsForFact.
	ConflictsForFacts(ctx context.Context, factIDs []string) (map[string][]types.Conflict, error)
}

// Lexical is the Lexical Index's search surface.
type Lexical interface {
	IndexContentItem(ctx context.Context, item types.ContentItem) error
	IndexFact(ctx context.Context, f types.Fact, subjectName string, receipts []types.ProvenanceReceipt) error
	SearchContent(ctx context.Context, queryText string, limit int) ([]ScoredID, error)
	SearchFacts(ctx context.Context, queryText string, limit int) ([]ScoredID, error)
}

// ScoredID is one hit from a lexical or vector search: an opaque id with
// its engine-native score.
type ScoredID struct {
	ID    string
	Score float64
}

// Vector is the Vector Index's k-NN surface.
type Vector interface {
	UpsertVector(ctx context.Context, factID string, embedding []float32) error
	SearchVector(ctx context.Context, embedding []float32, k int) ([]ScoredID, error)
	// Mode reports which storage mode this backend resolved to at open
	// time: "native" or "fallback".
	Mode() string
}

// Operations is the Operation Progress checkpoint surface used by batch
// jobs such as embedding backfill.
type Operations interface {
	CreateOperation(ctx context.Context, op types.OperationProgress) (string, error)
	UpdateOperationCheckpoint(ctx context.Context, id string, processed int, checkpoint []byte) error
	FinishOperation(ctx context.Context, id string, state types.OperationState) error
	GetOperation(ctx context.Context, id string) (*types.OperationProgress, error)
}
