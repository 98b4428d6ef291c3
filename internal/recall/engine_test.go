package recall_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/embedding"
	"github.com/recallgraph/recall/internal/recall"
	"github.com/recallgraph/recall/internal/resolver"
	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/storemgr"
	"github.com/recallgraph/recall/internal/types"
)

type fixedPaths struct{ project string }

func (p fixedPaths) GlobalDBPath() string  { return "" }
func (p fixedPaths) ProjectDBPath() string { return p.project }

// seedEngine opens a single project store, seeds a content item to stand in
// for what the transcript distiller would have ingested, applies a resolver
// extraction tied to that item (which also drives the post-commit lexical
// reindex), and returns a recall Engine bound to it via a store manager.
func seedEngine(t *testing.T, ex types.Extraction) (*recall.Engine, storage.Store) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	opener := storemgr.DefaultOpener(sqlite.Options{VectorMode: config.VectorModeFallback, VectorDim: 8})
	mgr := storemgr.New(fixedPaths{project: filepath.Join(dir, "project.db")}, opener)
	t.Cleanup(func() { mgr.Close() })

	store, err := mgr.EnsureProject(ctx)
	require.NoError(t, err)

	ex.ContentItemID = seedContentItem(t, store)

	policy, err := config.LoadPredicatePolicy("")
	require.NoError(t, err)
	_, err = resolver.New(store, policy, 0.05).Apply(ctx, ex)
	require.NoError(t, err)

	gen := embedding.NewLocal(8)
	e := recall.New(mgr, gen, recall.Config{RRFK: 60, DefaultLimit: 10})
	return e, store
}

// seedContentItem plays the role of the transcript distiller: it upserts and
// lexically indexes a raw content item so query_index has something to
// match against, then returns the item's id.
func seedContentItem(t *testing.T, store storage.Store) string {
	t.Helper()
	ctx := context.Background()

	raw := "We run on PostgreSQL for storage. Built with Rails, uses Redis for caching."
	item := types.ContentItem{
		Source:         "transcript",
		SessionID:      "test-session",
		TranscriptPath: "test-session.jsonl",
		OccurredAt:     time.Now(),
		TextHash:       fmt.Sprintf("%x", sha256.Sum256([]byte(raw))),
		ByteLen:        len(raw),
		RawText:        raw,
	}

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	id, err := store.UpsertContentItem(ctx, tx, item)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	item.ID = id
	require.NoError(t, store.IndexContentItem(ctx, item))
	return id
}

func seedExtraction() types.Extraction {
	return types.Extraction{
		Facts: []types.FactInput{
			{Subject: "repo", Predicate: "uses_database", Object: "PostgreSQL", Strength: types.StrengthStated, Quote: "we run on PostgreSQL for storage"},
			{Subject: "repo", Predicate: "depends_on", Object: "Rails", Strength: types.StrengthStated, Quote: "built with Rails"},
			{Subject: "repo", Predicate: "depends_on", Object: "Redis", Strength: types.StrengthStated, Quote: "uses Redis for caching"},
		},
	}
}

func TestQueryIndex_ReturnsCompactHitsForLexicalMatch(t *testing.T) {
	e, _ := seedEngine(t, seedExtraction())
	ctx := context.Background()

	hits, err := e.QueryIndex(ctx, "postgresql", 10, types.ScopeProject)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top := hits[0]
	require.Equal(t, "uses_database", top.Predicate)
	require.LessOrEqual(t, len(top.ObjectPreview), 50)
	require.Greater(t, top.TokenEstimate, 0)
}

func TestQuery_ReturnsFullHitsWithReceipts(t *testing.T) {
	e, _ := seedEngine(t, seedExtraction())
	ctx := context.Background()

	hits, err := e.Query(ctx, "redis", 10, types.ScopeProject)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "depends_on", hits[0].Fact.Predicate)
	require.NotEmpty(t, hits[0].Receipts)
}

func TestRecallDetails_BatchesRelationshipsAcrossIDs(t *testing.T) {
	e, store := seedEngine(t, seedExtraction())
	ctx := context.Background()

	// Supersede the PostgreSQL fact so there is a real supersession edge
	// to surface in the details response.
	confidence := 0.95
	policy, err := config.LoadPredicatePolicy("")
	require.NoError(t, err)
	_, err = resolver.New(store, policy, 0.05).Apply(ctx, types.Extraction{
		Facts: []types.FactInput{
			{Subject: "repo", Predicate: "uses_database", Object: "MySQL", Strength: types.StrengthStated, Confidence: &confidence, Quote: "migrated to MySQL"},
		},
	})
	require.NoError(t, err)

	hits, err := e.Query(ctx, "mysql", 10, types.ScopeProject)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	newFactID := hits[0].Fact.ID

	details, err := e.RecallDetails(ctx, []string{newFactID}, types.ScopeProject)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Len(t, details[0].Relationships.Supersedes, 1)
}

func TestQuery_MatchesFactWithEntityObject(t *testing.T) {
	e, _ := seedEngine(t, types.Extraction{
		Entities: []types.EntityInput{
			{Name: "Ruby on Rails", Type: types.EntityFramework},
		},
		Facts: []types.FactInput{
			{Subject: "repo", Predicate: "depends_on", Object: "Ruby on Rails", Strength: types.StrengthStated, Quote: "built with Ruby on Rails"},
		},
	})
	ctx := context.Background()

	// The object resolved to a declared entity rather than a literal;
	// IndexFact must still have appended its canonical name so the fact is
	// reachable by searching on the object, not just the quote.
	hits, err := e.Query(ctx, "rails", 10, types.ScopeProject)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "depends_on", hits[0].Fact.Predicate)
	require.True(t, hits[0].Fact.Object.IsEntity())
}

func TestExplain_UnknownIDReturnsNullObject(t *testing.T) {
	e, _ := seedEngine(t, seedExtraction())
	ctx := context.Background()

	result, err := e.Explain(ctx, "no-such-fact", types.ScopeProject)
	require.NoError(t, err)
	require.Equal(t, "not_found", result.Status)
	require.Nil(t, result.Fact)
}

func TestExplain_KnownIDReturnsProvenance(t *testing.T) {
	e, _ := seedEngine(t, seedExtraction())
	ctx := context.Background()

	hits, err := e.Query(ctx, "rails", 10, types.ScopeProject)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	result, err := e.Explain(ctx, hits[0].Fact.ID, types.ScopeProject)
	require.NoError(t, err)
	require.NotEqual(t, "not_found", result.Status)
	require.NotEmpty(t, result.Receipts)
}
