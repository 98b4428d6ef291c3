package resolver_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/resolver"
	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.db")
	db, err := sqlite.Open(context.Background(), sqlite.Options{
		Path:       path,
		VectorMode: config.VectorModeFallback,
		VectorDim:  8,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestResolver(t *testing.T, store storage.Store) *resolver.Resolver {
	t.Helper()
	policy, err := config.LoadPredicatePolicy("")
	require.NoError(t, err)
	return resolver.New(store, policy, 0.05)
}

// entityID looks up an already-upserted entity's id inside its own
// transaction, since FindOrCreateEntity requires a store-opened Tx even
// for the lookup-only path.
func entityID(t *testing.T, store storage.Store, typ types.EntityType, name string) string {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	id, _, err := store.FindOrCreateEntity(ctx, tx, typ, name)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func postgresExtraction() types.Extraction {
	return types.Extraction{
		Facts: []types.FactInput{
			{
				Subject:   "repo",
				Predicate: "uses_database",
				Object:    "PostgreSQL",
				Strength:  types.StrengthStated,
				Quote:     "we use Postgres",
			},
		},
	}
}

// Scenario 1: Equivalent -> provenance append.
func TestApply_EquivalentAppendsReceipt(t *testing.T) {
	store := newTestStore(t)
	r := newTestResolver(t, store)
	ctx := context.Background()

	counters, err := r.Apply(ctx, postgresExtraction())
	require.NoError(t, err)
	require.Equal(t, 1, counters.EntitiesCreated)
	require.Equal(t, 1, counters.FactsCreated)

	repoID := entityID(t, store, types.EntityOther, "repo")
	active, err := store.ActiveFactsForSlot(ctx, nil, repoID, "uses_database")
	require.NoError(t, err)
	require.Len(t, active, 1)
	factID := active[0].ID

	receipts, err := store.ProvenanceForFact(ctx, factID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	counters, err = r.Apply(ctx, postgresExtraction())
	require.NoError(t, err)
	require.Equal(t, 0, counters.FactsCreated)

	active, err = store.ActiveFactsForSlot(ctx, nil, repoID, "uses_database")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, factID, active[0].ID)

	receipts, err = store.ProvenanceForFact(ctx, factID)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
}

// Scenario 2: single-value supersession.
func TestApply_SingleValueSupersedes(t *testing.T) {
	store := newTestStore(t)
	r := newTestResolver(t, store)
	ctx := context.Background()

	_, err := r.Apply(ctx, postgresExtraction())
	require.NoError(t, err)

	confidence := 0.95
	counters, err := r.Apply(ctx, types.Extraction{
		Facts: []types.FactInput{
			{
				Subject:    "repo",
				Predicate:  "uses_database",
				Object:     "MySQL",
				Strength:   types.StrengthStated,
				Confidence: &confidence,
				Quote:      "switched to MySQL",
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, counters.FactsCreated)
	require.Equal(t, 1, counters.FactsSuperseded)
	require.Equal(t, 0, counters.ConflictsCreated)

	repoID := entityID(t, store, types.EntityOther, "repo")
	active, err := store.ActiveFactsForSlot(ctx, nil, repoID, "uses_database")
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.False(t, active[0].Object.IsEntity())
	require.Equal(t, "MySQL", *active[0].Object.Literal)

	supersedes, _, err := store.SupersessionEdges(ctx, active[0].ID)
	require.NoError(t, err)
	require.Len(t, supersedes, 1)
}

// Scenario 3: conflict.
func TestApply_WeakerEvidenceConflicts(t *testing.T) {
	store := newTestStore(t)
	r := newTestResolver(t, store)
	ctx := context.Background()

	_, err := r.Apply(ctx, postgresExtraction())
	require.NoError(t, err)

	confidence := 0.4
	counters, err := r.Apply(ctx, types.Extraction{
		Facts: []types.FactInput{
			{
				Subject:    "repo",
				Predicate:  "uses_database",
				Object:     "MySQL",
				Strength:   types.StrengthInferred,
				Confidence: &confidence,
				Quote:      "maybe MySQL now",
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 0, counters.FactsCreated)
	require.Equal(t, 0, counters.FactsSuperseded)
	require.Equal(t, 1, counters.ConflictsCreated)

	repoID := entityID(t, store, types.EntityOther, "repo")
	active, err := store.ActiveFactsForSlot(ctx, nil, repoID, "uses_database")
	require.NoError(t, err)
	require.Len(t, active, 1, "incumbent must stay active")
	require.Equal(t, types.FactActive, active[0].Status)
}

// Scenario 4: multi-value additive.
func TestApply_MultiValueAdditive(t *testing.T) {
	store := newTestStore(t)
	r := newTestResolver(t, store)
	ctx := context.Background()

	ex := types.Extraction{
		Facts: []types.FactInput{
			{Subject: "repo", Predicate: "depends_on", Object: "redis", Strength: types.StrengthInferred},
			{Subject: "repo", Predicate: "depends_on", Object: "sidekiq", Strength: types.StrengthInferred},
		},
	}

	counters, err := r.Apply(ctx, ex)
	require.NoError(t, err)
	require.Equal(t, 2, counters.FactsCreated)

	counters, err = r.Apply(ctx, ex)
	require.NoError(t, err)
	require.Equal(t, 0, counters.FactsCreated)

	repoID := entityID(t, store, types.EntityOther, "repo")
	active, err := store.ActiveFactsForSlot(ctx, nil, repoID, "depends_on")
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestApply_RejectsAppliedConflictWhenPolicyMultiValued(t *testing.T) {
	store := newTestStore(t)
	r := newTestResolver(t, store)
	ctx := context.Background()

	_, err := r.Apply(ctx, types.Extraction{
		Facts: []types.FactInput{
			{Subject: "repo", Predicate: "convention", Object: "trunk-based", Strength: types.StrengthInferred},
		},
	})
	require.NoError(t, err)

	counters, err := r.Apply(ctx, types.Extraction{
		Facts: []types.FactInput{
			{Subject: "repo", Predicate: "convention", Object: "gitflow", Strength: types.StrengthInferred},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, counters.FactsCreated, "multi-valued predicate never conflicts or supersedes")
	require.Equal(t, 0, counters.ConflictsCreated)
	require.Equal(t, 0, counters.FactsSuperseded)
}
