package sweeper_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/sweeper"
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

func insertFact(t *testing.T, store storage.Store, status types.FactStatus) string {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	subjectID, _, err := store.FindOrCreateEntity(ctx, tx, types.EntityRepo, "repo")
	require.NoError(t, err)
	lit := "value"
	id, err := store.InsertFact(ctx, tx, types.Fact{
		SubjectID:  subjectID,
		Predicate:  "convention",
		Object:     types.ObjectRef{Literal: &lit, Datatype: "string"},
		Polarity:   types.PolarityPositive,
		ValidFrom:  time.Now(),
		Status:     status,
		Confidence: 0.5,
		Source:     "test",
		Scope:      types.ScopeProject,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func TestRun_ZeroBudgetReturnsImmediately(t *testing.T) {
	store := newTestStore(t)
	s := sweeper.New(store)

	stats, err := s.Run(context.Background(), sweeper.Config{BudgetSeconds: 0})
	require.NoError(t, err)
	require.Equal(t, sweeper.Stats{BudgetHonored: true}, stats)
}

func TestRun_ExpiresAgedProposedAndDisputedFacts(t *testing.T) {
	store := newTestStore(t)
	proposedID := insertFact(t, store, types.FactProposed)
	disputedID := insertFact(t, store, types.FactDisputed)
	s := sweeper.New(store)

	stats, err := s.Run(context.Background(), sweeper.Config{
		BudgetSeconds: 5.0,
		// negative TTLs push the horizon into the future, guaranteeing the
		// just-inserted facts read as older than the horizon.
		ProposedTTL: -time.Minute,
		DisputedTTL: -time.Minute,
		ContentTTL:  time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.ProposedFactsExpired)
	require.Equal(t, 1, stats.DisputedFactsExpired)
	require.True(t, stats.BudgetHonored)

	proposed, err := store.GetFact(context.Background(), proposedID)
	require.NoError(t, err)
	require.Equal(t, types.FactRetracted, proposed.Status)

	disputed, err := store.GetFact(context.Background(), disputedID)
	require.NoError(t, err)
	require.Equal(t, types.FactRetracted, disputed.Status)
}

func TestRun_StopsEarlyWhenBudgetExhausted(t *testing.T) {
	store := newTestStore(t)
	insertFact(t, store, types.FactProposed)
	insertFact(t, store, types.FactDisputed)
	s := sweeper.New(store)

	stats, err := s.Run(context.Background(), sweeper.Config{
		BudgetSeconds: 1e-9,
		ProposedTTL:   -time.Minute,
		DisputedTTL:   -time.Minute,
		ContentTTL:    time.Hour,
	})
	require.NoError(t, err)
	require.False(t, stats.BudgetHonored)
	require.Equal(t, 1, stats.ProposedFactsExpired, "phase 1 still runs before the first deadline check")
	require.Equal(t, 0, stats.DisputedFactsExpired, "phase 2 never starts once the budget is exhausted")
}
