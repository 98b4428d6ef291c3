package storemgr_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/storemgr"
	"github.com/recallgraph/recall/internal/types"
)

type testPaths struct {
	global, project string
}

func (p testPaths) GlobalDBPath() string  { return p.global }
func (p testPaths) ProjectDBPath() string { return p.project }

func newTestManager(t *testing.T) *storemgr.Manager {
	t.Helper()
	dir := t.TempDir()
	paths := testPaths{
		global:  filepath.Join(dir, "global.db"),
		project: filepath.Join(dir, "project.db"),
	}
	opener := storemgr.DefaultOpener(sqlite.Options{
		VectorMode: config.VectorModeFallback,
		VectorDim:  8,
	})
	mgr := storemgr.New(paths, opener)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func insertProjectFact(t *testing.T, store storage.Store) string {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	subjectID, _, err := store.FindOrCreateEntity(ctx, tx, types.EntityRepo, "repo")
	require.NoError(t, err)
	lit := "PostgreSQL"
	factID, err := store.InsertFact(ctx, tx, types.Fact{
		SubjectID:  subjectID,
		Predicate:  "uses_database",
		Object:     types.ObjectRef{Literal: &lit, Datatype: "string"},
		Polarity:   types.PolarityPositive,
		Confidence: 0.9,
		Status:     types.FactActive,
		Source:     "resolver",
		Scope:      types.ScopeProject,
	})
	require.NoError(t, err)
	_, err = store.InsertProvenance(ctx, tx, types.ProvenanceReceipt{
		FactID:   factID,
		Quote:    "we use Postgres",
		Strength: types.StrengthStated,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return factID
}

func TestPromoteFact_CopiesFactEntityAndReceipts(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	project, err := mgr.EnsureProject(ctx)
	require.NoError(t, err)
	projectFactID := insertProjectFact(t, project)

	globalFactID, err := mgr.PromoteFact(ctx, projectFactID)
	require.NoError(t, err)
	require.NotEmpty(t, globalFactID)

	global, err := mgr.EnsureGlobal(ctx)
	require.NoError(t, err)
	gf, err := global.GetFact(ctx, globalFactID)
	require.NoError(t, err)
	require.Equal(t, types.ScopeGlobal, gf.Scope)
	require.Empty(t, gf.ProjectPath)

	receipts, err := global.ProvenanceForFact(ctx, globalFactID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, "we use Postgres", receipts[0].Quote)
}

func TestPromoteFact_IsIdempotent(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	project, err := mgr.EnsureProject(ctx)
	require.NoError(t, err)
	projectFactID := insertProjectFact(t, project)

	firstID, err := mgr.PromoteFact(ctx, projectFactID)
	require.NoError(t, err)

	secondID, err := mgr.PromoteFact(ctx, projectFactID)
	require.NoError(t, err)
	require.Equal(t, firstID, secondID, "promoting the same fact twice must not create a second global fact")

	global, err := mgr.EnsureGlobal(ctx)
	require.NoError(t, err)
	tx, err := global.Begin(ctx)
	require.NoError(t, err)
	gsubjectID, _, err := global.FindOrCreateEntity(ctx, tx, types.EntityRepo, "repo")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	active, err := global.ActiveFactsForSlot(ctx, nil, gsubjectID, "uses_database")
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestPromoteFact_UnknownIDReturnsEmpty(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.EnsureProject(ctx)
	require.NoError(t, err)

	globalFactID, err := mgr.PromoteFact(ctx, "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, globalFactID)
}
