package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/types"
)

func newTestDB(t *testing.T) *sqlite.DB {
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

func TestSlug_NormalizesCaseAndPunctuation(t *testing.T) {
	assert.Equal(t, "framework:ruby_on_rails", sqlite.Slug(types.EntityFramework, "Ruby on Rails!"))
	assert.Equal(t, "database:postgresql", sqlite.Slug(types.EntityDatabase, "PostgreSQL"))
	assert.Equal(t, "repo:repo", sqlite.Slug(types.EntityRepo, "  --repo--  "))
}

func TestFindOrCreateEntity_SecondCallReturnsSameIDAndReportsFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	id1, created1, err := db.FindOrCreateEntity(ctx, tx, types.EntityDatabase, "PostgreSQL")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.True(t, created1)

	tx2, err := db.Begin(ctx)
	require.NoError(t, err)
	id2, created2, err := db.FindOrCreateEntity(ctx, tx2, types.EntityDatabase, "postgresql")
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	assert.Equal(t, id1, id2, "differing case must resolve to the same slug and entity")
	assert.False(t, created2, "second call for an already-registered slug must report created=false")
}

func TestFindOrCreateEntity_DistinctTypesDoNotCollide(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	dbID, dbCreated, err := db.FindOrCreateEntity(ctx, tx, types.EntityDatabase, "Redis")
	require.NoError(t, err)
	svcID, svcCreated, err := db.FindOrCreateEntity(ctx, tx, types.EntityService, "Redis")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NotEqual(t, dbID, svcID, "same name under different entity types must not collide")
	assert.True(t, dbCreated)
	assert.True(t, svcCreated)
}

func TestFindOrCreateEntity_RequiresStoreOpenedTx(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, _, err := db.FindOrCreateEntity(ctx, nil, types.EntityRepo, "repo")
	assert.Error(t, err)
}

// TestFindOrCreateEntity_ConcurrentInsertsConverge has many goroutines each
// open their own transaction and ask for the same (type, name) pair. The
// store's single pooled connection serializes their transactions, so one
// caller inserts and the rest find its row; every caller must land on the
// same entity id.
func TestFindOrCreateEntity_ConcurrentInsertsConverge(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			tx, err := db.Begin(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			id, _, err := db.FindOrCreateEntity(ctx, tx, types.EntityFramework, "Rails")
			if err != nil {
				errs[i] = err
				tx.Rollback()
				return
			}
			errs[i] = tx.Commit()
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	for i, id := range ids {
		assert.Equal(t, ids[0], id, "worker %d diverged", i)
	}
}

func TestGetEntityBySlug_RoundTrips(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	id, _, err := db.FindOrCreateEntity(ctx, tx, types.EntityLanguage, "Go")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	e, err := db.GetEntityBySlug(ctx, sqlite.Slug(types.EntityLanguage, "Go"))
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, types.EntityLanguage, e.Type)
	assert.Equal(t, "Go", e.CanonicalName)
}

func TestGetEntity_UnknownIDReturnsError(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetEntity(context.Background(), "does-not-exist")
	assert.Error(t, err)
}
