package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRrfFuse_TopRankBonus(t *testing.T) {
	lex := rankedList{weight: 1.0, ids: []string{"activerecord", "other"}}
	vec := rankedList{weight: 1.0, ids: []string{"orm-fact", "activerecord"}}

	scores := rrfFuse([]rankedList{lex, vec}, 60)

	// "activerecord" is rank 0 in the lexical list and rank 1 in the
	// vector list: it earns both RRF terms plus the rank-0 bonus.
	want := 1.0/61 + 1.0/62 + 0.05
	assert.InDelta(t, want, scores["activerecord"], 1e-9)

	// "orm-fact" is rank 0 only in the vector list.
	wantOrm := 1.0/61 + 0.05
	assert.InDelta(t, wantOrm, scores["orm-fact"], 1e-9)

	assert.Greater(t, scores["activerecord"], scores["orm-fact"])
}

func TestRrfFuse_SecondAndThirdRankBonus(t *testing.T) {
	list := rankedList{weight: 1.0, ids: []string{"a", "b", "c", "d"}}
	scores := rrfFuse([]rankedList{list}, 60)

	assert.InDelta(t, 1.0/61+0.05, scores["a"], 1e-9)
	assert.InDelta(t, 1.0/62+0.02, scores["b"], 1e-9)
	assert.InDelta(t, 1.0/63+0.02, scores["c"], 1e-9)
	assert.InDelta(t, 1.0/64, scores["d"], 1e-9, "rank 3 gets no bonus")
}

func TestSortFused_ProjectBeforeGlobalThenScoreThenNewest(t *testing.T) {
	entries := []rankedEntry{
		{ID: "global-high", Score: 0.9, Scope: scopeGlobalRank, CreatedAt: 100},
		{ID: "project-low", Score: 0.1, Scope: scopeProjectRank, CreatedAt: 50},
		{ID: "project-high-old", Score: 0.5, Scope: scopeProjectRank, CreatedAt: 10},
		{ID: "project-high-new", Score: 0.5, Scope: scopeProjectRank, CreatedAt: 20},
	}

	sortFused(entries)

	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.ID
	}
	assert.Equal(t, []string{"project-high-new", "project-high-old", "project-low", "global-high"}, got)
}
