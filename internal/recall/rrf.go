package recall

import "sort"

// rankedList is one ranked source list feeding RRF: a lexical or vector
// search result, each entry a fact's storage id. Lists from the same store
// merge on that id; deduplication by fact signature across stores happens
// after fusion.
type rankedList struct {
	weight float64
	ids    []string // in rank order, rank 0 first
}

// rrfFuse computes Reciprocal Rank Fusion scores across any number of
// ranked lists: score(f) = sum over lists of weight / (k + rank + 1),
// plus a top-rank bonus (+0.05 for rank 0 in any list, +0.02 for best
// rank in [1,2]).
func rrfFuse(lists []rankedList, k int) map[string]float64 {
	scores := make(map[string]float64)
	bestRank := make(map[string]int)

	for _, list := range lists {
		for rank, id := range list.ids {
			scores[id] += list.weight / float64(k+rank+1)
			if br, ok := bestRank[id]; !ok || rank < br {
				bestRank[id] = rank
			}
		}
	}

	for id, rank := range bestRank {
		switch {
		case rank == 0:
			scores[id] += 0.05
		case rank <= 2:
			scores[id] += 0.02
		}
	}

	return scores
}

// rankedEntry is one fused result prior to the scope tie-break.
type rankedEntry struct {
	ID        string
	Score     float64
	Scope     rankScope
	CreatedAt int64 // unix seconds, for newest-wins tie-break
}

type rankScope int

const (
	scopeProjectRank rankScope = 0
	scopeGlobalRank  rankScope = 1
)

// sortFused orders entries by the spec's scope tie-break: project before
// global, then higher score, then newer creation timestamp.
func sortFused(entries []rankedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Scope != entries[j].Scope {
			return entries[i].Scope < entries[j].Scope
		}
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
}
