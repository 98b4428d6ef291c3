package recall

import (
	"context"
	"strings"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// Query is the legacy full-detail shape of the hybrid retrieval pipeline:
// lexical FTS plus vector k-NN, fused by Reciprocal Rank Fusion, deduped by
// fact signature, ordered by the project-before-global scope tie-break.
func (e *Engine) Query(ctx context.Context, text string, limit int, scope types.Scope) ([]FullHit, error) {
	ctx, span := e.startSpan(ctx, "recall.query")
	defer span.End()

	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	stores, err := e.mgr.StoresForScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	var embedding []float32
	if e.gen != nil {
		embedding, err = e.gen.Generate(ctx, text)
		if err != nil {
			return nil, err
		}
	}

	var entries []rankedEntry
	full := make(map[string]FullHit)
	sigs := make(map[string]string)
	for _, s := range stores {
		se, sf, ss, err := e.queryStore(ctx, s, text, embedding, limit)
		if err != nil {
			return nil, err
		}
		entries = append(entries, se...)
		for k, v := range sf {
			full[k] = v
		}
		for k, v := range ss {
			sigs[k] = v
		}
	}

	bestBySig := make(map[string]rankedEntry, len(entries))
	for _, en := range entries {
		sig := sigs[en.ID]
		if cur, ok := bestBySig[sig]; !ok || en.Score > cur.Score {
			bestBySig[sig] = en
		}
	}
	deduped := make([]rankedEntry, 0, len(bestBySig))
	for _, en := range bestBySig {
		deduped = append(deduped, en)
	}
	sortFused(deduped)
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}

	out := make([]FullHit, 0, len(deduped))
	for _, en := range deduped {
		out = append(out, full[en.ID])
	}
	return out, nil
}

// QueryShortcut resolves a registered shortcut name to its canned query
// and runs it through the general Query path. found is false when name is
// not registered.
func (e *Engine) QueryShortcut(ctx context.Context, name string) (hits []FullHit, found bool, err error) {
	sc, ok := e.shortcuts.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	hits, err = e.Query(ctx, sc.QueryText, sc.DefaultLimit, sc.Scope)
	return hits, true, err
}

// queryStore runs lexical and (unless smart-expansion says to skip it)
// vector search against one store, batch-resolves every candidate fact
// with its display fields and receipts, and returns RRF-ready entries
// alongside the full hit and signature for each candidate id.
func (e *Engine) queryStore(ctx context.Context, s storage.Store, text string, embedding []float32, limit int) ([]rankedEntry, map[string]FullHit, map[string]string, error) {
	lexHits, err := s.SearchFacts(ctx, text, limit*3)
	if err != nil {
		return nil, nil, nil, err
	}

	skipVector := false
	if len(lexHits) > 0 {
		top := lexHits[0].Score
		second := 0.0
		if len(lexHits) > 1 {
			second = lexHits[1].Score
		}
		if top >= 0.85 && (top-second) >= 0.15 {
			skipVector = true
		}
	}

	var vecHits []storage.ScoredID
	if !skipVector && embedding != nil {
		vecHits, err = s.SearchVector(ctx, embedding, limit*3)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	idSet := make(map[string]bool, len(lexHits)+len(vecHits))
	lexIDs := make([]string, len(lexHits))
	for i, h := range lexHits {
		lexIDs[i] = h.ID
		idSet[h.ID] = true
	}
	vecIDs := make([]string, len(vecHits))
	for i, h := range vecHits {
		vecIDs[i] = h.ID
		idSet[h.ID] = true
	}
	if len(idSet) == 0 {
		return nil, nil, nil, nil
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	projected, err := s.FactsByIDsProjected(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	receipts, err := s.ProvenanceForFacts(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}

	lists := []rankedList{{weight: 1.0, ids: lexIDs}}
	if len(vecIDs) > 0 {
		lists = append(lists, rankedList{weight: 1.0, ids: vecIDs})
	}
	scores := rrfFuse(lists, e.cfg.RRFK)

	entries := make([]rankedEntry, 0, len(ids))
	full := make(map[string]FullHit, len(ids))
	sigs := make(map[string]string, len(ids))
	for _, id := range ids {
		fp, ok := projected[id]
		if !ok {
			continue
		}

		var similarity *float64
		for _, vh := range vecHits {
			if vh.ID == id {
				v := vh.Score
				similarity = &v
				break
			}
		}

		rscope := scopeGlobalRank
		if fp.Fact.Scope == types.ScopeProject {
			rscope = scopeProjectRank
		}
		entries = append(entries, rankedEntry{
			ID:        id,
			Score:     scores[id],
			Scope:     rscope,
			CreatedAt: fp.Fact.CreatedAt.Unix(),
		})
		full[id] = FullHit{
			Fact:       fp.Fact,
			Receipts:   receipts[id],
			Source:     fp.Fact.Source,
			Similarity: similarity,
		}
		sigs[id] = strings.ToLower(fp.SubjectName) + "\x00" + fp.Fact.Predicate + "\x00" +
			strings.ToLower(strings.TrimSpace(fp.ObjectDisplay))
	}
	return entries, full, sigs, nil
}
