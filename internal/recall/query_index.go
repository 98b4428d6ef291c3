package recall

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// truncateRunes cuts s to at most n runes, never splitting a multi-byte
// codepoint the way a byte-index slice would.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// QueryIndex is progressive disclosure layer 1: a compact, cheap-to-render
// hit list. Per involved store it issues exactly three queries regardless
// of result size: lexical search over content items, a batched provenance
// fetch keyed by the resulting content ids, and a batched entity-joined
// fact fetch keyed by the resulting fact ids.
func (e *Engine) QueryIndex(ctx context.Context, text string, limit int, scope types.Scope) ([]IndexHit, error) {
	ctx, span := e.startSpan(ctx, "recall.query_index")
	defer span.End()

	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	stores, err := e.mgr.StoresForScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	var hits []IndexHit
	for _, s := range stores {
		storeHits, err := e.queryIndexStore(ctx, s, text, limit)
		if err != nil {
			return nil, err
		}
		hits = append(hits, storeHits...)
		if len(hits) >= limit {
			break
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// queryIndexStore runs the three-query sequence against one store. Content
// hits are over-fetched (limit*3) because not every matching content item
// carries a fact citation; the final truncation to limit happens after
// facts are resolved.
func (e *Engine) queryIndexStore(ctx context.Context, s storage.Store, text string, limit int) ([]IndexHit, error) {
	contentHits, err := s.SearchContent(ctx, text, limit*3)
	if err != nil {
		return nil, err
	}
	if len(contentHits) == 0 {
		return nil, nil
	}

	contentIDs := make([]string, len(contentHits))
	contentScore := make(map[string]float64, len(contentHits))
	for i, h := range contentHits {
		contentIDs[i] = h.ID
		contentScore[h.ID] = h.Score
	}

	provByContent, err := s.ProvenanceForContentBatch(ctx, contentIDs)
	if err != nil {
		return nil, err
	}

	var factIDs []string
	seen := make(map[string]bool)
	factBestScore := make(map[string]float64)
	for _, cid := range contentIDs {
		for _, r := range provByContent[cid] {
			score := contentScore[cid]
			if cur, ok := factBestScore[r.FactID]; !ok || score > cur {
				factBestScore[r.FactID] = score
			}
			if !seen[r.FactID] {
				seen[r.FactID] = true
				factIDs = append(factIDs, r.FactID)
			}
		}
	}
	if len(factIDs) == 0 {
		return nil, nil
	}

	projected, err := s.FactsByIDsProjected(ctx, factIDs)
	if err != nil {
		return nil, err
	}

	hits := make([]IndexHit, 0, len(factIDs))
	for _, fid := range factIDs {
		fp, ok := projected[fid]
		if !ok {
			continue
		}
		preview := truncateRunes(fp.ObjectDisplay, 50)
		hits = append(hits, IndexHit{
			ID:            fp.Fact.ID,
			Subject:       fp.SubjectName,
			Predicate:     fp.Fact.Predicate,
			ObjectPreview: preview,
			Status:        fp.Fact.Status,
			Scope:         fp.Fact.Scope,
			Confidence:    fp.Fact.Confidence,
			TokenEstimate: estimateTokens(fp.SubjectName + " " + fp.Fact.Predicate + " " + fp.ObjectDisplay),
			Source:        fp.Fact.Source,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return factBestScore[hits[i].ID] > factBestScore[hits[j].ID]
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
