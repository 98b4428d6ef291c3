package recall

import (
	"context"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// RecallDetails is progressive disclosure layer 3: full facts, full
// receipts, and the supersession/conflict neighborhood, batched across all
// requested ids. An id with no matching fact in any involved store is
// silently omitted rather than erroring.
func (e *Engine) RecallDetails(ctx context.Context, factIDs []string, scope types.Scope) ([]DetailHit, error) {
	ctx, span := e.startSpan(ctx, "recall.recall_details")
	defer span.End()

	if len(factIDs) == 0 {
		return nil, nil
	}

	stores, err := e.mgr.StoresForScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	found := make(map[string]DetailHit, len(factIDs))
	for _, s := range stores {
		hits, err := e.recallDetailsStore(ctx, s, factIDs)
		if err != nil {
			return nil, err
		}
		for id, h := range hits {
			if _, already := found[id]; !already {
				found[id] = h
			}
		}
	}

	out := make([]DetailHit, 0, len(found))
	for _, id := range factIDs {
		if h, ok := found[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (e *Engine) recallDetailsStore(ctx context.Context, s storage.Store, factIDs []string) (map[string]DetailHit, error) {
	projected, err := s.FactsByIDsProjected(ctx, factIDs)
	if err != nil {
		return nil, err
	}
	if len(projected) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(projected))
	for id := range projected {
		ids = append(ids, id)
	}

	receipts, err := s.ProvenanceForFacts(ctx, ids)
	if err != nil {
		return nil, err
	}
	supersedes, supersededBy, err := s.SupersessionEdgesBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.ConflictsForFacts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]DetailHit, len(ids))
	for _, id := range ids {
		out[id] = DetailHit{
			Fact:     projected[id].Fact,
			Receipts: receipts[id],
			Relationships: Relationships{
				Supersedes:   supersedes[id],
				SupersededBy: supersededBy[id],
				Conflicts:    conflicts[id],
			},
		}
	}
	return out, nil
}
