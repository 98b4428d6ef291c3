package recall

import (
	"context"
	"errors"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// notFoundResult is the null object explain returns when no store in the
// requested scope holds the fact: a well-formed response, never an error.
var notFoundResult = ExplainResult{Status: "not_found"}

// Explain assembles a fact's full audit trail: the fact itself, its
// receipts, its supersession edges in both directions, and any conflicts
// naming it. Four queries total against the store that holds it; a
// missing fact yields the null-object "not_found" result rather than an
// error.
func (e *Engine) Explain(ctx context.Context, factID string, scope types.Scope) (ExplainResult, error) {
	ctx, span := e.startSpan(ctx, "recall.explain")
	defer span.End()

	stores, err := e.mgr.StoresForScope(ctx, scope)
	if err != nil {
		return ExplainResult{}, err
	}

	for _, s := range stores {
		result, ok, err := e.explainStore(ctx, s, factID)
		if err != nil {
			return ExplainResult{}, err
		}
		if ok {
			return result, nil
		}
	}
	return notFoundResult, nil
}

func (e *Engine) explainStore(ctx context.Context, s storage.Store, factID string) (ExplainResult, bool, error) {
	f, err := s.GetFact(ctx, factID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ExplainResult{}, false, nil
		}
		return ExplainResult{}, false, err
	}

	receipts, err := s.ProvenanceForFact(ctx, factID)
	if err != nil {
		return ExplainResult{}, false, err
	}
	supersedes, supersededBy, err := s.SupersessionEdges(ctx, factID)
	if err != nil {
		return ExplainResult{}, false, err
	}
	conflicts, err := s.ConflictsForFact(ctx, factID)
	if err != nil {
		return ExplainResult{}, false, err
	}

	return ExplainResult{
		Status:       "found",
		Fact:         f,
		Receipts:     receipts,
		Supersedes:   supersedes,
		SupersededBy: supersededBy,
		Conflicts:    conflicts,
	}, true, nil
}
