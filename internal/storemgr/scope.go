package storemgr

import (
	"context"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

// StoresForScope resolves which underlying store(s) a read should consult:
// "project" and "global" each resolve to exactly one store; "all" opens
// and returns both, in project-then-global order so callers that rank
// project ahead of global on ties can iterate results in that order
// directly.
func (m *Manager) StoresForScope(ctx context.Context, scope types.Scope) ([]storage.Store, error) {
	switch scope {
	case types.ScopeProject:
		s, err := m.EnsureProject(ctx)
		if err != nil {
			return nil, err
		}
		return []storage.Store{s}, nil
	case types.ScopeGlobal:
		s, err := m.EnsureGlobal(ctx)
		if err != nil {
			return nil, err
		}
		return []storage.Store{s}, nil
	default: // types.ScopeAll
		global, project, err := m.EnsureBoth(ctx)
		if err != nil {
			return nil, err
		}
		return []storage.Store{project, global}, nil
	}
}
