// Package storemgr implements the dual-scope coordinator: it is the only
// component allowed to hold the global and project storage.Store handles,
// lazily opening each on first use and offering scope-filtered reads and
// fact promotion across the two files.
package storemgr

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/types"
)

// PathConfig is the only contract the store manager needs from a
// configuration object.
type PathConfig interface {
	GlobalDBPath() string
	ProjectDBPath() string
}

// Opener opens one store at path. Production code passes sqlite.Open bound
// with the right Options; tests can substitute an in-memory opener.
type Opener func(ctx context.Context, path string) (storage.Store, error)

// Manager lazily owns the global and project store connections.
type Manager struct {
	cfg    PathConfig
	opener Opener

	mu      sync.Mutex
	global  storage.Store
	project storage.Store
}

// New constructs a Manager. opener is typically sqlite.Open wrapped to
// supply fixed Options (busy timeout, vector mode, dimension).
func New(cfg PathConfig, opener Opener) *Manager {
	return &Manager{cfg: cfg, opener: opener}
}

// DefaultOpener builds an Opener backed by the sqlite package with the
// given busy timeout and vector configuration.
func DefaultOpener(opts sqlite.Options) Opener {
	return func(ctx context.Context, path string) (storage.Store, error) {
		o := opts
		o.Path = path
		return sqlite.Open(ctx, o)
	}
}

// EnsureGlobal opens (if not already open) and returns the global store.
func (m *Manager) EnsureGlobal(ctx context.Context) (storage.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.global != nil {
		return m.global, nil
	}
	s, err := m.opener(ctx, m.cfg.GlobalDBPath())
	if err != nil {
		return nil, fmt.Errorf("storemgr: opening global store: %w", err)
	}
	m.global = s
	return s, nil
}

// EnsureProject opens (if not already open) and returns the project
// store. It is an error to call this when no project path is configured.
func (m *Manager) EnsureProject(ctx context.Context) (storage.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.project != nil {
		return m.project, nil
	}
	path := m.cfg.ProjectDBPath()
	if path == "" {
		return nil, fmt.Errorf("storemgr: no project path configured")
	}
	s, err := m.opener(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("storemgr: opening project store: %w", err)
	}
	m.project = s
	return s, nil
}

// EnsureBoth opens the global and project stores concurrently,
// short-circuiting on the first error, mirroring the teacher's errgroup
// use for concurrent multi-resource setup.
func (m *Manager) EnsureBoth(ctx context.Context) (global, project storage.Store, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := m.EnsureGlobal(gctx)
		if err != nil {
			return err
		}
		global = s
		return nil
	})
	g.Go(func() error {
		s, err := m.EnsureProject(gctx)
		if err != nil {
			return err
		}
		project = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return global, project, nil
}

// StoreForScope returns the handle for the given concrete scope. ScopeAll
// is not a valid argument here; callers that need merged reads use the
// scope-filtered helpers below instead.
func (m *Manager) StoreForScope(ctx context.Context, scope types.Scope) (storage.Store, error) {
	switch scope {
	case types.ScopeGlobal:
		return m.EnsureGlobal(ctx)
	case types.ScopeProject:
		return m.EnsureProject(ctx)
	default:
		return nil, fmt.Errorf("storemgr: invalid scope %q for direct store lookup", scope)
	}
}

// Close releases any opened store handles.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	if m.global != nil {
		if err := m.global.Close(); err != nil {
			firstErr = err
		}
	}
	if m.project != nil {
		if err := m.project.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
