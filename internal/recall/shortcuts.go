package recall

import "github.com/recallgraph/recall/internal/types"

// Shortcut is one canned query in the shortcut registry: a name maps to a
// fixed query text, scope, and default limit. Shortcuts reuse the general
// Query path rather than having their own bespoke implementation, per the
// spec's instruction to centralize what would otherwise be one repetitive
// method per shortcut.
type Shortcut struct {
	QueryText    string
	Scope        types.Scope
	DefaultLimit int
}

// Registry is a name -> Shortcut lookup table.
type Registry map[string]Shortcut

// DefaultRegistry seeds the well-known shortcuts named in the spec.
func DefaultRegistry() Registry {
	return Registry{
		"decisions": {
			QueryText:    "decision",
			Scope:        types.ScopeAll,
			DefaultLimit: 20,
		},
		"conventions": {
			QueryText:    "convention",
			Scope:        types.ScopeAll,
			DefaultLimit: 20,
		},
		"architecture": {
			QueryText:    "architecture design module",
			Scope:        types.ScopeAll,
			DefaultLimit: 20,
		},
		"project_config": {
			QueryText:    "deployment_platform auth_method uses_database",
			Scope:        types.ScopeProject,
			DefaultLimit: 20,
		},
	}
}

// Lookup returns the shortcut registered under name and whether it exists.
func (r Registry) Lookup(name string) (Shortcut, bool) {
	s, ok := r[name]
	return s, ok
}
