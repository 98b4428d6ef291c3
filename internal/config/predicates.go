package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Cardinality classifies a predicate for the resolver's slot-decision
// logic: a single-valued predicate admits at most one active fact per
// (subject, predicate) slot; a multi-valued predicate admits many.
type Cardinality string

const (
	CardinalitySingle Cardinality = "single"
	CardinalityMulti  Cardinality = "multi"
)

type predicateEntry struct {
	Name        string `toml:"name"`
	Cardinality string `toml:"cardinality"`
}

type predicateFile struct {
	Predicate []predicateEntry `toml:"predicate"`
}

// PredicatePolicy is the resolver's sole source of predicate cardinality
// rules, externalized per the spec's open question rather than hardcoded
// in the resolver itself. Unknown predicates default to multi-valued.
type PredicatePolicy struct {
	table map[string]Cardinality
}

// defaultPredicates seeds the well-known predicates named in the
// specification so a fresh install behaves sensibly before an operator
// ever writes predicates.toml.
func defaultPredicates() map[string]Cardinality {
	return map[string]Cardinality{
		"uses_database":       CardinalitySingle,
		"auth_method":         CardinalitySingle,
		"deployment_platform": CardinalitySingle,
		"depends_on":          CardinalityMulti,
		"convention":          CardinalityMulti,
		"decision":            CardinalityMulti,
	}
}

// LoadPredicatePolicy reads predicates.toml at path if it exists, merging
// its entries over the built-in defaults. A missing file is not an error:
// the defaults alone are a valid policy.
func LoadPredicatePolicy(path string) (*PredicatePolicy, error) {
	table := defaultPredicates()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var pf predicateFile
			if _, err := toml.DecodeFile(path, &pf); err != nil {
				return nil, err
			}
			for _, e := range pf.Predicate {
				switch Cardinality(e.Cardinality) {
				case CardinalitySingle:
					table[e.Name] = CardinalitySingle
				case CardinalityMulti:
					table[e.Name] = CardinalityMulti
				default:
					table[e.Name] = CardinalityMulti
				}
			}
		}
	}

	return &PredicatePolicy{table: table}, nil
}

// Cardinality returns the classification for predicate, defaulting to
// multi-valued for any predicate never classified.
func (p *PredicatePolicy) Cardinality(predicate string) Cardinality {
	if c, ok := p.table[predicate]; ok {
		return c
	}
	return CardinalityMulti
}

// IsSingleValued is a convenience predicate used throughout the resolver.
func (p *PredicatePolicy) IsSingleValued(predicate string) bool {
	return p.Cardinality(predicate) == CardinalitySingle
}
