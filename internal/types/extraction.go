package types

import "time"

// EntityInput is one entity reference inside an Extraction, prior to
// upsert into the Entity Registry.
type EntityInput struct {
	Type       EntityType `json:"type"`
	Name       string     `json:"name"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// FactInput is one candidate fact inside an Extraction, prior to slot
// resolution by the Resolver.
type FactInput struct {
	Subject    string   `json:"subject"`
	Predicate  string   `json:"predicate"`
	Object     string   `json:"object"`
	Polarity   Polarity `json:"polarity,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Quote      string   `json:"quote,omitempty"`
	Strength   Strength `json:"strength,omitempty"`
	ScopeHint  Scope    `json:"scope_hint,omitempty"`
}

// DecisionInput is one recorded decision inside an Extraction; the Resolver
// persists each as a fact with predicate "decision".
type DecisionInput struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	StatusHint string `json:"status_hint,omitempty"`
}

// SignalInput is weak evidence attached to an existing fact slot when one
// matches, otherwise discarded.
type SignalInput struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Quote     string `json:"quote"`
}

// Extraction is the Resolver's sole input shape: the distiller's structured
// output for one content item.
type Extraction struct {
	ContentItemID string    `json:"content_item_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	ProjectPath   string    `json:"project_path,omitempty"`
	ScopeHint     Scope     `json:"scope_hint,omitempty"`

	Entities  []EntityInput   `json:"entities,omitempty"`
	Facts     []FactInput     `json:"facts,omitempty"`
	Decisions []DecisionInput `json:"decisions,omitempty"`
	Signals   []SignalInput   `json:"signals,omitempty"`
}

// ApplyCounters summarizes the effect of one Resolver.Apply call.
type ApplyCounters struct {
	EntitiesCreated  int `json:"entities_created"`
	FactsCreated     int `json:"facts_created"`
	FactsSuperseded  int `json:"facts_superseded"`
	ConflictsCreated int `json:"conflicts_created"`
}
