// Package types defines the persisted data model shared across the storage,
// resolver, sweeper, store manager, and recall packages: content items,
// entities, facts, provenance receipts, fact links, conflicts, and the
// bookkeeping records the sweeper and embedding backfill operate on.
package types

import "time"

// Scope distinguishes the user-wide store from a path-bound project store.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
	// ScopeAll is a read-only query scope meaning "both stores, merged".
	ScopeAll Scope = "all"
)

// FactStatus is a fact's position in its lifecycle.
type FactStatus string

const (
	FactProposed   FactStatus = "proposed"
	FactActive     FactStatus = "active"
	FactDisputed   FactStatus = "disputed"
	FactSuperseded FactStatus = "superseded"
	FactRetracted  FactStatus = "retracted"
)

// Polarity records whether a fact asserts or denies its predicate.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// Strength ranks the evidentiary weight of a receipt or candidate fact.
// Higher values win ties in the resolver's supersession rule.
type Strength string

const (
	StrengthStated   Strength = "stated"
	StrengthInferred Strength = "inferred"
	StrengthDerived  Strength = "derived"
)

// Rank returns the numeric ordering used by the resolver's supersession
// comparison: stated(3) > inferred(2) > derived(1).
func (s Strength) Rank() int {
	switch s {
	case StrengthStated:
		return 3
	case StrengthInferred:
		return 2
	case StrengthDerived:
		return 1
	default:
		return 1
	}
}

// LinkType names the kind of directed edge between two facts.
type LinkType string

const LinkSupersedes LinkType = "supersedes"

// ConflictStatus is the lifecycle state of a Conflict record.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// OperationState is the lifecycle state of a long-running batch operation.
type OperationState string

const (
	OperationRunning   OperationState = "running"
	OperationCompleted OperationState = "completed"
	OperationFailed    OperationState = "failed"
)

// EntityType enumerates the small, fixed set of domain object kinds a
// subject or object entity may take.
type EntityType string

const (
	EntityDatabase EntityType = "database"
	EntityFramework EntityType = "framework"
	EntityLanguage  EntityType = "language"
	EntityPlatform  EntityType = "platform"
	EntityRepo      EntityType = "repo"
	EntityModule    EntityType = "module"
	EntityPerson    EntityType = "person"
	EntityService   EntityType = "service"
	EntityOther     EntityType = "other"
)

// ContentItem is a persisted, immutable chunk of source text.
type ContentItem struct {
	ID                string
	Source            string
	SessionID         string
	TranscriptPath    string
	ProjectPath       string
	OccurredAt        time.Time
	IngestedAt        time.Time
	TextHash          string
	ByteLen           int
	RawText           string
	Metadata          map[string]any
	GitBranch         string
	WorkingDir        string
	ToolCallerVersion string
	ThinkingLevel     string
	SourceModTime     *time.Time
}

// DeltaCursor tracks the last consumed byte offset for a (session,
// transcript path) pair.
type DeltaCursor struct {
	SessionID      string
	TranscriptPath string
	Offset         int64
	UpdatedAt      time.Time
}

// Entity is a canonical, named domain object.
type Entity struct {
	ID            string     `json:"id"`
	Type          EntityType `json:"type"`
	CanonicalName string     `json:"canonical_name"`
	Slug          string     `json:"slug"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EntityAlias is an alternate name by which an entity may be referenced.
type EntityAlias struct {
	ID         string   `json:"id"`
	EntityID   string   `json:"entity_id"`
	Alias      string   `json:"alias"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ObjectRef is the tagged-union target of a fact: either a reference to a
// canonical entity or a bare literal value with a datatype tag.
type ObjectRef struct {
	EntityID *string `json:"entity_id,omitempty"`
	Literal  *string `json:"literal,omitempty"`
	Datatype string  `json:"datatype,omitempty"`
}

// IsEntity reports whether this object ref points at a canonical entity
// rather than holding a literal value.
func (o ObjectRef) IsEntity() bool { return o.EntityID != nil }

// Fact is a temporally-bounded triple assertion.
type Fact struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id"`
	Predicate   string     `json:"predicate"`
	Object      ObjectRef  `json:"object"`
	Polarity    Polarity   `json:"polarity"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
	Status      FactStatus `json:"status"`
	Confidence  float64    `json:"confidence"`
	Source      string     `json:"source"`
	CreatedAt   time.Time  `json:"created_at"`
	Scope       Scope      `json:"scope"`
	ProjectPath string     `json:"project_path,omitempty"`
	Embedding   []float32  `json:"-"`
}

// ProvenanceReceipt is append-only evidence linking a fact to the content it
// was distilled from.
type ProvenanceReceipt struct {
	ID            string    `json:"id"`
	FactID        string    `json:"fact_id"`
	ContentItemID *string   `json:"content_item_id,omitempty"`
	Quote         string    `json:"quote"`
	AttributionID *string   `json:"attribution_id,omitempty"`
	Strength      Strength  `json:"strength"`
	CreatedAt     time.Time `json:"created_at"`
}

// FactLink is a directed edge between two facts.
type FactLink struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	LinkType  LinkType  `json:"link_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Conflict records two facts on the same single-valued slot that the
// resolver could not rank against each other.
type Conflict struct {
	ID         string         `json:"id"`
	FactAID    string         `json:"fact_a_id"`
	FactBID    string         `json:"fact_b_id"`
	Status     ConflictStatus `json:"status"`
	DetectedAt time.Time      `json:"detected_at"`
	Notes      string         `json:"notes,omitempty"`
}

// OperationProgress tracks a resumable long-running batch operation.
type OperationProgress struct {
	ID             string
	OperationType  string
	Scope          Scope
	Total          int
	Processed      int
	Checkpoint     []byte
	State          OperationState
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// IngestionMetric is an append-only token-accounting record for one
// distillation operation.
type IngestionMetric struct {
	ID             string
	InputTokens    int
	OutputTokens   int
	FactsExtracted int
	CreatedAt      time.Time
}
