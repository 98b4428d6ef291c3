// Package resolver implements the truth-maintenance decision logic that
// turns a distiller's Extraction into entity upserts, fact writes,
// provenance receipts, supersession links, and conflicts. The entire
// apply runs as one transaction; any failure rolls back leaving no
// partial state visible to readers.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/types"
)

var tracer = otel.Tracer("github.com/recallgraph/recall/internal/resolver")

// Resolver applies extractions against a single store (the caller has
// already picked global or project via the Store Manager).
type Resolver struct {
	store   storage.Store
	policy  *config.PredicatePolicy
	epsilon float64
}

// New constructs a Resolver bound to one store and predicate policy.
// epsilon is the confidence tolerance used by the supersession rule;
// spec default is 0.05.
func New(store storage.Store, policy *config.PredicatePolicy, epsilon float64) *Resolver {
	return &Resolver{store: store, policy: policy, epsilon: epsilon}
}

// candidate is a fully-resolved fact candidate, ready for slot decision.
type candidate struct {
	subjectID     string
	subjectName   string
	predicate     string
	object        types.ObjectRef
	polarity      types.Polarity
	confidence    float64
	strength      types.Strength
	quote         string
	contentItemID string
	validFrom     time.Time
	scope         types.Scope
	projectPath   string
}

// Apply runs the full resolver algorithm from spec.md §4.9 inside a single
// transaction, returning aggregate counters or rolling back on any error.
func (r *Resolver) Apply(ctx context.Context, ex types.Extraction) (types.ApplyCounters, error) {
	ctx, span := tracer.Start(ctx, "resolver.Apply", trace.WithAttributes(
		attribute.Int("facts", len(ex.Facts)),
		attribute.Int("entities", len(ex.Entities)),
		attribute.Int("decisions", len(ex.Decisions)),
	))
	defer span.End()

	tx, err := r.store.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.ApplyCounters{}, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	touched := make(map[string]string)
	counters, err := r.apply(ctx, tx, ex, touched)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.ApplyCounters{}, err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.ApplyCounters{}, err
	}
	committed = true

	// Lexical reindexing happens after commit, never inside the write
	// transaction: the bleve handle isn't part of SQLite's transaction,
	// and GetFact/ProvenanceForFact read through the plain pool
	// connection, which would deadlock against an in-flight BEGIN
	// IMMEDIATE on a single-connection pool.
	r.reindexTouched(ctx, touched)

	return counters, nil
}

// reindexTouched refreshes the lexical fact index for every fact the
// apply touched (created, superseded-replacement, or receipt-appended).
// Indexing failures are recorded on the span but never fail Apply: the
// facts are already durably committed, and search staleness is a
// degraded-search condition, not a correctness one.
func (r *Resolver) reindexTouched(ctx context.Context, touched map[string]string) {
	span := trace.SpanFromContext(ctx)
	for factID, subjectName := range touched {
		f, err := r.store.GetFact(ctx, factID)
		if err != nil {
			span.RecordError(err)
			continue
		}
		receipts, err := r.store.ProvenanceForFact(ctx, factID)
		if err != nil {
			span.RecordError(err)
			continue
		}
		if err := r.store.IndexFact(ctx, *f, subjectName, receipts); err != nil {
			span.RecordError(err)
		}
	}
}

func (r *Resolver) apply(ctx context.Context, tx storage.Tx, ex types.Extraction, touched map[string]string) (types.ApplyCounters, error) {
	var counters types.ApplyCounters

	// Step 1: entity upsert. entityByName indexes both the declared
	// entities and their inferred types so subjects/objects in facts can
	// be resolved to the right entity type even though FactInput only
	// carries a name string.
	entityByName := make(map[string]types.EntityInput, len(ex.Entities))
	for _, e := range ex.Entities {
		key := normalizeName(e.Name)
		entityByName[key] = e
		_, created, err := r.store.FindOrCreateEntity(ctx, tx, e.Type, e.Name)
		if err != nil {
			return counters, fmt.Errorf("resolver: upsert entity %q: %w", e.Name, err)
		}
		if created {
			counters.EntitiesCreated++
		}
	}

	scope := ex.ScopeHint
	if scope == "" {
		scope = types.ScopeProject
	}

	// Step 2-4: candidate construction and slot decisions, processed in
	// extraction order so a later candidate on the same slot observes the
	// earlier candidate's own writes via ActiveFactsForSlot(tx, ...).
	for _, fi := range ex.Facts {
		cand, err := r.resolveCandidate(ctx, tx, fi, ex, entityByName, scope, &counters)
		if err != nil {
			return counters, err
		}
		if err := r.decide(ctx, tx, cand, &counters, touched); err != nil {
			return counters, err
		}
	}

	// Step 5: decisions persisted as facts with predicate "decision".
	for _, di := range ex.Decisions {
		if err := r.applyDecision(ctx, tx, di, ex, scope, &counters, touched); err != nil {
			return counters, err
		}
	}

	// Step 6: signals are weak evidence attached to an existing matching
	// slot, discarded otherwise.
	for _, si := range ex.Signals {
		if err := r.applySignal(ctx, tx, si, ex, &counters, touched); err != nil {
			return counters, err
		}
	}

	return counters, nil
}

// resolveCandidate turns one FactInput into a fully id-resolved candidate:
// subject and object names are looked up against the extraction's entity
// list (falling back to EntityOther) and upserted, object literals are
// kept as-is when no matching entity was declared.
func (r *Resolver) resolveCandidate(ctx context.Context, tx storage.Tx, fi types.FactInput, ex types.Extraction,
	entityByName map[string]types.EntityInput, defaultScope types.Scope, counters *types.ApplyCounters) (candidate, error) {

	subjectType := types.EntityOther
	if e, ok := entityByName[normalizeName(fi.Subject)]; ok {
		subjectType = e.Type
	}
	subjectID, created, err := r.store.FindOrCreateEntity(ctx, tx, subjectType, fi.Subject)
	if err != nil {
		return candidate{}, fmt.Errorf("resolver: resolve subject %q: %w", fi.Subject, err)
	}
	if created {
		counters.EntitiesCreated++
	}

	var obj types.ObjectRef
	if e, ok := entityByName[normalizeName(fi.Object)]; ok {
		objectID, created, err := r.store.FindOrCreateEntity(ctx, tx, e.Type, fi.Object)
		if err != nil {
			return candidate{}, fmt.Errorf("resolver: resolve object %q: %w", fi.Object, err)
		}
		if created {
			counters.EntitiesCreated++
		}
		obj = types.ObjectRef{EntityID: &objectID}
	} else {
		lit := strings.TrimSpace(fi.Object)
		obj = types.ObjectRef{Literal: &lit, Datatype: "string"}
	}

	polarity := fi.Polarity
	if polarity == "" {
		polarity = types.PolarityPositive
	}
	confidence := 1.0
	if fi.Confidence != nil {
		confidence = *fi.Confidence
	}
	strength := fi.Strength
	if strength == "" {
		strength = types.StrengthInferred
	}
	scope := fi.ScopeHint
	if scope == "" {
		scope = defaultScope
	}

	return candidate{
		subjectID:     subjectID,
		subjectName:   fi.Subject,
		predicate:     fi.Predicate,
		object:        obj,
		polarity:      polarity,
		confidence:    confidence,
		strength:      strength,
		quote:         fi.Quote,
		contentItemID: ex.ContentItemID,
		validFrom:     ex.OccurredAt,
		scope:         scope,
		projectPath:   ex.ProjectPath,
	}, nil
}

// objectsEqual implements the spec's equivalence rule: entity references
// compare by id, literals compare case-insensitively after trimming.
func objectsEqual(a, b types.ObjectRef) bool {
	if a.IsEntity() != b.IsEntity() {
		return false
	}
	if a.IsEntity() {
		return *a.EntityID == *b.EntityID
	}
	aLit, bLit := "", ""
	if a.Literal != nil {
		aLit = strings.ToLower(strings.TrimSpace(*a.Literal))
	}
	if b.Literal != nil {
		bLit = strings.ToLower(strings.TrimSpace(*b.Literal))
	}
	return aLit == bLit
}

// decide runs the priority-ordered decision tree (Equivalent > Additive >
// Supersedes > Conflict) for one candidate against its slot's current
// active facts, then performs the corresponding writes.
func (r *Resolver) decide(ctx context.Context, tx storage.Tx, cand candidate, counters *types.ApplyCounters, touched map[string]string) error {
	active, err := r.store.ActiveFactsForSlot(ctx, tx, cand.subjectID, cand.predicate)
	if err != nil {
		return fmt.Errorf("resolver: slot lookup: %w", err)
	}

	if equiv := findEquivalent(active, cand); equiv != nil {
		return r.applyEquivalent(ctx, tx, *equiv, cand, touched)
	}

	singleValued := r.policy.IsSingleValued(cand.predicate)
	if !singleValued {
		return r.applyAdditive(ctx, tx, cand, counters, touched)
	}

	if len(active) == 0 {
		return r.applyAdditive(ctx, tx, cand, counters, touched)
	}

	// Single-valued slot with an incumbent: decide supersede vs conflict
	// against the strongest incumbent (highest confidence) — the only
	// incumbent relevant to a single-valued slot in a consistent
	// database, since at most one fact should be active per slot.
	incumbent := strongestFact(active)
	incumbentStrength, err := r.strongestReceiptStrength(ctx, incumbent.ID)
	if err != nil {
		return err
	}

	if cand.strength.Rank() >= incumbentStrength.Rank() && cand.confidence >= incumbent.Confidence-r.epsilon {
		return r.applySupersedes(ctx, tx, incumbent, cand, counters, touched)
	}
	return r.applyConflict(ctx, tx, incumbent, cand, counters, touched)
}

func findEquivalent(active []types.Fact, cand candidate) *types.Fact {
	for i := range active {
		if active[i].Polarity == cand.polarity && objectsEqual(active[i].Object, cand.object) {
			return &active[i]
		}
	}
	return nil
}

// strongestFact picks the incumbent with the highest confidence among
// active facts on a slot; used only as a deterministic pick when (in an
// already-inconsistent database) more than one active fact exists on a
// single-valued slot.
func strongestFact(active []types.Fact) types.Fact {
	best := active[0]
	for _, f := range active[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

func (r *Resolver) strongestReceiptStrength(ctx context.Context, factID string) (types.Strength, error) {
	receipts, err := r.store.ProvenanceForFact(ctx, factID)
	if err != nil {
		return types.StrengthDerived, fmt.Errorf("resolver: fetch receipts: %w", err)
	}
	best := types.StrengthDerived
	for _, rec := range receipts {
		if rec.Strength.Rank() > best.Rank() {
			best = rec.Strength
		}
	}
	return best, nil
}

func (r *Resolver) applyEquivalent(ctx context.Context, tx storage.Tx, existing types.Fact, cand candidate, touched map[string]string) error {
	if _, err := r.insertReceipt(ctx, tx, existing.ID, cand); err != nil {
		return err
	}
	if cand.confidence > existing.Confidence {
		if err := r.store.UpdateFactConfidence(ctx, tx, existing.ID, cand.confidence); err != nil {
			return fmt.Errorf("resolver: raise confidence: %w", err)
		}
	}
	touched[existing.ID] = cand.subjectName
	return nil
}

func (r *Resolver) applyAdditive(ctx context.Context, tx storage.Tx, cand candidate, counters *types.ApplyCounters, touched map[string]string) error {
	factID, err := r.insertActiveFact(ctx, tx, cand)
	if err != nil {
		return err
	}
	if _, err := r.insertReceipt(ctx, tx, factID, cand); err != nil {
		return err
	}
	counters.FactsCreated++
	touched[factID] = cand.subjectName
	return nil
}

func (r *Resolver) applySupersedes(ctx context.Context, tx storage.Tx, incumbent types.Fact, cand candidate, counters *types.ApplyCounters, touched map[string]string) error {
	newID, err := r.insertActiveFact(ctx, tx, cand)
	if err != nil {
		return err
	}
	if _, err := r.insertReceipt(ctx, tx, newID, cand); err != nil {
		return err
	}
	validTo := cand.validFrom.Unix()
	if err := r.store.UpdateFactStatus(ctx, tx, incumbent.ID, types.FactSuperseded, &validTo); err != nil {
		return fmt.Errorf("resolver: mark superseded: %w", err)
	}
	if _, err := r.store.InsertFactLink(ctx, tx, types.FactLink{FromID: newID, ToID: incumbent.ID, LinkType: types.LinkSupersedes}); err != nil {
		return fmt.Errorf("resolver: supersession link: %w", err)
	}
	counters.FactsCreated++
	counters.FactsSuperseded++
	touched[newID] = cand.subjectName
	return nil
}

func (r *Resolver) applyConflict(ctx context.Context, tx storage.Tx, incumbent types.Fact, cand candidate, counters *types.ApplyCounters, touched map[string]string) error {
	newID, err := r.insertFact(ctx, tx, cand, types.FactProposed)
	if err != nil {
		return err
	}
	if _, err := r.insertReceipt(ctx, tx, newID, cand); err != nil {
		return err
	}
	if _, err := r.store.InsertConflict(ctx, tx, types.Conflict{FactAID: incumbent.ID, FactBID: newID}); err != nil {
		return fmt.Errorf("resolver: insert conflict: %w", err)
	}
	counters.ConflictsCreated++
	touched[newID] = cand.subjectName
	return nil
}

func (r *Resolver) insertActiveFact(ctx context.Context, tx storage.Tx, cand candidate) (string, error) {
	return r.insertFact(ctx, tx, cand, types.FactActive)
}

func (r *Resolver) insertFact(ctx context.Context, tx storage.Tx, cand candidate, status types.FactStatus) (string, error) {
	f := types.Fact{
		SubjectID:   cand.subjectID,
		Predicate:   cand.predicate,
		Object:      cand.object,
		Polarity:    cand.polarity,
		ValidFrom:   cand.validFrom,
		Status:      status,
		Confidence:  cand.confidence,
		Source:      "resolver",
		Scope:       cand.scope,
		ProjectPath: cand.projectPath,
	}
	id, err := r.store.InsertFact(ctx, tx, f)
	if err != nil {
		return "", fmt.Errorf("resolver: insert fact: %w", err)
	}
	return id, nil
}

func (r *Resolver) insertReceipt(ctx context.Context, tx storage.Tx, factID string, cand candidate) (string, error) {
	var contentItemID *string
	if cand.contentItemID != "" {
		contentItemID = &cand.contentItemID
	}
	id, err := r.store.InsertProvenance(ctx, tx, types.ProvenanceReceipt{
		FactID:        factID,
		ContentItemID: contentItemID,
		Quote:         cand.quote,
		Strength:      cand.strength,
	})
	if err != nil {
		return "", fmt.Errorf("resolver: insert receipt: %w", err)
	}
	return id, nil
}

func (r *Resolver) applyDecision(ctx context.Context, tx storage.Tx, di types.DecisionInput, ex types.Extraction,
	scope types.Scope, counters *types.ApplyCounters, touched map[string]string) error {

	subjectID, created, err := r.store.FindOrCreateEntity(ctx, tx, types.EntityOther, di.Title)
	if err != nil {
		return fmt.Errorf("resolver: decision subject: %w", err)
	}
	if created {
		counters.EntitiesCreated++
	}
	object := di.Title + ": " + di.Summary
	cand := candidate{
		subjectID:     subjectID,
		subjectName:   di.Title,
		predicate:     "decision",
		object:        types.ObjectRef{Literal: &object, Datatype: "string"},
		polarity:      types.PolarityPositive,
		confidence:    1.0,
		strength:      types.StrengthStated,
		quote:         di.Summary,
		contentItemID: ex.ContentItemID,
		validFrom:     ex.OccurredAt,
		scope:         scope,
		projectPath:   ex.ProjectPath,
	}
	return r.decide(ctx, tx, cand, counters, touched)
}

func (r *Resolver) applySignal(ctx context.Context, tx storage.Tx, si types.SignalInput, ex types.Extraction,
	counters *types.ApplyCounters, touched map[string]string) error {

	var contentItemID *string
	if ex.ContentItemID != "" {
		contentItemID = &ex.ContentItemID
	}
	subjectType := types.EntityOther
	subjectID, created, err := r.store.FindOrCreateEntity(ctx, tx, subjectType, si.Subject)
	if err != nil {
		// Signals are weak evidence; a lookup failure here is not a fatal
		// extraction error, but FindOrCreateEntity only fails on a real
		// storage error, so propagate it rather than silently discard.
		return fmt.Errorf("resolver: signal subject: %w", err)
	}
	if created {
		counters.EntitiesCreated++
	}
	active, err := r.store.ActiveFactsForSlot(ctx, tx, subjectID, si.Predicate)
	if err != nil {
		return fmt.Errorf("resolver: signal slot lookup: %w", err)
	}
	if len(active) == 0 {
		return nil // no matching slot: discard per spec step 6
	}
	for _, f := range active {
		if _, err := r.store.InsertProvenance(ctx, tx, types.ProvenanceReceipt{
			FactID:        f.ID,
			ContentItemID: contentItemID,
			Quote:         si.Quote,
			Strength:      types.StrengthDerived,
		}); err != nil {
			return fmt.Errorf("resolver: signal receipt: %w", err)
		}
		touched[f.ID] = si.Subject
	}
	return nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
