// Package sweeper implements the time-budgeted maintenance pass that
// expires stale facts, reaps orphaned provenance, prunes old content, and
// truncates the WAL. Each phase commits its own transaction so budget
// exhaustion between phases leaves the database consistent, mirroring the
// teacher's phase-at-a-time decision sweeper.
package sweeper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/recallgraph/recall/internal/storage"
)

var (
	tracer = otel.Tracer("github.com/recallgraph/recall/internal/sweeper")
	meter  = otel.Meter("github.com/recallgraph/recall/internal/sweeper")
)

// Stats is the result of one Run, matching the spec's sweeper stats record.
type Stats struct {
	ProposedFactsExpired      int     `json:"proposed_facts_expired"`
	DisputedFactsExpired      int     `json:"disputed_facts_expired"`
	OrphanedProvenanceDeleted int     `json:"orphaned_provenance_deleted"`
	OldContentPruned          int     `json:"old_content_pruned"`
	ElapsedSeconds            float64 `json:"elapsed_seconds"`
	BudgetHonored             bool    `json:"budget_honored"`
}

// Config bounds one sweep: a wall-clock budget and the three retention
// horizons.
type Config struct {
	BudgetSeconds float64
	ProposedTTL   time.Duration
	DisputedTTL   time.Duration
	ContentTTL    time.Duration
}

// Sweeper runs maintenance passes over one store.
type Sweeper struct {
	store storage.Store

	proposedExpiredCounter  metric.Int64Counter
	disputedExpiredCounter  metric.Int64Counter
	provenanceOrphanCounter metric.Int64Counter
	contentPrunedCounter    metric.Int64Counter
}

// New constructs a Sweeper bound to one store.
func New(store storage.Store) *Sweeper {
	s := &Sweeper{store: store}
	s.proposedExpiredCounter, _ = meter.Int64Counter("sweeper.proposed_expired")
	s.disputedExpiredCounter, _ = meter.Int64Counter("sweeper.disputed_expired")
	s.provenanceOrphanCounter, _ = meter.Int64Counter("sweeper.provenance_orphaned")
	s.contentPrunedCounter, _ = meter.Int64Counter("sweeper.content_pruned")
	return s
}

// phase runs one maintenance step inside its own transaction, returning
// how many rows it affected. Any error rolls back that phase only; prior
// committed phases stand.
func (s *Sweeper) phase(ctx context.Context, run func(ctx context.Context, tx storage.Tx) (int, error)) (int, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := run(ctx, tx)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// Run executes every phase in order, stopping early (with
// BudgetHonored=false) if the wall-clock budget is exhausted between
// phases. A budget of zero returns immediately with all counters zero and
// BudgetHonored=true, per the spec's boundary behavior.
func (s *Sweeper) Run(ctx context.Context, cfg Config) (Stats, error) {
	ctx, span := tracer.Start(ctx, "sweeper.Run")
	defer span.End()

	start := time.Now()
	var stats Stats

	if cfg.BudgetSeconds <= 0 {
		stats.BudgetHonored = true
		return stats, nil
	}

	deadline := func() bool { return time.Since(start).Seconds() >= cfg.BudgetSeconds }
	now := time.Now()

	// Phase 1: expire aged proposed facts.
	n, err := s.phase(ctx, func(ctx context.Context, tx storage.Tx) (int, error) {
		return s.store.ExpireProposedOlderThan(ctx, tx, now.Add(-cfg.ProposedTTL).Unix())
	})
	if err != nil {
		return stats, err
	}
	stats.ProposedFactsExpired = n
	s.proposedExpiredCounter.Add(ctx, int64(n))
	if deadline() {
		stats.ElapsedSeconds = time.Since(start).Seconds()
		stats.BudgetHonored = false
		return stats, nil
	}

	// Phase 2: expire aged disputed facts.
	n, err = s.phase(ctx, func(ctx context.Context, tx storage.Tx) (int, error) {
		return s.store.ExpireDisputedOlderThan(ctx, tx, now.Add(-cfg.DisputedTTL).Unix())
	})
	if err != nil {
		return stats, err
	}
	stats.DisputedFactsExpired = n
	s.disputedExpiredCounter.Add(ctx, int64(n))
	if deadline() {
		stats.ElapsedSeconds = time.Since(start).Seconds()
		stats.BudgetHonored = false
		return stats, nil
	}

	// Phase 3: reap orphaned provenance.
	n, err = s.phase(ctx, func(ctx context.Context, tx storage.Tx) (int, error) {
		return s.store.DeleteOrphanedProvenance(ctx, tx)
	})
	if err != nil {
		return stats, err
	}
	stats.OrphanedProvenanceDeleted = n
	s.provenanceOrphanCounter.Add(ctx, int64(n))
	if deadline() {
		stats.ElapsedSeconds = time.Since(start).Seconds()
		stats.BudgetHonored = false
		return stats, nil
	}

	// Phase 4: prune old content with no remaining provenance.
	n, err = s.phase(ctx, func(ctx context.Context, tx storage.Tx) (int, error) {
		return s.store.PruneContentOlderThan(ctx, tx, now.Add(-cfg.ContentTTL).Unix())
	})
	if err != nil {
		return stats, err
	}
	stats.OldContentPruned = n
	s.contentPrunedCounter.Add(ctx, int64(n))
	if deadline() {
		stats.ElapsedSeconds = time.Since(start).Seconds()
		stats.BudgetHonored = false
		return stats, nil
	}

	// Phase 5: truncate WAL.
	if err := s.store.Checkpoint(ctx); err != nil {
		return stats, err
	}

	stats.ElapsedSeconds = time.Since(start).Seconds()
	stats.BudgetHonored = true
	return stats, nil
}
