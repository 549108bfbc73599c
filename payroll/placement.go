package payroll

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// ELIGIBILITY
// =============================================================================

// EligibilityCriteria decides when a contractor is considered for placement.
// All three conditions must hold.
type EligibilityCriteria struct {
	MinAssignments   int
	MinInstitutions  int
	MinFeedbackScore float64
}

func DefaultEligibilityCriteria() EligibilityCriteria {
	return EligibilityCriteria{
		MinAssignments:   30,
		MinInstitutions:  3,
		MinFeedbackScore: 4.0,
	}
}

func (c EligibilityCriteria) Eligible(p PlacementProgress, feedback float64) bool {
	return p.TotalAssignments >= c.MinAssignments &&
		len(p.UniqueInstitutions) >= c.MinInstitutions &&
		feedback >= c.MinFeedbackScore
}

// FeedbackSource supplies a contractor's average review score.
// ok is false when the contractor has no reviews yet.
type FeedbackSource interface {
	FeedbackScore(ctx context.Context, contractor ContractorID) (score float64, ok bool, err error)
}

// =============================================================================
// PLACEMENT TRACKER
// =============================================================================

type progressEntry struct {
	mu       sync.Mutex
	progress PlacementProgress
}

// PlacementTracker owns every contractor's PlacementProgress.
// Different contractors never share a lock.
type PlacementTracker struct {
	criteria EligibilityCriteria
	feedback FeedbackSource

	mu      sync.RWMutex
	entries map[ContractorID]*progressEntry
}

func NewPlacementTracker(criteria EligibilityCriteria, feedback FeedbackSource) *PlacementTracker {
	return &PlacementTracker{
		criteria: criteria,
		feedback: feedback,
		entries:  make(map[ContractorID]*progressEntry),
	}
}

func (t *PlacementTracker) Criteria() EligibilityCriteria { return t.criteria }

func (t *PlacementTracker) entry(contractor ContractorID) *progressEntry {
	t.mu.RLock()
	e, ok := t.entries[contractor]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[contractor]; ok {
		return e
	}
	e = &progressEntry{progress: NewPlacementProgress(contractor)}
	t.entries[contractor] = e
	return e
}

// UpdateProgress folds newly completed shifts into the contractor's progress
// and advances active -> inConsideration once eligible.
//
// Callers pass only shifts not folded in before; the tracker does not
// de-duplicate assignments. Shifts that aren't completed or belong to
// another contractor are ignored.
func (t *PlacementTracker) UpdateProgress(ctx context.Context, contractor ContractorID, newlyCompleted []WorkShift, asOf generic.TimePoint) (PlacementProgress, error) {
	e := t.entry(contractor)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.progress.Clone()
	for _, s := range newlyCompleted {
		if s.ContractorID != contractor || !s.IsCompleted() {
			continue
		}
		next.TotalAssignments++
		if s.Institution != "" {
			next.UniqueInstitutions[s.Institution] = struct{}{}
		}
	}
	next.UpdatedAt = asOf

	if next.Status == PlacementActive {
		score, err := t.feedbackScore(ctx, contractor)
		if err != nil {
			return e.progress.Clone(), fmt.Errorf("feedback score for %s: %w", contractor, err)
		}
		if t.criteria.Eligible(next, score) {
			next.Status = PlacementInConsideration
		}
	}

	e.progress = next
	return next.Clone(), nil
}

func (t *PlacementTracker) feedbackScore(ctx context.Context, contractor ContractorID) (float64, error) {
	if t.feedback == nil {
		return 0, nil
	}
	score, ok, err := t.feedback.FeedbackScore(ctx, contractor)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return score, nil
}

// MarkPlaced records an external placement confirmation.
// Only inConsideration contractors can be placed.
func (t *PlacementTracker) MarkPlaced(contractor ContractorID, asOf generic.TimePoint) (PlacementProgress, error) {
	e := t.entry(contractor)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.progress.Status != PlacementInConsideration {
		return e.progress.Clone(), fmt.Errorf("%w: placement %s -> %s", ErrInvalidTransition, e.progress.Status, PlacementPlaced)
	}
	e.progress.Status = PlacementPlaced
	e.progress.UpdatedAt = asOf
	return e.progress.Clone(), nil
}

// Progress returns a copy of the contractor's progress.
func (t *PlacementTracker) Progress(contractor ContractorID) PlacementProgress {
	e := t.entry(contractor)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.Clone()
}

// Restore replaces the contractor's progress, e.g. after a failed save.
// Unlike UpdateProgress it may move counts backwards; use it only to undo.
func (t *PlacementTracker) Restore(p PlacementProgress) {
	e := t.entry(p.ContractorID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.UniqueInstitutions == nil {
		p.UniqueInstitutions = make(map[string]struct{})
	}
	e.progress = p.Clone()
}

// Load seeds progress from persisted state.
func (t *PlacementTracker) Load(progress []PlacementProgress) {
	for _, p := range progress {
		t.Restore(p)
	}
}

// advanced reports whether status moved forward between two snapshots.
func advanced(before, after PlacementStatus) bool {
	return after.rank() > before.rank()
}
