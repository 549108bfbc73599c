package payroll

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// BONUS RULE
// =============================================================================

// BonusRule configures the milestone bonus.
type BonusRule struct {
	Type      BonusType
	Threshold int
	Amount    decimal.Decimal
}

// DefaultBonusRule awards 100 after 30 completed assignments.
func DefaultBonusRule() BonusRule {
	return BonusRule{
		Type:      BonusThirtyAssignments,
		Threshold: 30,
		Amount:    decimal.NewFromInt(100),
	}
}

func (r BonusRule) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("bonus type is required")
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("bonus threshold must be positive, got %d", r.Threshold)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("bonus amount must not be negative, got %s", r.Amount)
	}
	return nil
}

// =============================================================================
// BONUS ENGINE
// =============================================================================

// BonusEngine owns the per-contractor assignment counter.
//
// The counter is only reachable through the engine. Evaluate resets it in
// the same critical section that detects the crossing, so each crossing
// yields exactly one bonus and a repeated Evaluate yields nothing.
type BonusEngine struct {
	rule     BonusRule
	counters *generic.KeyedCounter[ContractorID]
}

func NewBonusEngine(rule BonusRule) *BonusEngine {
	return &BonusEngine{
		rule:     rule,
		counters: generic.NewKeyedCounter[ContractorID](),
	}
}

func (e *BonusEngine) Rule() BonusRule { return e.rule }

// RecordCompletion counts one completed assignment and returns the new count.
func (e *BonusEngine) RecordCompletion(contractor ContractorID) int {
	return e.counters.Add(contractor, 1)
}

// Count returns the contractor's current counter.
func (e *BonusEngine) Count(contractor ContractorID) int {
	return e.counters.Get(contractor)
}

// Evaluate emits an earned bonus and resets the counter when the threshold
// is reached; otherwise it returns nil.
func (e *BonusEngine) Evaluate(contractor ContractorID, asOf generic.TimePoint) *Bonus {
	if !e.counters.TakeThreshold(contractor, e.rule.Threshold) {
		return nil
	}
	return &Bonus{
		ID:           uuid.NewString(),
		ContractorID: contractor,
		Type:         e.rule.Type,
		Amount:       dollars(e.rule.Amount),
		AwardedAt:    asOf,
		Status:       BonusEarned,
	}
}

// Snapshot returns the counter value for persistence or rollback.
func (e *BonusEngine) Snapshot(contractor ContractorID) int {
	return e.counters.Get(contractor)
}

// Restore puts back a counter value captured with Snapshot.
func (e *BonusEngine) Restore(contractor ContractorID, n int) {
	e.counters.Set(contractor, n)
}

// Load seeds counters from persisted state.
func (e *BonusEngine) Load(counters map[ContractorID]int) {
	for c, n := range counters {
		e.counters.Set(c, n)
	}
}

// ProcessBonuses moves bonuses to processing and attaches each one to the
// single open period of its contractor.
//
// openPeriods must hold the open periods produced by the current run. A
// contractor with none gets a NoOpenPeriodError; more than one is ambiguous
// and rejected with ErrMultipleOpenPeriods. Errors are per contractor and
// do not stop the other attachments.
func (e *BonusEngine) ProcessBonuses(bonuses []Bonus, openPeriods []PayPeriod) ([]Bonus, map[ContractorID]error) {
	byContractor := make(map[ContractorID][]PayPeriod)
	for _, p := range openPeriods {
		if p.IsOpen() {
			byContractor[p.ContractorID] = append(byContractor[p.ContractorID], p)
		}
	}

	var processed []Bonus
	failures := make(map[ContractorID]error)
	for _, b := range bonuses {
		if b.Status != BonusEarned {
			continue
		}
		periods := byContractor[b.ContractorID]
		switch len(periods) {
		case 0:
			failures[b.ContractorID] = &NoOpenPeriodError{ContractorID: b.ContractorID, BonusID: b.ID}
			continue
		case 1:
		default:
			failures[b.ContractorID] = fmt.Errorf("%w: contractor %s has %d", ErrMultipleOpenPeriods, b.ContractorID, len(periods))
			continue
		}
		b.Status = BonusProcessing
		b.PeriodID = periods[0].ID
		processed = append(processed, b)
	}
	return processed, failures
}
