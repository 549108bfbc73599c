/*
store.go - Persistence interfaces for the payroll engine

PURPOSE:
  Defines the interface between the payroll logic and storage. The engine
  reads shifts through ShiftSource and writes each contractor's weekly
  result through a single atomic SavePeriodRun call.

KEY INTERFACES:
  ShiftSource:  Read-only shift feed (the scheduling collaborator's data)
  ShiftStore:   Shift ingest; completed shifts are immutable
  PeriodStore:  Pay periods and bonuses
  StateStore:   Bonus counters and placement progress
  Store:        Everything above plus feedback scores and the audit log

ATOMIC RUNS:
  SavePeriodRun writes the period, its bonuses, the contractor's counter and
  placement progress together. Either all are written or none are, so a
  crash can't leave a counter advanced without its period. SaveCredit does
  the same for a manual credit: counter and emitted bonuses together.

IDEMPOTENCY:
  (contractor, week start) is unique. A second SavePeriodRun for the same
  week fails with ErrPeriodExists.

IMPLEMENTATIONS:
  - store/sqlite: SQLite with versioned migrations
  - store/memory: In-memory for tests and dev
*/
package payroll

import (
	"context"

	"github.com/warp/payroll-engine/generic"
)

// ShiftSource is the read side of the shift feed.
type ShiftSource interface {
	// ShiftsInRange returns all shifts dated within [from, to], any status.
	ShiftsInRange(ctx context.Context, from, to generic.TimePoint) ([]WorkShift, error)
}

type ShiftStore interface {
	ShiftSource

	// SaveShift inserts or updates a shift. Returns ErrShiftImmutable when an
	// existing completed shift would change.
	SaveShift(ctx context.Context, s WorkShift) error

	GetShift(ctx context.Context, id string) (*WorkShift, error)
}

// PeriodFilter narrows ListPeriods. Zero fields match everything.
type PeriodFilter struct {
	ContractorID ContractorID
	WeekStart    *generic.TimePoint
	Status       PeriodStatus
}

func (f PeriodFilter) Matches(p PayPeriod) bool {
	if f.ContractorID != "" && p.ContractorID != f.ContractorID {
		return false
	}
	if f.WeekStart != nil && !p.Start.Equal(*f.WeekStart) {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

// BonusFilter narrows ListBonuses. Zero fields match everything.
type BonusFilter struct {
	ContractorID ContractorID
	Status       BonusStatus
	Unattached   bool
	From         *generic.TimePoint
	To           *generic.TimePoint
}

func (f BonusFilter) Matches(b Bonus) bool {
	if f.ContractorID != "" && b.ContractorID != f.ContractorID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Unattached && b.PeriodID != "" {
		return false
	}
	if f.From != nil && b.AwardedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && b.AwardedAt.After(*f.To) {
		return false
	}
	return true
}

// PeriodRun is everything one contractor's pipeline produced.
type PeriodRun struct {
	Period   PayPeriod // Bonuses included
	Counter  int       // bonus counter after the run
	Progress PlacementProgress
}

type PeriodStore interface {
	// SavePeriodRun persists a run atomically. ErrPeriodExists if the
	// (contractor, week) already has a period.
	SavePeriodRun(ctx context.Context, run PeriodRun) error

	// GetPeriod returns the contractor's period starting at weekStart, or nil.
	GetPeriod(ctx context.Context, contractor ContractorID, weekStart generic.TimePoint) (*PayPeriod, error)

	// GetPeriodByID returns ErrPeriodNotFound when missing.
	GetPeriodByID(ctx context.Context, id string) (*PayPeriod, error)

	ListPeriods(ctx context.Context, filter PeriodFilter) ([]PayPeriod, error)

	// UpdatePeriodStatus moves a period from one status to the next. Paying a
	// period also marks its bonuses paid.
	UpdatePeriodStatus(ctx context.Context, id string, from, to PeriodStatus) error

	// SaveBonus stores a bonus not (yet) tied to a period.
	SaveBonus(ctx context.Context, b Bonus) error

	// SaveCredit writes the contractor's counter and the unattached bonuses
	// a manual credit emitted, atomically.
	SaveCredit(ctx context.Context, contractor ContractorID, counter int, bonuses []Bonus) error

	// AttachBonus links b to periodID with b.Status. When the bonus wasn't
	// already part of that period its amount is added to the period total.
	// Only pending periods accept bonuses; any other status returns
	// generic.ErrConcurrentModification.
	AttachBonus(ctx context.Context, periodID string, b Bonus) error

	ListBonuses(ctx context.Context, filter BonusFilter) ([]Bonus, error)
}

type StateStore interface {
	SaveCounter(ctx context.Context, contractor ContractorID, n int) error
	LoadCounters(ctx context.Context) (map[ContractorID]int, error)

	SaveProgress(ctx context.Context, p PlacementProgress) error
	GetProgress(ctx context.Context, contractor ContractorID) (*PlacementProgress, error)
	LoadProgress(ctx context.Context) ([]PlacementProgress, error)
}

// FeedbackStore records review scores reported by the review system.
type FeedbackStore interface {
	FeedbackSource
	SetFeedbackScore(ctx context.Context, contractor ContractorID, score float64) error
}

// Store is the full persistence surface the engine and API need.
type Store interface {
	ShiftStore
	PeriodStore
	StateStore
	FeedbackStore
	generic.AuditLog
}
