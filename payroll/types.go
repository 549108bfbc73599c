/*
Package payroll turns worked shifts into weekly pay periods.

PURPOSE:
  Converts raw shift records into weekly pay periods, applies overtime rules,
  awards milestone bonuses, and tracks each contractor's progress toward
  permanent placement.

COMPONENTS (leaves first):
  RateTable          rates.go        role -> PayRate
  Aggregator         aggregator.go   shifts -> ISO week -> per contractor
  EarningsCalculator earnings.go     shifts -> rounded money total
  BonusEngine        bonus.go        assignment counter -> milestone bonus
  PlacementTracker   placement.go    lifetime assignments + institutions
  Orchestrator       orchestrator.go the weekly run

PIPELINE (per contractor):
  NotStarted -> Aggregated -> Computed -> BonusesApplied -> Assembled

  Each contractor's pipeline is independent: a bad rate or a bad shift fails
  that contractor only and the rest of the batch continues.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkShift: one shift reported by the scheduling system
  - PayRate: what a role earns per hour
  - PayPeriod: one contractor's pay for one ISO week
  - Bonus: a milestone award
  - PlacementProgress: lifetime counters toward permanent placement

SEE ALSO:
  - generic/: Amount, TimePoint, Period, keyed counters
  - store/sqlite: Persistence
*/
package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractorID = generic.EntityID

type Role string

const (
	RoleSubstituteTeacher Role = "Substitute Teacher"
	RoleTeachingAssistant Role = "Teaching Assistant"
	RoleSpecialEducation  Role = "Special Education Aide"
)

// =============================================================================
// WORK SHIFT
// =============================================================================

type ShiftStatus string

const (
	ShiftScheduled ShiftStatus = "scheduled"
	ShiftCompleted ShiftStatus = "completed"
	ShiftCancelled ShiftStatus = "cancelled"
)

func (s ShiftStatus) Valid() bool {
	switch s {
	case ShiftScheduled, ShiftCompleted, ShiftCancelled:
		return true
	}
	return false
}

// WorkShift is one shift as reported by the scheduling collaborator.
// Once Status is completed the shift is immutable.
type WorkShift struct {
	ID           string
	ContractorID ContractorID
	Role         Role
	Date         generic.TimePoint
	Hours        decimal.Decimal
	Status       ShiftStatus
	Institution  string // optional
}

func (s WorkShift) IsCompleted() bool { return s.Status == ShiftCompleted }

// SameAs reports whether two versions of a shift carry the same data.
func (s WorkShift) SameAs(o WorkShift) bool {
	return s.ID == o.ID &&
		s.ContractorID == o.ContractorID &&
		s.Role == o.Role &&
		s.Date.Equal(o.Date) &&
		s.Hours.Equal(o.Hours) &&
		s.Status == o.Status &&
		s.Institution == o.Institution
}

// =============================================================================
// PAY RATE
// =============================================================================

type PayRate struct {
	Role               Role
	BaseHourly         decimal.Decimal // currency per hour, >= 0
	OvertimeMultiplier decimal.Decimal // >= 1
	HolidayMultiplier  decimal.Decimal // >= 1
}

// =============================================================================
// PAY PERIOD
// =============================================================================

type PeriodStatus string

const (
	PeriodPending  PeriodStatus = "pending"
	PeriodApproved PeriodStatus = "approved"
	PeriodPaid     PeriodStatus = "paid"
)

// CanTransition reports whether a period may move from s to next.
// Status only moves forward one step at a time.
func (s PeriodStatus) CanTransition(next PeriodStatus) bool {
	switch s {
	case PeriodPending:
		return next == PeriodApproved
	case PeriodApproved:
		return next == PeriodPaid
	}
	return false
}

// PayPeriod is one contractor's pay for one ISO week.
// After creation only Status and Bonuses change.
type PayPeriod struct {
	ID           string
	ContractorID ContractorID
	Start        generic.TimePoint
	End          generic.TimePoint // always Start + 6 days
	Status       PeriodStatus
	ShiftIDs     []string
	Bonuses      []Bonus
	Earnings     generic.Amount // rounded shift earnings
	BonusTotal   generic.Amount
	Total        generic.Amount // Earnings + BonusTotal
	AsOf         generic.TimePoint
	CreatedAt    time.Time
}

func (p PayPeriod) Window() generic.Period {
	return generic.Period{Start: p.Start, End: p.End}
}

// IsOpen reports whether bonuses may still be attached.
func (p PayPeriod) IsOpen() bool { return p.Status == PeriodPending }

// =============================================================================
// BONUS
// =============================================================================

type BonusType string

const BonusThirtyAssignments BonusType = "30-assignments"

type BonusStatus string

const (
	BonusEarned     BonusStatus = "earned"
	BonusProcessing BonusStatus = "processing"
	BonusPaid       BonusStatus = "paid"
)

type Bonus struct {
	ID           string
	ContractorID ContractorID
	Type         BonusType
	Amount       generic.Amount
	AwardedAt    generic.TimePoint
	Status       BonusStatus
	PeriodID     string // empty until attached to a pay period
}

// =============================================================================
// PLACEMENT PROGRESS
// =============================================================================

type PlacementStatus string

const (
	PlacementActive          PlacementStatus = "active"
	PlacementInConsideration PlacementStatus = "inConsideration"
	PlacementPlaced          PlacementStatus = "placed"
)

func (s PlacementStatus) rank() int {
	switch s {
	case PlacementInConsideration:
		return 1
	case PlacementPlaced:
		return 2
	}
	return 0
}

// PlacementProgress accumulates lifetime counts for one contractor.
// Counts never decrease and Status never moves backwards.
type PlacementProgress struct {
	ContractorID       ContractorID
	TotalAssignments   int
	UniqueInstitutions map[string]struct{}
	Status             PlacementStatus
	UpdatedAt          generic.TimePoint
}

func NewPlacementProgress(contractor ContractorID) PlacementProgress {
	return PlacementProgress{
		ContractorID:       contractor,
		UniqueInstitutions: make(map[string]struct{}),
		Status:             PlacementActive,
	}
}

// Institutions returns the distinct institutions, sorted.
func (p PlacementProgress) Institutions() []string {
	out := make([]string, 0, len(p.UniqueInstitutions))
	for inst := range p.UniqueInstitutions {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

// Clone deep-copies the progress so callers can't alias the institution set.
func (p PlacementProgress) Clone() PlacementProgress {
	c := p
	c.UniqueInstitutions = make(map[string]struct{}, len(p.UniqueInstitutions))
	for inst := range p.UniqueInstitutions {
		c.UniqueInstitutions[inst] = struct{}{}
	}
	return c
}

// =============================================================================
// RUN STAGES
// =============================================================================

// Stage is how far a contractor's pipeline got in a weekly run.
type Stage string

const (
	StageNotStarted     Stage = "not_started"
	StageAggregated     Stage = "aggregated"
	StageComputed       Stage = "computed"
	StageBonusesApplied Stage = "bonuses_applied"
	StageAssembled      Stage = "assembled"
)

func dollars(d decimal.Decimal) generic.Amount {
	return generic.NewAmountFromDecimal(d, generic.UnitDollars)
}

func zeroDollars() generic.Amount {
	return generic.NewAmountFromInt(0, generic.UnitDollars)
}
