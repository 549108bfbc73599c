package payroll

import (
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownRole is returned by the rate table when a role has no rate.
	ErrUnknownRole = errors.New("unknown role")

	// ErrRateUnavailable aborts a contractor's earnings when a shift's rate
	// can't be resolved. It is never converted into a zero amount.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrNoOpenPeriod is returned when a bonus has no pending period to attach to.
	ErrNoOpenPeriod = errors.New("no open pay period")

	// ErrMultipleOpenPeriods is returned when bonus attachment would be ambiguous.
	ErrMultipleOpenPeriods = errors.New("multiple open pay periods")

	// ErrInvalidShiftData rejects shifts before aggregation.
	ErrInvalidShiftData = errors.New("invalid shift data")

	// ErrInvalidRate rejects a rate table entry.
	ErrInvalidRate = errors.New("invalid pay rate")

	// ErrShiftImmutable is returned when a completed shift would be changed.
	ErrShiftImmutable = errors.New("completed shift is immutable")

	// ErrInvalidTransition is returned for a status change that isn't allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPeriodExists is returned when a second period is saved for the same week.
	ErrPeriodExists = errors.New("pay period already exists for week")

	// ErrPeriodNotFound is returned when a referenced pay period doesn't exist.
	ErrPeriodNotFound = errors.New("pay period not found")
)

func init() {
	generic.RegisterClientError(
		ErrUnknownRole,
		ErrRateUnavailable,
		ErrNoOpenPeriod,
		ErrMultipleOpenPeriods,
		ErrInvalidShiftData,
		ErrInvalidRate,
		ErrShiftImmutable,
		ErrInvalidTransition,
		ErrPeriodExists,
	)
	generic.RegisterNotFoundError(ErrPeriodNotFound)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateUnavailableError reports which shift's rate could not be resolved.
type RateUnavailableError struct {
	ContractorID ContractorID
	ShiftID      string
	Role         Role
	Cause        error
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("rate unavailable for role %q (contractor %s, shift %s): %v",
		e.Role, e.ContractorID, e.ShiftID, e.Cause)
}

// Unwrap exposes both ErrRateUnavailable and the resolver's cause.
func (e *RateUnavailableError) Unwrap() []error {
	return []error{ErrRateUnavailable, e.Cause}
}

// InvalidShiftError describes why a shift was rejected.
type InvalidShiftError struct {
	ShiftID string
	Field   string
	Reason  string
}

func (e *InvalidShiftError) Error() string {
	return fmt.Sprintf("invalid shift %s: %s %s", e.ShiftID, e.Field, e.Reason)
}

func (e *InvalidShiftError) Unwrap() error {
	return ErrInvalidShiftData
}

// NoOpenPeriodError reports the bonus that couldn't be attached.
type NoOpenPeriodError struct {
	ContractorID ContractorID
	BonusID      string
	Week         generic.Period
}

func (e *NoOpenPeriodError) Error() string {
	return fmt.Sprintf("no open pay period for contractor %s in week %s (bonus %s)",
		e.ContractorID, e.Week, e.BonusID)
}

func (e *NoOpenPeriodError) Unwrap() error {
	return ErrNoOpenPeriod
}
