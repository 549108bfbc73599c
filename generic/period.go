package generic

// =============================================================================
// PERIOD - The window payroll is aggregated over
// =============================================================================

// Period is an inclusive date window [Start, End].
//
// Payroll uses one kind of period: the ISO week, Monday through Sunday.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// WeekOf returns the ISO week containing date.
// Any two dates of the same ISO week return identical periods.
func WeekOf(date TimePoint) Period {
	start := StartOfISOWeek(date)
	return Period{Start: start, End: start.AddDays(6)}
}

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PreviousPeriod returns the period before this one
func (p Period) PreviousPeriod() Period {
	duration := DaysBetween(p.Start, p.End)
	newEnd := p.Start.AddDays(-1)
	return Period{Start: newEnd.AddDays(-duration), End: newEnd}
}
