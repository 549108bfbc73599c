package payroll

import (
	"sort"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SHIFT AGGREGATOR
// =============================================================================

// WeeklyShiftsFor returns the ISO week containing date and the completed
// shifts of pool that fall inside it, ordered by date then id.
func WeeklyShiftsFor(date generic.TimePoint, pool []WorkShift) (generic.Period, []WorkShift) {
	week := generic.WeekOf(date)
	var out []WorkShift
	for _, s := range pool {
		if !s.IsCompleted() || !week.Contains(s.Date) {
			continue
		}
		out = append(out, s)
	}
	sortShifts(out)
	return week, out
}

// GroupByContractor splits shifts by contractor, keeping input order.
func GroupByContractor(shifts []WorkShift) map[ContractorID][]WorkShift {
	groups := make(map[ContractorID][]WorkShift)
	for _, s := range shifts {
		groups[s.ContractorID] = append(groups[s.ContractorID], s)
	}
	return groups
}

// Contractors returns the keys of a grouping in a stable order.
func Contractors(groups map[ContractorID][]WorkShift) []ContractorID {
	ids := make([]ContractorID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ValidateShift rejects shifts that can't be aggregated.
func ValidateShift(s WorkShift) error {
	switch {
	case s.ID == "":
		return &InvalidShiftError{ShiftID: s.ID, Field: "id", Reason: "is required"}
	case s.ContractorID == "":
		return &InvalidShiftError{ShiftID: s.ID, Field: "contractor_id", Reason: "is required"}
	case s.Role == "":
		return &InvalidShiftError{ShiftID: s.ID, Field: "role", Reason: "is required"}
	case s.Date.IsZero():
		return &InvalidShiftError{ShiftID: s.ID, Field: "date", Reason: "is required"}
	case s.Hours.IsNegative():
		return &InvalidShiftError{ShiftID: s.ID, Field: "hours", Reason: "must not be negative"}
	case !s.Status.Valid():
		return &InvalidShiftError{ShiftID: s.ID, Field: "status", Reason: "must be scheduled, completed or cancelled"}
	}
	return nil
}

func sortShifts(shifts []WorkShift) {
	sort.SliceStable(shifts, func(i, j int) bool {
		if !shifts[i].Date.Equal(shifts[j].Date) {
			return shifts[i].Date.Before(shifts[j].Date)
		}
		return shifts[i].ID < shifts[j].ID
	})
}
