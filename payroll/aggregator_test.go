package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestWeeklyShiftsFor_SameWeekForEveryDay(t *testing.T) {
	// GIVEN: Every day of the week of Monday 2025-03-10
	for d := 10; d <= 16; d++ {
		// WHEN: Deriving the window
		week, _ := payroll.WeeklyShiftsFor(date(2025, time.March, d), nil)

		// THEN: Always Monday 10 through Sunday 16
		assert.True(t, week.Start.Equal(date(2025, time.March, 10)), "day %d", d)
		assert.True(t, week.End.Equal(date(2025, time.March, 16)), "day %d", d)
	}
}

func TestWeeklyShiftsFor_WeekCrossesYearBoundary(t *testing.T) {
	week, _ := payroll.WeeklyShiftsFor(date(2026, time.January, 1), nil)

	assert.Equal(t, "2025-12-29", week.Start.String())
	assert.Equal(t, "2026-01-04", week.End.String())
}

func TestWeeklyShiftsFor_FiltersByWindowAndStatus(t *testing.T) {
	// GIVEN: Shifts inside, before and after the week, plus non-completed ones
	inside := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 16), 8)
	monday := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8)
	pool := []payroll.WorkShift{
		inside,
		shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 9), 8),
		shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 17), 8),
		withStatus(shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 11), 8), payroll.ShiftScheduled),
		withStatus(shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 12), 8), payroll.ShiftCancelled),
		monday,
	}

	// WHEN: Aggregating for a Wednesday
	_, got := payroll.WeeklyShiftsFor(date(2025, time.March, 12), pool)

	// THEN: Only the two completed shifts inside the week, ordered by date
	require.Len(t, got, 2)
	assert.Equal(t, monday.ID, got[0].ID)
	assert.Equal(t, inside.ID, got[1].ID)
}

func TestGroupByContractor(t *testing.T) {
	day := date(2025, time.March, 10)
	shifts := []payroll.WorkShift{
		shift("b", payroll.RoleTeachingAssistant, day, 8),
		shift("a", payroll.RoleTeachingAssistant, day, 8),
		shift("b", payroll.RoleTeachingAssistant, day, 4),
	}

	groups := payroll.GroupByContractor(shifts)

	assert.Len(t, groups["a"], 1)
	assert.Len(t, groups["b"], 2)
	assert.Equal(t, []payroll.ContractorID{"a", "b"}, payroll.Contractors(groups))
}

func TestValidateShift(t *testing.T) {
	valid := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8)
	require.NoError(t, payroll.ValidateShift(valid))

	tests := []struct {
		name   string
		mutate func(*payroll.WorkShift)
		field  string
	}{
		{"missing id", func(s *payroll.WorkShift) { s.ID = "" }, "id"},
		{"missing contractor", func(s *payroll.WorkShift) { s.ContractorID = "" }, "contractor_id"},
		{"missing role", func(s *payroll.WorkShift) { s.Role = "" }, "role"},
		{"negative hours", func(s *payroll.WorkShift) { s.Hours = decimal.NewFromInt(-1) }, "hours"},
		{"unknown status", func(s *payroll.WorkShift) { s.Status = "done" }, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)

			err := payroll.ValidateShift(s)

			assert.ErrorIs(t, err, payroll.ErrInvalidShiftData)
			var shiftErr *payroll.InvalidShiftError
			require.ErrorAs(t, err, &shiftErr)
			assert.Equal(t, tt.field, shiftErr.Field)
		})
	}
}
