package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// OVERTIME BOUNDARY
// =============================================================================

func TestEarnings_EightHoursHasNoOvertime(t *testing.T) {
	// GIVEN: $20/h, 1.5x overtime, one 8-hour shift
	calc := payroll.NewEarningsCalculator(testRates())
	s := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8)

	// WHEN: Computing earnings
	e, err := calc.ComputeEarnings("c-1", []payroll.WorkShift{s})

	// THEN: 160, nothing in overtime
	require.NoError(t, err)
	assertMoney(t, "160", e.Total)
	assert.True(t, e.Overtime.IsZero())
}

func TestEarnings_NineHoursStacksOvertimePremium(t *testing.T) {
	// GIVEN: $20/h, 1.5x overtime, one 9-hour shift
	calc := payroll.NewEarningsCalculator(testRates())
	s := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 9)

	// WHEN: Computing earnings in the default stacked mode
	e, err := calc.ComputeEarnings("c-1", []payroll.WorkShift{s})

	// THEN: regular 9*20 = 180, overtime 1*20*1.5 = 30, total 210
	require.NoError(t, err)
	require.Len(t, e.Lines, 1)
	assertMoney(t, "180", e.Lines[0].Regular)
	assertMoney(t, "30", e.Lines[0].Overtime)
	assertMoney(t, "210", e.Total)
}

func TestEarnings_PremiumOnlyPaysBaseOnce(t *testing.T) {
	// GIVEN: The same 9-hour shift in premium-only mode
	calc := payroll.NewEarningsCalculator(testRates())
	calc.Mode = payroll.OvertimePremiumOnly
	s := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 9)

	// WHEN: Computing earnings
	e, err := calc.ComputeEarnings("c-1", []payroll.WorkShift{s})

	// THEN: 8*20 + 1*20*1.5 = 190
	require.NoError(t, err)
	assertMoney(t, "190", e.Total)
}

func TestEarnings_CustomDailyThreshold(t *testing.T) {
	calc := payroll.NewEarningsCalculator(testRates())
	calc.DailyThreshold = decimal.NewFromInt(10)
	s := shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 10)

	e, err := calc.ComputeEarnings("c-1", []payroll.WorkShift{s})

	require.NoError(t, err)
	assertMoney(t, "200", e.Total)
}

// =============================================================================
// SCENARIO
// =============================================================================

func TestEarnings_SubstituteTeacherWeek(t *testing.T) {
	// GIVEN: Three 8-hour shifts and one 10-hour shift at $25/h, 1.5x
	calc := payroll.NewEarningsCalculator(testRates())
	shifts := []payroll.WorkShift{
		shift("C", payroll.RoleSubstituteTeacher, date(2025, time.March, 10), 8),
		shift("C", payroll.RoleSubstituteTeacher, date(2025, time.March, 11), 8),
		shift("C", payroll.RoleSubstituteTeacher, date(2025, time.March, 12), 8),
		shift("C", payroll.RoleSubstituteTeacher, date(2025, time.March, 13), 10),
	}

	// WHEN: Computing the week
	e, err := calc.ComputeEarnings("C", shifts)

	// THEN: 34*25 + 2*25*1.5 = 850 + 75 = 925.00
	require.NoError(t, err)
	assertMoney(t, "850", e.Regular)
	assertMoney(t, "75", e.Overtime)
	assert.Equal(t, "925.00", e.Total.String())
}

// =============================================================================
// FILTERING AND ERRORS
// =============================================================================

func TestEarnings_IgnoresOtherContractorsAndIncompleteShifts(t *testing.T) {
	calc := payroll.NewEarningsCalculator(testRates())
	day := date(2025, time.March, 10)
	shifts := []payroll.WorkShift{
		shift("c-1", payroll.RoleTeachingAssistant, day, 4),
		shift("c-2", payroll.RoleTeachingAssistant, day, 8),
		withStatus(shift("c-1", payroll.RoleTeachingAssistant, day, 8), payroll.ShiftCancelled),
		withStatus(shift("c-1", payroll.RoleTeachingAssistant, day, 8), payroll.ShiftScheduled),
	}

	e, err := calc.ComputeEarnings("c-1", shifts)

	require.NoError(t, err)
	assertMoney(t, "80", e.Total)
	assert.Len(t, e.Lines, 1)
}

func TestEarnings_UnknownRoleAbortsContractor(t *testing.T) {
	// GIVEN: One shift with a role that has no rate
	calc := payroll.NewEarningsCalculator(testRates())
	shifts := []payroll.WorkShift{
		shift("c-1", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8),
		shift("c-1", "Librarian", date(2025, time.March, 11), 8),
	}

	// WHEN: Computing earnings
	_, err := calc.ComputeEarnings("c-1", shifts)

	// THEN: RateUnavailable wrapping UnknownRole, not a partial total
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrRateUnavailable)
	assert.ErrorIs(t, err, payroll.ErrUnknownRole)
	var rateErr *payroll.RateUnavailableError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, payroll.Role("Librarian"), rateErr.Role)
}

func TestEarnings_RoundsHalfToEven(t *testing.T) {
	calc := payroll.NewEarningsCalculator(payroll.MustRateTable(
		payroll.NewPayRate("Low", 0.125, 1, 1),
		payroll.NewPayRate("Lower", 0.135, 1, 1),
	))

	low, err := calc.ComputeEarnings("c-1", []payroll.WorkShift{shift("c-1", "Low", date(2025, time.March, 10), 1)})
	require.NoError(t, err)
	assert.Equal(t, "0.12", low.Total.String())

	lower, err := calc.ComputeEarnings("c-1", []payroll.WorkShift{shift("c-1", "Lower", date(2025, time.March, 10), 1)})
	require.NoError(t, err)
	assert.Equal(t, "0.14", lower.Total.String())
}

func TestEarnings_HolidayMultiplier(t *testing.T) {
	// GIVEN: A holiday calendar with March 10 and a 2x holiday multiplier
	calc := payroll.NewEarningsCalculator(testRates())
	calc.Holidays = generic.NewStaticHolidayCalendar(generic.Holiday{Date: date(2025, time.March, 10), Name: "Test Day"})

	shifts := []payroll.WorkShift{
		shift("c-1", payroll.RoleSubstituteTeacher, date(2025, time.March, 10), 9),
		shift("c-1", payroll.RoleSubstituteTeacher, date(2025, time.March, 11), 8),
	}

	// WHEN: Computing earnings
	e, err := calc.ComputeEarnings("c-1", shifts)

	// THEN: Holiday shift at $50/h: 9*50 + 1*50*1.5 = 525; regular day 200
	require.NoError(t, err)
	assert.True(t, e.Lines[0].IsHoliday)
	assert.False(t, e.Lines[1].IsHoliday)
	assertMoney(t, "725", e.Total)
}

func TestEarnings_EmptyWeekIsZero(t *testing.T) {
	calc := payroll.NewEarningsCalculator(testRates())

	e, err := calc.ComputeEarnings("c-1", nil)

	require.NoError(t, err)
	assert.True(t, e.Total.IsZero())
}

// =============================================================================
// RATE TABLE
// =============================================================================

func TestRateTable_RejectsInvalidRates(t *testing.T) {
	tests := []struct {
		name string
		rate payroll.PayRate
	}{
		{"negative base", payroll.NewPayRate("A", -1, 1.5, 1)},
		{"overtime below one", payroll.NewPayRate("A", 10, 0.5, 1)},
		{"holiday below one", payroll.NewPayRate("A", 10, 1.5, 0.9)},
		{"missing role", payroll.NewPayRate("", 10, 1.5, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payroll.NewRateTable(tt.rate)
			assert.ErrorIs(t, err, payroll.ErrInvalidRate)
		})
	}
}

func TestRateTable_ResolveUnknownRole(t *testing.T) {
	_, err := testRates().ResolveRate("Janitor")
	assert.ErrorIs(t, err, payroll.ErrUnknownRole)

	r, err := testRates().ResolveRate(payroll.RoleSubstituteTeacher)
	require.NoError(t, err)
	assert.True(t, r.BaseHourly.Equal(decimal.NewFromInt(25)))
}
