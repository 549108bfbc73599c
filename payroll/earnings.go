/*
earnings.go - Shift earnings with overtime and holiday pay

PURPOSE:
  Converts one contractor's completed shifts for a week into money.

ALGORITHM (per shift):
  1. Resolve the rate for the shift's role. A miss aborts the contractor
     with ErrRateUnavailable; nothing is silently zeroed.
  2. rate = base hourly, times the holiday multiplier on holidays.
  3. Pay according to the overtime mode:

     OvertimeStacked (default):
       regular  = hours * rate
       overtime = max(hours - threshold, 0) * rate * overtimeMultiplier
       Hours above the threshold are paid at (1 + multiplier) x rate.

     OvertimePremiumOnly:
       regular  = min(hours, threshold) * rate
       overtime = max(hours - threshold, 0) * rate * overtimeMultiplier

  4. Sum all shifts, then round half-to-even to cents.

  Stacked is the long-standing payroll behavior and stays the default; it
  is selected explicitly through payroll.overtime_mode in config.

EXAMPLE (stacked, threshold 8, $20/h, 1.5x):
  9h shift -> regular 180 + overtime 30 = 210

SEE ALSO:
  - rates.go: RateResolver
  - orchestrator.go: Calls ComputeEarnings once per contractor per week
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// OvertimeMode selects how hours above the daily threshold are paid.
type OvertimeMode string

const (
	OvertimeStacked     OvertimeMode = "stacked"
	OvertimePremiumOnly OvertimeMode = "premium_only"
)

func (m OvertimeMode) Valid() bool {
	return m == OvertimeStacked || m == OvertimePremiumOnly
}

// DefaultDailyOvertimeHours is the per-shift overtime threshold.
const DefaultDailyOvertimeHours = 8

// EarningLine is the pay for one shift before rounding.
type EarningLine struct {
	ShiftID   string
	Role      Role
	Hours     decimal.Decimal
	Rate      decimal.Decimal // effective hourly rate after holiday multiplier
	Regular   generic.Amount
	Overtime  generic.Amount
	IsHoliday bool
}

func (l EarningLine) Total() generic.Amount { return l.Regular.Add(l.Overtime) }

// Earnings is a contractor's pay for a set of shifts.
type Earnings struct {
	ContractorID ContractorID
	Lines        []EarningLine
	Regular      generic.Amount
	Overtime     generic.Amount
	Total        generic.Amount // rounded to cents
}

// EarningsCalculator applies rates and overtime rules.
type EarningsCalculator struct {
	Rates          RateResolver
	Mode           OvertimeMode
	DailyThreshold decimal.Decimal
	Holidays       generic.HolidayCalendar
}

// NewEarningsCalculator uses stacked overtime above 8 hours and no holidays.
func NewEarningsCalculator(rates RateResolver) *EarningsCalculator {
	return &EarningsCalculator{
		Rates:          rates,
		Mode:           OvertimeStacked,
		DailyThreshold: decimal.NewFromInt(DefaultDailyOvertimeHours),
		Holidays:       generic.DefaultHolidayCalendar{},
	}
}

// ComputeEarnings pays every completed shift of contractor. Shifts for other
// contractors or not completed are skipped.
func (c *EarningsCalculator) ComputeEarnings(contractor ContractorID, shifts []WorkShift) (Earnings, error) {
	result := Earnings{
		ContractorID: contractor,
		Regular:      zeroDollars(),
		Overtime:     zeroDollars(),
	}

	for _, s := range shifts {
		if s.ContractorID != contractor || !s.IsCompleted() {
			continue
		}
		line, err := c.shiftPay(s)
		if err != nil {
			return Earnings{}, err
		}
		result.Lines = append(result.Lines, line)
		result.Regular = result.Regular.Add(line.Regular)
		result.Overtime = result.Overtime.Add(line.Overtime)
	}

	result.Total = result.Regular.Add(result.Overtime).RoundCurrency()
	if result.Total.IsNegative() {
		return Earnings{}, fmt.Errorf("%w: negative total for %s", ErrInvalidShiftData, contractor)
	}
	return result, nil
}

func (c *EarningsCalculator) shiftPay(s WorkShift) (EarningLine, error) {
	if s.Hours.IsNegative() {
		return EarningLine{}, &InvalidShiftError{ShiftID: s.ID, Field: "hours", Reason: "must not be negative"}
	}

	rate, err := c.Rates.ResolveRate(s.Role)
	if err != nil {
		return EarningLine{}, &RateUnavailableError{
			ContractorID: s.ContractorID,
			ShiftID:      s.ID,
			Role:         s.Role,
			Cause:        err,
		}
	}

	hourly := rate.BaseHourly
	holiday := c.Holidays != nil && c.Holidays.IsHoliday(s.Date)
	if holiday {
		hourly = hourly.Mul(rate.HolidayMultiplier)
	}

	threshold := c.DailyThreshold
	overtimeHours := decimal.Zero
	if s.Hours.GreaterThan(threshold) {
		overtimeHours = s.Hours.Sub(threshold)
	}

	regularHours := s.Hours
	if c.Mode == OvertimePremiumOnly {
		regularHours = decimal.Min(s.Hours, threshold)
	}

	return EarningLine{
		ShiftID:   s.ID,
		Role:      s.Role,
		Hours:     s.Hours,
		Rate:      hourly,
		Regular:   dollars(regularHours.Mul(hourly)),
		Overtime:  dollars(overtimeHours.Mul(hourly).Mul(rate.OvertimeMultiplier)),
		IsHoliday: holiday,
	}, nil
}
