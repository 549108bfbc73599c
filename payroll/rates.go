package payroll

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE RESOLVER
// =============================================================================

// RateResolver maps a role to its pay rate. Implementations must be side
// effect free; the calculator calls it once per shift.
type RateResolver interface {
	ResolveRate(role Role) (PayRate, error)
}

// RateTable is an in-memory, read-only RateResolver.
type RateTable struct {
	rates map[Role]PayRate
}

// NewRateTable validates and indexes rates. A later entry for the same role
// replaces an earlier one.
func NewRateTable(rates ...PayRate) (*RateTable, error) {
	t := &RateTable{rates: make(map[Role]PayRate, len(rates))}
	for _, r := range rates {
		if err := ValidateRate(r); err != nil {
			return nil, err
		}
		t.rates[r.Role] = r
	}
	return t, nil
}

// MustRateTable is NewRateTable for tests and static tables.
func MustRateTable(rates ...PayRate) *RateTable {
	t, err := NewRateTable(rates...)
	if err != nil {
		panic(err)
	}
	return t
}

// ResolveRate returns the rate for role or ErrUnknownRole.
func (t *RateTable) ResolveRate(role Role) (PayRate, error) {
	r, ok := t.rates[role]
	if !ok {
		return PayRate{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return r, nil
}

// Rates returns every configured rate, ordered by role.
func (t *RateTable) Rates() []PayRate {
	out := make([]PayRate, 0, len(t.rates))
	for _, r := range t.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// NewPayRate builds a rate from float inputs; multipliers default to 1 when zero.
func NewPayRate(role Role, baseHourly, overtimeMultiplier, holidayMultiplier float64) PayRate {
	r := PayRate{
		Role:               role,
		BaseHourly:         decimal.NewFromFloat(baseHourly),
		OvertimeMultiplier: decimal.NewFromFloat(overtimeMultiplier),
		HolidayMultiplier:  decimal.NewFromFloat(holidayMultiplier),
	}
	if r.OvertimeMultiplier.IsZero() {
		r.OvertimeMultiplier = decimal.NewFromInt(1)
	}
	if r.HolidayMultiplier.IsZero() {
		r.HolidayMultiplier = decimal.NewFromInt(1)
	}
	return r
}

// ValidateRate enforces base >= 0 and multipliers >= 1.
func ValidateRate(r PayRate) error {
	one := decimal.NewFromInt(1)
	switch {
	case r.Role == "":
		return fmt.Errorf("%w: role is required", ErrInvalidRate)
	case r.BaseHourly.IsNegative():
		return fmt.Errorf("%w: %q base rate %s is negative", ErrInvalidRate, r.Role, r.BaseHourly)
	case r.OvertimeMultiplier.LessThan(one):
		return fmt.Errorf("%w: %q overtime multiplier %s is below 1", ErrInvalidRate, r.Role, r.OvertimeMultiplier)
	case r.HolidayMultiplier.LessThan(one):
		return fmt.Errorf("%w: %q holiday multiplier %s is below 1", ErrInvalidRate, r.Role, r.HolidayMultiplier)
	}
	return nil
}
