/*
Package generic provides the domain-agnostic building blocks of the payroll engine.

PURPOSE:
  This package contains types and algorithms that know nothing about shifts,
  roles or bonuses. Money, hours and counts all flow through the same
  decimal-backed Amount; weeks and other windows are Periods of TimePoints;
  per-key counters and locks let domain packages keep per-contractor state
  without contending across contractors.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., $25.00)
  - EntityID: The identity of whoever owns a piece of state
  - Rounding: Currency amounts are rounded half-to-even to minor units

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing identifiers
  3. Determinism: No function in this package reads the wall clock except Today()

USAGE:
  pay := generic.NewAmountFromDecimal(rate.Mul(hours), generic.UnitDollars)
  total := pay.Add(bonus).RoundCurrency()

SEE ALSO:
  - time.go: TimePoint and ISO week helpers
  - period.go: Period windows
  - counter.go: Keyed threshold counters
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const UnitDollars Unit = "dollars"

// CurrencyPlaces is the number of minor-unit digits money is rounded to.
const CurrencyPlaces = 2

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// ParseAmount parses a decimal string such as "25.50".
func ParseAmount(s string, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Unit: unit}, nil
}

func (a Amount) Add(b Amount) Amount { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) IsNegative() bool    { return a.Value.IsNegative() }
func (a Amount) IsZero() bool        { return a.Value.IsZero() }

// RoundCurrency rounds to CurrencyPlaces using round-half-to-even.
func (a Amount) RoundCurrency() Amount {
	return Amount{Value: a.Value.RoundBank(CurrencyPlaces), Unit: a.Unit}
}

// String renders the value with two decimals for money and as-is otherwise.
func (a Amount) String() string {
	if a.Unit == UnitDollars {
		return a.Value.StringFixedBank(CurrencyPlaces)
	}
	return a.Value.String()
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies the owner of per-entity state (counters, progress).
type EntityID string
