/*
Package factory converts rate table files into payroll rate resolvers.

PURPOSE:
  Pay rates and paid holidays change more often than code. Finance keeps
  them in a YAML or JSON file; the factory validates the file and builds a
  payroll.RateTable plus the holiday calendar the earnings calculator uses.

FILE SCHEMA (YAML shown; JSON uses the same keys):
  rates:
    - role: Substitute Teacher
      base_hourly: 25.00
      overtime_multiplier: 1.5
      holiday_multiplier: 2
    - role: Teaching Assistant
      base_hourly: 20.00
      overtime_multiplier: 1.5
  holidays:
    - date: 2025-12-25
      name: Christmas Day
      recurring: true

DEFAULTS:
  - overtime_multiplier and holiday_multiplier default to 1 when omitted
  - a role listed twice is rejected (ambiguous rate)

USAGE:
  f := factory.NewRateFactory()
  cfg, err := f.LoadFile("rates.yaml")
  calc := payroll.NewEarningsCalculator(cfg.Rates)
  calc.Holidays = cfg.Holidays

SEE ALSO:
  - payroll/rates.go: RateTable and validation
  - config/config.go: Inline rates and rates_file
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// RateFile is the on-disk representation of a rate table.
type RateFile struct {
	Rates    []RateEntry    `json:"rates" yaml:"rates"`
	Holidays []HolidayEntry `json:"holidays,omitempty" yaml:"holidays,omitempty"`
}

// RateEntry is one role's rate. Money is decoded as decimal, never float.
type RateEntry struct {
	Role               string          `json:"role" yaml:"role"`
	BaseHourly         decimal.Decimal `json:"base_hourly" yaml:"base_hourly"`
	OvertimeMultiplier decimal.Decimal `json:"overtime_multiplier,omitempty" yaml:"overtime_multiplier,omitempty"`
	HolidayMultiplier  decimal.Decimal `json:"holiday_multiplier,omitempty" yaml:"holiday_multiplier,omitempty"`
}

// HolidayEntry is a paid holiday. Date is YYYY-MM-DD.
type HolidayEntry struct {
	Date      string `json:"date" yaml:"date" mapstructure:"date"`
	Name      string `json:"name" yaml:"name" mapstructure:"name"`
	Recurring bool   `json:"recurring,omitempty" yaml:"recurring,omitempty" mapstructure:"recurring"`
}

// RateConfig is a parsed rate file, ready for the earnings calculator.
type RateConfig struct {
	Rates    *payroll.RateTable
	Holidays *generic.StaticHolidayCalendar
}

// =============================================================================
// RATE FACTORY
// =============================================================================

// RateFactory converts rate files to payroll types.
type RateFactory struct{}

func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// LoadFile reads path and parses it as JSON (.json) or YAML (anything else).
func (f *RateFactory) LoadFile(path string) (*RateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return f.ParseJSON(data)
	}
	return f.ParseYAML(data)
}

// ParseJSON parses a JSON rate file.
func (f *RateFactory) ParseJSON(data []byte) (*RateConfig, error) {
	var rf RateFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rate JSON: %w", err)
	}
	return f.FromFile(rf)
}

// ParseYAML parses a YAML rate file.
func (f *RateFactory) ParseYAML(data []byte) (*RateConfig, error) {
	var rf RateFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rate YAML: %w", err)
	}
	return f.FromFile(rf)
}

// FromFile validates rf and builds the rate table and holiday calendar.
func (f *RateFactory) FromFile(rf RateFile) (*RateConfig, error) {
	if len(rf.Rates) == 0 {
		return nil, fmt.Errorf("%w: rate file has no rates", payroll.ErrInvalidRate)
	}

	seen := make(map[string]bool, len(rf.Rates))
	rates := make([]payroll.PayRate, 0, len(rf.Rates))
	for _, e := range rf.Rates {
		if seen[e.Role] {
			return nil, fmt.Errorf("%w: role %q listed twice", payroll.ErrInvalidRate, e.Role)
		}
		seen[e.Role] = true
		rates = append(rates, e.PayRate())
	}

	table, err := payroll.NewRateTable(rates...)
	if err != nil {
		return nil, err
	}

	holidays, err := ParseHolidays(rf.Holidays)
	if err != nil {
		return nil, err
	}
	return &RateConfig{Rates: table, Holidays: holidays}, nil
}

// ToFile converts a rate table back to its file form.
func (f *RateFactory) ToFile(table *payroll.RateTable, holidays *generic.StaticHolidayCalendar) RateFile {
	var rf RateFile
	for _, r := range table.Rates() {
		rf.Rates = append(rf.Rates, RateEntry{
			Role:               string(r.Role),
			BaseHourly:         r.BaseHourly,
			OvertimeMultiplier: r.OvertimeMultiplier,
			HolidayMultiplier:  r.HolidayMultiplier,
		})
	}
	if holidays != nil {
		for _, h := range holidays.Holidays {
			rf.Holidays = append(rf.Holidays, HolidayEntry{
				Date:      h.Date.String(),
				Name:      h.Name,
				Recurring: h.Recurring,
			})
		}
	}
	return rf
}

// PayRate applies multiplier defaults.
func (e RateEntry) PayRate() payroll.PayRate {
	r := payroll.PayRate{
		Role:               payroll.Role(e.Role),
		BaseHourly:         e.BaseHourly,
		OvertimeMultiplier: e.OvertimeMultiplier,
		HolidayMultiplier:  e.HolidayMultiplier,
	}
	if r.OvertimeMultiplier.IsZero() {
		r.OvertimeMultiplier = decimal.NewFromInt(1)
	}
	if r.HolidayMultiplier.IsZero() {
		r.HolidayMultiplier = decimal.NewFromInt(1)
	}
	return r
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// ParseHolidays converts holiday entries into a calendar.
func ParseHolidays(entries []HolidayEntry) (*generic.StaticHolidayCalendar, error) {
	holidays := make([]generic.Holiday, 0, len(entries))
	for _, e := range entries {
		date, err := generic.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: invalid date %q: %w", e.Name, e.Date, err)
		}
		holidays = append(holidays, generic.Holiday{Date: date, Name: e.Name, Recurring: e.Recurring})
	}
	return generic.NewStaticHolidayCalendar(holidays...), nil
}
