/*
Package report renders pay periods as spreadsheets for finance.

SHEETS:
  Pay Periods  one row per contractor period: id, contractor, week, status,
               shift count, earnings, bonuses, total
  Bonuses      one row per bonus attached to those periods

Money cells carry the rounded cent value with a "#,##0.00" number format,
so spreadsheet sums match the engine's totals.

SEE ALSO:
  - api/handlers.go: GET /api/periods/export
  - cmd/payroll: export command
*/
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

const (
	PeriodsSheet = "Pay Periods"
	BonusesSheet = "Bonuses"
)

var (
	periodHeader = []string{"Period ID", "Contractor", "Week Start", "Week End", "Status", "Shifts", "Earnings", "Bonuses", "Total"}
	bonusHeader  = []string{"Bonus ID", "Contractor", "Period ID", "Type", "Awarded", "Status", "Amount"}
)

// Filename is the suggested download name for a week's export.
func Filename(week generic.Period) string {
	return fmt.Sprintf("payroll_%s.xlsx", week.Start)
}

// WritePeriods writes an xlsx workbook for periods to w. Rows are ordered by
// contractor, then week.
func WritePeriods(w io.Writer, periods []payroll.PayPeriod) error {
	sorted := make([]payroll.PayPeriod, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ContractorID != sorted[j].ContractorID {
			return sorted[i].ContractorID < sorted[j].ContractorID
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(PeriodsSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(BonusesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	moneyStyle, _ := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("#,##0.00")})

	writeHeader(f, PeriodsSheet, periodHeader, headerStyle)
	writeHeader(f, BonusesSheet, bonusHeader, headerStyle)

	f.SetColWidth(PeriodsSheet, "A", "A", 38)
	f.SetColWidth(PeriodsSheet, "B", "B", 18)
	f.SetColWidth(PeriodsSheet, "C", "I", 13)
	f.SetColWidth(BonusesSheet, "A", "C", 38)
	f.SetColWidth(BonusesSheet, "D", "G", 15)

	row, bonusRow := 2, 2
	for _, p := range sorted {
		f.SetCellValue(PeriodsSheet, cell("A", row), p.ID)
		f.SetCellValue(PeriodsSheet, cell("B", row), string(p.ContractorID))
		f.SetCellValue(PeriodsSheet, cell("C", row), p.Start.String())
		f.SetCellValue(PeriodsSheet, cell("D", row), p.End.String())
		f.SetCellValue(PeriodsSheet, cell("E", row), string(p.Status))
		f.SetCellValue(PeriodsSheet, cell("F", row), len(p.ShiftIDs))
		f.SetCellValue(PeriodsSheet, cell("G", row), money(p.Earnings))
		f.SetCellValue(PeriodsSheet, cell("H", row), money(p.BonusTotal))
		f.SetCellValue(PeriodsSheet, cell("I", row), money(p.Total))
		row++

		for _, b := range p.Bonuses {
			f.SetCellValue(BonusesSheet, cell("A", bonusRow), b.ID)
			f.SetCellValue(BonusesSheet, cell("B", bonusRow), string(b.ContractorID))
			f.SetCellValue(BonusesSheet, cell("C", bonusRow), p.ID)
			f.SetCellValue(BonusesSheet, cell("D", bonusRow), string(b.Type))
			f.SetCellValue(BonusesSheet, cell("E", bonusRow), b.AwardedAt.String())
			f.SetCellValue(BonusesSheet, cell("F", bonusRow), string(b.Status))
			f.SetCellValue(BonusesSheet, cell("G", bonusRow), money(b.Amount))
			bonusRow++
		}
	}

	if row > 2 {
		f.SetCellStyle(PeriodsSheet, "G2", cell("I", row-1), moneyStyle)
	}
	if bonusRow > 2 {
		f.SetCellStyle(BonusesSheet, "G2", cell("G", bonusRow-1), moneyStyle)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) {
	for i, h := range header {
		name, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, name, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	f.SetCellStyle(sheet, "A1", last, style)
}

func money(a generic.Amount) float64 {
	return a.RoundCurrency().Value.InexactFloat64()
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func strPtr(s string) *string { return &s }
