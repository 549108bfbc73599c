package payroll_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func usd(s string) generic.Amount {
	return generic.NewAmountFromDecimal(decimal.RequireFromString(s), generic.UnitDollars)
}

func assertMoney(t *testing.T, want string, got generic.Amount) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got.Value), "want %s, got %s", want, got.Value)
}

func testRates() *payroll.RateTable {
	return payroll.MustRateTable(
		payroll.NewPayRate(payroll.RoleSubstituteTeacher, 25, 1.5, 2),
		payroll.NewPayRate(payroll.RoleTeachingAssistant, 20, 1.5, 1.5),
	)
}

var shiftSeq int

func shift(contractor string, role payroll.Role, on generic.TimePoint, hours float64) payroll.WorkShift {
	shiftSeq++
	return payroll.WorkShift{
		ID:           fmt.Sprintf("shift-%04d", shiftSeq),
		ContractorID: payroll.ContractorID(contractor),
		Role:         role,
		Date:         on,
		Hours:        decimal.NewFromFloat(hours),
		Status:       payroll.ShiftCompleted,
	}
}

func at(s payroll.WorkShift, institution string) payroll.WorkShift {
	s.Institution = institution
	return s
}

func withStatus(s payroll.WorkShift, status payroll.ShiftStatus) payroll.WorkShift {
	s.Status = status
	return s
}

type fixture struct {
	store     *memory.Memory
	calc      *payroll.EarningsCalculator
	bonuses   *payroll.BonusEngine
	placement *payroll.PlacementTracker
	orch      *payroll.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewMemory()
	f := &fixture{
		store:     store,
		calc:      payroll.NewEarningsCalculator(testRates()),
		bonuses:   payroll.NewBonusEngine(payroll.DefaultBonusRule()),
		placement: payroll.NewPlacementTracker(payroll.DefaultEligibilityCriteria(), store),
	}
	f.orch = payroll.NewOrchestrator(store, f.calc, f.bonuses, f.placement, payroll.Options{
		Workers: 3,
		Logger:  zaptest.NewLogger(t),
	})
	return f
}

func (f *fixture) save(t *testing.T, shifts ...payroll.WorkShift) {
	t.Helper()
	for _, s := range shifts {
		require.NoError(t, f.store.SaveShift(context.Background(), s))
	}
}
