package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

var weekStart = generic.NewTimePoint(2025, time.March, 10)

func money(s string) generic.Amount {
	return generic.NewAmountFromDecimal(decimal.RequireFromString(s), generic.UnitDollars)
}

func pendingRun(c payroll.ContractorID) payroll.PeriodRun {
	return payroll.PeriodRun{
		Period: payroll.PayPeriod{
			ID:           payroll.PeriodID(c, weekStart),
			ContractorID: c,
			Start:        weekStart,
			End:          weekStart.AddDays(6),
			Status:       payroll.PeriodPending,
			Earnings:     money("925.00"),
			BonusTotal:   money("0"),
			Total:        money("925.00"),
		},
		Counter:  4,
		Progress: payroll.NewPlacementProgress(c),
	}
}

func earned(id string, c payroll.ContractorID) payroll.Bonus {
	return payroll.Bonus{
		ID:           id,
		ContractorID: c,
		Type:         payroll.BonusThirtyAssignments,
		Amount:       money("100"),
		AwardedAt:    weekStart,
		Status:       payroll.BonusEarned,
	}
}

func TestAttachBonus_OnlyPendingPeriods(t *testing.T) {
	// GIVEN: An approved period
	m := memory.NewMemory()
	ctx := context.Background()
	run := pendingRun("C")
	require.NoError(t, m.SavePeriodRun(ctx, run))
	require.NoError(t, m.UpdatePeriodStatus(ctx, run.Period.ID, payroll.PeriodPending, payroll.PeriodApproved))

	// WHEN: Attaching a bonus
	err := m.AttachBonus(ctx, run.Period.ID, earned("b-1", "C"))

	// THEN: Rejected, total unchanged
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	p, err := m.GetPeriodByID(ctx, run.Period.ID)
	require.NoError(t, err)
	assert.Equal(t, "925.00", p.Total.String())
	assert.Empty(t, p.Bonuses)
}

func TestSaveCredit_AllOrNothing(t *testing.T) {
	m := memory.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveBonus(ctx, earned("b-1", "C")))

	// A duplicate bonus id rejects the whole credit
	err := m.SaveCredit(ctx, "C", 5, []payroll.Bonus{earned("b-2", "C"), earned("b-1", "C")})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	counters, err := m.LoadCounters(ctx)
	require.NoError(t, err)
	assert.NotContains(t, counters, payroll.ContractorID("C"))
	all, err := m.ListBonuses(ctx, payroll.BonusFilter{ContractorID: "C"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// A clean credit writes both
	require.NoError(t, m.SaveCredit(ctx, "C", 5, []payroll.Bonus{earned("b-2", "C")}))
	counters, err = m.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counters["C"])
}
