package payroll_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

var (
	weekStart = date(2025, time.March, 10)
	friday    = date(2025, time.March, 14)
)

func substituteWeek(c string) []payroll.WorkShift {
	return []payroll.WorkShift{
		shift(c, payroll.RoleSubstituteTeacher, date(2025, time.March, 10), 8),
		shift(c, payroll.RoleSubstituteTeacher, date(2025, time.March, 11), 8),
		shift(c, payroll.RoleSubstituteTeacher, date(2025, time.March, 12), 8),
		shift(c, payroll.RoleSubstituteTeacher, date(2025, time.March, 13), 10),
	}
}

// =============================================================================
// WEEKLY RUN
// =============================================================================

func TestOrchestrator_WeeklyRunAssemblesPendingPeriod(t *testing.T) {
	// GIVEN: A substitute teacher's week in the shift feed
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, substituteWeek("C")...)

	// WHEN: Running payroll on Friday
	result, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// THEN: One pending period of 925.00 for the ISO week
	require.Contains(t, result.Results, payroll.ContractorID("C"))
	res := result.Results["C"]
	require.NoError(t, res.Err)
	assert.Equal(t, payroll.StageAssembled, res.Stage)
	assert.False(t, res.Existing)

	p := res.Period
	require.NotNil(t, p)
	assert.Equal(t, payroll.PeriodID("C", weekStart), p.ID)
	assert.Equal(t, payroll.PeriodPending, p.Status)
	assert.Equal(t, "2025-03-10", p.Start.String())
	assert.Equal(t, "2025-03-16", p.End.String())
	assert.Len(t, p.ShiftIDs, 4)
	assert.Empty(t, p.Bonuses)
	assert.Equal(t, "925.00", p.Total.String())

	// AND: It was persisted with the counter
	stored, err := f.store.GetPeriod(ctx, "C", weekStart)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "925.00", stored.Total.String())
	assert.Equal(t, 4, f.orch.BonusCounter("C"))

	counters, err := f.store.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counters["C"])
}

func TestOrchestrator_RerunIsIdempotent(t *testing.T) {
	// GIVEN: A week already processed
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, substituteWeek("C")...)
	first, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// WHEN: Running the same week again from another day of it
	second, err := f.orch.ProcessWeeklyPayroll(ctx, date(2025, time.March, 16))
	require.NoError(t, err)

	// THEN: Same period returned, nothing counted twice
	res := second.Results["C"]
	require.NoError(t, res.Err)
	assert.True(t, res.Existing)
	assert.Equal(t, first.Results["C"].Period.ID, res.Period.ID)
	assert.Equal(t, 4, f.orch.BonusCounter("C"))
	assert.Equal(t, 4, f.orch.Progress("C").TotalAssignments)

	periods, err := f.store.ListPeriods(ctx, payroll.PeriodFilter{ContractorID: "C"})
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestOrchestrator_EmptyWeek(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.ProcessWeeklyPayroll(context.Background(), friday)

	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.True(t, result.Week.Start.Equal(weekStart))
}

func TestOrchestrator_IgnoresShiftsOutsideWeek(t *testing.T) {
	f := newFixture(t)
	f.save(t,
		shift("C", payroll.RoleTeachingAssistant, date(2025, time.March, 9), 8),
		shift("C", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8),
		withStatus(shift("C", payroll.RoleTeachingAssistant, date(2025, time.March, 11), 8), payroll.ShiftScheduled),
	)

	result, err := f.orch.ProcessWeeklyPayroll(context.Background(), friday)

	require.NoError(t, err)
	p := result.Results["C"].Period
	require.NotNil(t, p)
	assert.Len(t, p.ShiftIDs, 1)
	assertMoney(t, "160", p.Total)
}

// =============================================================================
// PARTIAL FAILURE
// =============================================================================

func TestOrchestrator_UnknownRoleFailsOnlyThatContractor(t *testing.T) {
	// GIVEN: A good contractor and one with an unpriced role
	f := newFixture(t)
	f.save(t, substituteWeek("good")...)
	f.save(t,
		shift("bad", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8),
		shift("bad", "Lunch Monitor", date(2025, time.March, 11), 8),
	)

	// WHEN: Running payroll
	result, err := f.orch.ProcessWeeklyPayroll(context.Background(), friday)
	require.NoError(t, err)

	// THEN: good is assembled, bad failed at the earnings stage
	assert.NoError(t, result.Results["good"].Err)
	bad := result.Results["bad"]
	assert.ErrorIs(t, bad.Err, payroll.ErrRateUnavailable)
	assert.Equal(t, payroll.StageAggregated, bad.Stage)
	assert.Nil(t, bad.Period)
	assert.Equal(t, []payroll.ContractorID{"bad"}, result.Failed())
	assert.Len(t, result.Periods(), 1)

	// AND: The failed contractor's state is untouched
	assert.Equal(t, 0, f.orch.BonusCounter("bad"))
	p, err := f.store.GetPeriod(context.Background(), "bad", weekStart)
	require.NoError(t, err)
	assert.Nil(t, p)

	// AND: The failure is audited
	bad2 := payroll.ContractorID("bad")
	entries, err := f.store.QueryAudit(context.Background(), generic.AuditFilter{
		EntityID: &bad2,
		Actions:  []generic.AuditAction{generic.AuditRunFailed},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOrchestrator_InvalidShiftsAreRejected(t *testing.T) {
	// GIVEN: A negative-hours shift for one contractor and an orphan shift
	f := newFixture(t)
	negative := shift("neg", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8)
	negative.Hours = decimal.NewFromInt(-2)
	orphan := shift("", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8)
	f.save(t, negative, orphan, shift("ok", payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8))

	// WHEN: Running payroll
	result, err := f.orch.ProcessWeeklyPayroll(context.Background(), friday)
	require.NoError(t, err)

	// THEN: neg fails with invalid data, the orphan is reported, ok succeeds
	assert.ErrorIs(t, result.Results["neg"].Err, payroll.ErrInvalidShiftData)
	assert.NoError(t, result.Results["ok"].Err)
	require.Len(t, result.Rejected, 1)
	assert.ErrorIs(t, result.Rejected[0], payroll.ErrInvalidShiftData)
}

func TestOrchestrator_ManyContractorsInParallel(t *testing.T) {
	// GIVEN: 25 contractors with two shifts each
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		c := fmt.Sprintf("c-%02d", i)
		f.save(t,
			shift(c, payroll.RoleTeachingAssistant, date(2025, time.March, 10), 8),
			shift(c, payroll.RoleTeachingAssistant, date(2025, time.March, 11), 9),
		)
	}

	// WHEN: Running payroll with three workers
	result, err := f.orch.ProcessWeeklyPayroll(context.Background(), friday)
	require.NoError(t, err)

	// THEN: Every contractor has its own correct period and counter
	require.Len(t, result.Results, 25)
	assert.Empty(t, result.Failed())
	for id, res := range result.Results {
		require.NoError(t, res.Err, id)
		assertMoney(t, "370", res.Period.Total)
		assert.Equal(t, 2, f.orch.BonusCounter(id))
	}
}

// =============================================================================
// BONUSES DURING THE RUN
// =============================================================================

func TestOrchestrator_BonusAwardedWhenCrossingThreshold(t *testing.T) {
	// GIVEN: A contractor with 28 prior completions
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCounter(ctx, "C", 28))
	require.NoError(t, f.orch.LoadState(ctx))
	f.save(t, substituteWeek("C")...)

	// WHEN: Four more are processed
	result, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// THEN: One bonus at the 30th, counter continues from zero
	p := result.Results["C"].Period
	require.NotNil(t, p)
	require.Len(t, p.Bonuses, 1)
	b := p.Bonuses[0]
	assert.Equal(t, payroll.BonusEarned, b.Status)
	assert.Equal(t, p.ID, b.PeriodID)
	assertMoney(t, "100", b.Amount)
	assert.Equal(t, "1025.00", p.Total.String())
	assert.Equal(t, 2, f.orch.BonusCounter("C"))
}

func TestOrchestrator_SixtyCompletionsYieldTwoBonuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		f.save(t, shift("C", payroll.RoleTeachingAssistant, date(2025, time.March, 10+i%5), 1))
	}

	result, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	p := result.Results["C"].Period
	require.NotNil(t, p)
	require.Len(t, p.Bonuses, 2)
	assert.NotEqual(t, p.Bonuses[0].ID, p.Bonuses[1].ID)
	assertMoney(t, "200", p.BonusTotal)
	assert.Equal(t, 0, f.orch.BonusCounter("C"))
}

func TestOrchestrator_SaveFailureRollsBackState(t *testing.T) {
	// GIVEN: A contractor about to cross the bonus threshold, and a store
	// that fails the next save
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCounter(ctx, "C", 28))
	require.NoError(t, f.orch.LoadState(ctx))
	f.save(t, substituteWeek("C")...)
	f.store.FailNextSave(errors.New("disk full"))

	// WHEN: Running payroll
	result, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// THEN: The contractor failed and nothing moved
	require.Error(t, result.Results["C"].Err)
	assert.Equal(t, 28, f.orch.BonusCounter("C"))
	assert.Equal(t, 0, f.orch.Progress("C").TotalAssignments)

	// AND: A retry succeeds exactly once
	retry, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)
	require.NoError(t, retry.Results["C"].Err)
	assert.Len(t, retry.Results["C"].Period.Bonuses, 1)
	assert.Equal(t, 2, f.orch.BonusCounter("C"))
}

// =============================================================================
// BONUS PROCESSING
// =============================================================================

func TestOrchestrator_ProcessBonusesAttachesCreditedBonus(t *testing.T) {
	// GIVEN: A manual credit that crosses the threshold, and a pending period
	f := newFixture(t)
	ctx := context.Background()
	awarded, err := f.orch.CreditAssignments(ctx, "C", 30, date(2025, time.March, 12))
	require.NoError(t, err)
	require.Len(t, awarded, 1)

	f.save(t, substituteWeek("C")...)
	_, err = f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// WHEN: Processing bonuses for the week
	res, err := f.orch.ProcessBonuses(ctx, friday)
	require.NoError(t, err)

	// THEN: The bonus is processing on the open period and counted in the total
	assert.Empty(t, res.Failures)
	require.Len(t, res.Processed, 1)
	assert.Equal(t, payroll.BonusProcessing, res.Processed[0].Status)

	p, err := f.store.GetPeriod(ctx, "C", weekStart)
	require.NoError(t, err)
	require.Len(t, p.Bonuses, 1)
	assert.Equal(t, awarded[0].ID, p.Bonuses[0].ID)
	assert.Equal(t, "1025.00", p.Total.String())
}

func TestOrchestrator_ProcessBonusesRunAwardedBonusNotDoubleCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCounter(ctx, "C", 28))
	require.NoError(t, f.orch.LoadState(ctx))
	f.save(t, substituteWeek("C")...)
	_, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	res, err := f.orch.ProcessBonuses(ctx, friday)
	require.NoError(t, err)
	require.Len(t, res.Processed, 1)

	p, err := f.store.GetPeriod(ctx, "C", weekStart)
	require.NoError(t, err)
	assert.Equal(t, "1025.00", p.Total.String())
	assert.Equal(t, payroll.BonusProcessing, p.Bonuses[0].Status)

	// A second pass finds nothing left to process
	again, err := f.orch.ProcessBonuses(ctx, friday)
	require.NoError(t, err)
	assert.Empty(t, again.Processed)
}

func TestOrchestrator_ProcessBonusesWithoutOpenPeriod(t *testing.T) {
	// GIVEN: A credited bonus but no period this week
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.CreditAssignments(ctx, "C", 30, date(2025, time.March, 12))
	require.NoError(t, err)

	// WHEN: Processing bonuses
	res, err := f.orch.ProcessBonuses(ctx, friday)
	require.NoError(t, err)

	// THEN: NoOpenPeriod for C, the bonus stays earned
	require.Contains(t, res.Failures, payroll.ContractorID("C"))
	assert.ErrorIs(t, res.Failures["C"], payroll.ErrNoOpenPeriod)

	var noOpen *payroll.NoOpenPeriodError
	require.ErrorAs(t, res.Failures["C"], &noOpen)
	assert.True(t, noOpen.Week.Start.Equal(weekStart))

	earned, err := f.store.ListBonuses(ctx, payroll.BonusFilter{ContractorID: "C", Status: payroll.BonusEarned})
	require.NoError(t, err)
	assert.Len(t, earned, 1)
}

// approvingStore approves every pending period right after listing it,
// the way an admin approval racing a bonus pass would.
type approvingStore struct {
	*memory.Memory
	approve bool
}

func (s *approvingStore) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.PayPeriod, error) {
	periods, err := s.Memory.ListPeriods(ctx, filter)
	if err != nil || !s.approve {
		return periods, err
	}
	for _, p := range periods {
		if p.IsOpen() {
			if err := s.Memory.UpdatePeriodStatus(ctx, p.ID, payroll.PeriodPending, payroll.PeriodApproved); err != nil {
				return nil, err
			}
		}
	}
	return periods, nil
}

func TestOrchestrator_ProcessBonusesSkipsPeriodApprovedMeanwhile(t *testing.T) {
	// GIVEN: A credited bonus and a pending period for the week
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.CreditAssignments(ctx, "C", 30, date(2025, time.March, 12))
	require.NoError(t, err)
	f.save(t, substituteWeek("C")...)

	store := &approvingStore{Memory: f.store}
	orch := payroll.NewOrchestrator(store, f.calc, f.bonuses, f.placement, payroll.Options{
		Workers: 1,
		Logger:  zaptest.NewLogger(t),
	})
	_, err = orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// WHEN: The period is approved between listing and attaching
	store.approve = true
	res, err := orch.ProcessBonuses(ctx, friday)
	require.NoError(t, err)

	// THEN: Nothing is attached and the approved total is untouched
	assert.Empty(t, res.Processed)
	require.Contains(t, res.Failures, payroll.ContractorID("C"))
	assert.ErrorIs(t, res.Failures["C"], payroll.ErrNoOpenPeriod)

	p, err := f.store.GetPeriod(ctx, "C", weekStart)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodApproved, p.Status)
	assert.Equal(t, "925.00", p.Total.String())
	assert.Empty(t, p.Bonuses)

	earned, err := f.store.ListBonuses(ctx, payroll.BonusFilter{ContractorID: "C", Status: payroll.BonusEarned})
	require.NoError(t, err)
	assert.Len(t, earned, 1)
}

func TestOrchestrator_CreditSaveFailureKeepsThresholdCrossing(t *testing.T) {
	// GIVEN: A contractor at 5 completions and a store that fails the next save
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCounter(ctx, "C", 5))
	require.NoError(t, f.orch.LoadState(ctx))
	f.store.FailNextSave(errors.New("disk full"))

	// WHEN: Crediting enough assignments to cross the threshold
	_, err := f.orch.CreditAssignments(ctx, "C", 30, friday)

	// THEN: The credit fails and neither counter nor bonuses moved
	require.Error(t, err)
	assert.Equal(t, 5, f.orch.BonusCounter("C"))
	counters, err := f.store.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counters["C"])
	stored, err := f.store.ListBonuses(ctx, payroll.BonusFilter{ContractorID: "C"})
	require.NoError(t, err)
	assert.Empty(t, stored)

	// AND: A retry awards the bonus
	awarded, err := f.orch.CreditAssignments(ctx, "C", 30, friday)
	require.NoError(t, err)
	assert.Len(t, awarded, 1)
	assert.Equal(t, 5, f.orch.BonusCounter("C"))
	stored, err = f.store.ListBonuses(ctx, payroll.BonusFilter{ContractorID: "C"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestOrchestrator_CreditRejectsNonPositive(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.CreditAssignments(context.Background(), "C", 0, friday)

	assert.ErrorIs(t, err, payroll.ErrInvalidShiftData)
}

// =============================================================================
// PERIOD LIFECYCLE
// =============================================================================

func TestOrchestrator_TransitionPeriodToPaidPaysBonuses(t *testing.T) {
	// GIVEN: A period with a processing bonus
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCounter(ctx, "C", 28))
	require.NoError(t, f.orch.LoadState(ctx))
	f.save(t, substituteWeek("C")...)
	_, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)
	_, err = f.orch.ProcessBonuses(ctx, friday)
	require.NoError(t, err)
	id := payroll.PeriodID("C", weekStart)

	// WHEN: Skipping approval
	_, err = f.orch.TransitionPeriod(ctx, id, payroll.PeriodPaid)

	// THEN: Rejected
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	// WHEN: Approving then paying
	_, err = f.orch.TransitionPeriod(ctx, id, payroll.PeriodApproved)
	require.NoError(t, err)
	p, err := f.orch.TransitionPeriod(ctx, id, payroll.PeriodPaid)
	require.NoError(t, err)

	// THEN: Period and bonus are paid
	assert.Equal(t, payroll.PeriodPaid, p.Status)
	require.Len(t, p.Bonuses, 1)
	assert.Equal(t, payroll.BonusPaid, p.Bonuses[0].Status)
}

func TestOrchestrator_TransitionUnknownPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.TransitionPeriod(context.Background(), "missing", payroll.PeriodApproved)

	assert.ErrorIs(t, err, payroll.ErrPeriodNotFound)
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// PLACEMENT
// =============================================================================

func TestOrchestrator_PlacementAdvancesDuringRun(t *testing.T) {
	// GIVEN: Good feedback and 30 shifts at three schools in one week
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetFeedbackScore(ctx, "C", 4.6))
	schools := []string{"North High", "South Middle", "East Elementary"}
	for i := 0; i < 30; i++ {
		f.save(t, at(shift("C", payroll.RoleTeachingAssistant, date(2025, time.March, 10+i%5), 2), schools[i%3]))
	}

	// WHEN: Running payroll
	_, err := f.orch.ProcessWeeklyPayroll(ctx, friday)
	require.NoError(t, err)

	// THEN: In consideration, persisted and audited
	assert.Equal(t, payroll.PlacementInConsideration, f.orch.Progress("C").Status)

	stored, err := f.store.GetProgress(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 30, stored.TotalAssignments)
	assert.Len(t, stored.UniqueInstitutions, 3)

	entries, err := f.store.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditPlacementAdvanced}})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// AND: It can then be marked placed
	p, err := f.orch.MarkPlaced(ctx, "C", date(2025, time.March, 20))
	require.NoError(t, err)
	assert.Equal(t, payroll.PlacementPlaced, p.Status)
}
