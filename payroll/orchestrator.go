/*
orchestrator.go - The weekly payroll run

PURPOSE:
  Drives ProcessWeeklyPayroll(asOf): loads the ISO week's shifts, validates
  and groups them, then runs one pipeline per contractor:

    NotStarted -> Aggregated -> Computed -> BonusesApplied -> Assembled

  Aggregated:     the contractor's completed shifts for the week are known
  Computed:       EarningsCalculator produced the rounded total
  BonusesApplied: one completion recorded per shift, bonus evaluated after each
  Assembled:      pending PayPeriod built, placement updated, all persisted

PARTIAL FAILURE:
  Every error is scoped to one contractor and reported in RunResult.Results.
  The only run-level error is failing to read the shift feed at all.

IDEMPOTENCE:
  Period IDs are UUIDv5(contractor, week start). If the store already has a
  period for (contractor, week) the pipeline returns it untouched and does
  not record completions again, so re-running a week changes nothing.

CONCURRENCY:
  Pipelines run on an errgroup limited to Workers goroutines. The same
  contractor is serialized through a KeyedMutex shared with the admin
  operations below. Only one weekly run executes at a time.

ROLLBACK:
  Counter and progress are snapshotted before a pipeline mutates them and
  restored if persisting the run fails.

SEE ALSO:
  - earnings.go, bonus.go, placement.go: The stages
  - store.go: SavePeriodRun
  - api/scheduler.go: Weekly trigger
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-engine/generic"
)

// periodNamespace seeds deterministic UUIDv5 identifiers.
var periodNamespace = uuid.MustParse("6f1c2a8e-3b7d-4c59-9e0a-58d2f4b7c1aa")

// PeriodID returns the stable identifier of a contractor's week.
func PeriodID(contractor ContractorID, weekStart generic.TimePoint) string {
	return uuid.NewSHA1(periodNamespace, []byte(string(contractor)+"|"+weekStart.String())).String()
}

func bonusID(periodID string, seq int) string {
	return uuid.NewSHA1(periodNamespace, []byte(fmt.Sprintf("%s#bonus-%d", periodID, seq))).String()
}

// =============================================================================
// RESULTS
// =============================================================================

// ContractorResult is Ok(Period) when Err is nil, otherwise Err(reason).
type ContractorResult struct {
	ContractorID ContractorID
	Stage        Stage
	Period       *PayPeriod
	Existing     bool // period came from an earlier run of the same week
	Err          error
}

func (r ContractorResult) OK() bool { return r.Err == nil }

// RunResult is the outcome of one weekly run.
type RunResult struct {
	AsOf     generic.TimePoint
	Week     generic.Period
	Results  map[ContractorID]ContractorResult
	Rejected []error // invalid shifts that name no contractor
}

// Failed returns the contractors whose pipeline failed.
func (r RunResult) Failed() []ContractorID {
	var out []ContractorID
	for _, id := range r.contractors() {
		if r.Results[id].Err != nil {
			out = append(out, id)
		}
	}
	return out
}

// Periods returns the successful periods in contractor order.
func (r RunResult) Periods() []PayPeriod {
	var out []PayPeriod
	for _, id := range r.contractors() {
		if res := r.Results[id]; res.Err == nil && res.Period != nil {
			out = append(out, *res.Period)
		}
	}
	return out
}

func (r RunResult) contractors() []ContractorID {
	groups := make(map[ContractorID][]WorkShift, len(r.Results))
	for id := range r.Results {
		groups[id] = nil
	}
	return Contractors(groups)
}

// BonusRunResult is the outcome of ProcessBonuses.
type BonusRunResult struct {
	Week      generic.Period
	Processed []Bonus
	Failures  map[ContractorID]error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Options tunes an Orchestrator. Zero values get defaults.
type Options struct {
	Workers int
	Logger  *zap.Logger
	Actor   string // recorded on audit entries
	Clock   func() time.Time
}

type Orchestrator struct {
	store     Store
	calc      *EarningsCalculator
	bonuses   *BonusEngine
	placement *PlacementTracker

	workers int
	logger  *zap.Logger
	actor   string
	clock   func() time.Time

	runMu sync.Mutex
	locks *generic.KeyedMutex[ContractorID]
}

func NewOrchestrator(store Store, calc *EarningsCalculator, bonuses *BonusEngine, placement *PlacementTracker, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Actor == "" {
		opts.Actor = "system"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		store:     store,
		calc:      calc,
		bonuses:   bonuses,
		placement: placement,
		workers:   opts.Workers,
		logger:    opts.Logger,
		actor:     opts.Actor,
		clock:     opts.Clock,
		locks:     generic.NewKeyedMutex[ContractorID](),
	}
}

// LoadState seeds the bonus counters and placement progress from the store.
// Call once before the first run.
func (o *Orchestrator) LoadState(ctx context.Context) error {
	counters, err := o.store.LoadCounters(ctx)
	if err != nil {
		return fmt.Errorf("load bonus counters: %w", err)
	}
	o.bonuses.Load(counters)

	progress, err := o.store.LoadProgress(ctx)
	if err != nil {
		return fmt.Errorf("load placement progress: %w", err)
	}
	o.placement.Load(progress)

	o.logger.Info("payroll state loaded",
		zap.Int("counters", len(counters)),
		zap.Int("progress", len(progress)),
	)
	return nil
}

// ProcessWeeklyPayroll runs payroll for the ISO week containing asOf.
func (o *Orchestrator) ProcessWeeklyPayroll(ctx context.Context, asOf generic.TimePoint) (RunResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	week := generic.WeekOf(asOf)
	log := o.logger.With(zap.String("week", week.Start.String()), zap.String("as_of", asOf.String()))

	pool, err := o.store.ShiftsInRange(ctx, week.Start, week.End)
	if err != nil {
		return RunResult{}, fmt.Errorf("load shifts for %s: %w", week, err)
	}

	result := RunResult{
		AsOf:    asOf,
		Week:    week,
		Results: make(map[ContractorID]ContractorResult),
	}

	// Reject bad records before aggregation.
	invalid := make(map[ContractorID]error)
	valid := make([]WorkShift, 0, len(pool))
	for _, s := range pool {
		if err := ValidateShift(s); err != nil {
			if s.ContractorID == "" {
				result.Rejected = append(result.Rejected, err)
				continue
			}
			if _, seen := invalid[s.ContractorID]; !seen {
				invalid[s.ContractorID] = err
			}
			continue
		}
		valid = append(valid, s)
	}

	_, weekly := WeeklyShiftsFor(asOf, valid)
	groups := GroupByContractor(weekly)
	for c := range invalid {
		if _, ok := groups[c]; !ok {
			groups[c] = nil
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.workers)
	for _, c := range Contractors(groups) {
		c := c
		shifts := groups[c]
		invalidErr := invalid[c]
		g.Go(func() error {
			res := o.runContractor(ctx, asOf, week, c, shifts, invalidErr)
			mu.Lock()
			result.Results[c] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	failed := result.Failed()
	log.Info("weekly payroll run complete",
		zap.Int("contractors", len(result.Results)),
		zap.Int("failed", len(failed)),
		zap.Int("rejected_shifts", len(result.Rejected)),
	)
	return result, nil
}

func (o *Orchestrator) runContractor(ctx context.Context, asOf generic.TimePoint, week generic.Period, c ContractorID, shifts []WorkShift, invalidErr error) ContractorResult {
	unlock := o.locks.Lock(c)
	defer unlock()

	log := o.logger.With(zap.String("contractor", string(c)), zap.String("week", week.Start.String()))
	res := ContractorResult{ContractorID: c, Stage: StageNotStarted}
	fail := func(err error) ContractorResult {
		res.Err = err
		log.Warn("contractor payroll failed", zap.String("stage", string(res.Stage)), zap.Error(err))
		o.audit(ctx, generic.AuditRunFailed, c, map[string]string{
			"week":  week.Start.String(),
			"stage": string(res.Stage),
			"error": err.Error(),
		})
		return res
	}

	if invalidErr != nil {
		return fail(invalidErr)
	}

	existing, err := o.store.GetPeriod(ctx, c, week.Start)
	if err != nil {
		return fail(fmt.Errorf("lookup existing period: %w", err))
	}
	if existing != nil {
		res.Stage = StageAssembled
		res.Period = existing
		res.Existing = true
		log.Debug("period already assembled", zap.String("period_id", existing.ID))
		return res
	}
	res.Stage = StageAggregated

	earnings, err := o.calc.ComputeEarnings(c, shifts)
	if err != nil {
		return fail(err)
	}
	res.Stage = StageComputed

	counterBefore := o.bonuses.Snapshot(c)
	progressBefore := o.placement.Progress(c)
	rollback := func() {
		o.bonuses.Restore(c, counterBefore)
		o.placement.Restore(progressBefore)
	}

	periodID := PeriodID(c, week.Start)
	var awarded []Bonus
	bonusTotal := zeroDollars()
	for range shifts {
		o.bonuses.RecordCompletion(c)
		if b := o.bonuses.Evaluate(c, asOf); b != nil {
			b.ID = bonusID(periodID, len(awarded))
			b.PeriodID = periodID
			awarded = append(awarded, *b)
			bonusTotal = bonusTotal.Add(b.Amount)
		}
	}
	res.Stage = StageBonusesApplied

	shiftIDs := make([]string, len(shifts))
	for i, s := range shifts {
		shiftIDs[i] = s.ID
	}
	period := PayPeriod{
		ID:           periodID,
		ContractorID: c,
		Start:        week.Start,
		End:          week.Start.AddDays(6),
		Status:       PeriodPending,
		ShiftIDs:     shiftIDs,
		Bonuses:      awarded,
		Earnings:     earnings.Total,
		BonusTotal:   bonusTotal,
		Total:        earnings.Total.Add(bonusTotal).RoundCurrency(),
		AsOf:         asOf,
		CreatedAt:    o.clock().UTC(),
	}

	progress, err := o.placement.UpdateProgress(ctx, c, shifts, asOf)
	if err != nil {
		rollback()
		return fail(err)
	}

	run := PeriodRun{Period: period, Counter: o.bonuses.Snapshot(c), Progress: progress}
	if err := o.store.SavePeriodRun(ctx, run); err != nil {
		rollback()
		return fail(fmt.Errorf("save period run: %w", err))
	}
	res.Stage = StageAssembled
	res.Period = &period

	o.audit(ctx, generic.AuditPeriodCreated, c, map[string]string{
		"period_id": period.ID,
		"week":      week.Start.String(),
		"total":     period.Total.String(),
	})
	for _, b := range awarded {
		o.audit(ctx, generic.AuditBonusAwarded, c, map[string]string{
			"bonus_id": b.ID,
			"type":     string(b.Type),
			"amount":   b.Amount.String(),
		})
	}
	if advanced(progressBefore.Status, progress.Status) {
		o.audit(ctx, generic.AuditPlacementAdvanced, c, map[string]string{
			"from": string(progressBefore.Status),
			"to":   string(progress.Status),
		})
		log.Info("placement advanced", zap.String("status", string(progress.Status)))
	}

	log.Info("pay period assembled",
		zap.String("period_id", period.ID),
		zap.Int("shifts", len(shifts)),
		zap.String("total", period.Total.String()),
		zap.Int("bonuses", len(awarded)),
	)
	return res
}

// =============================================================================
// BONUS PROCESSING (second pass)
// =============================================================================

// ProcessBonuses moves earned bonuses for the week containing asOf to
// processing and attaches them to the contractor's open period.
//
// Candidates are earned bonuses already attached to one of the week's
// periods, and unattached earned bonuses awarded on or before the week's end.
func (o *Orchestrator) ProcessBonuses(ctx context.Context, asOf generic.TimePoint) (BonusRunResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	week := generic.WeekOf(asOf)
	result := BonusRunResult{Week: week, Failures: make(map[ContractorID]error)}

	weekPeriods, err := o.store.ListPeriods(ctx, PeriodFilter{WeekStart: &week.Start})
	if err != nil {
		return result, fmt.Errorf("list periods: %w", err)
	}
	inWeek := make(map[string]bool, len(weekPeriods))
	var open []PayPeriod
	for _, p := range weekPeriods {
		inWeek[p.ID] = true
		if p.IsOpen() {
			open = append(open, p)
		}
	}

	earned, err := o.store.ListBonuses(ctx, BonusFilter{Status: BonusEarned, To: &week.End})
	if err != nil {
		return result, fmt.Errorf("list bonuses: %w", err)
	}
	var candidates []Bonus
	for _, b := range earned {
		if b.PeriodID == "" || inWeek[b.PeriodID] {
			candidates = append(candidates, b)
		}
	}

	processed, failures := o.bonuses.ProcessBonuses(candidates, open)
	for c, err := range failures {
		var noOpen *NoOpenPeriodError
		if errors.As(err, &noOpen) {
			noOpen.Week = week
		}
		result.Failures[c] = err
	}

	for _, b := range processed {
		if _, failed := result.Failures[b.ContractorID]; failed {
			continue
		}
		if err := o.attach(ctx, week, b); err != nil {
			result.Failures[b.ContractorID] = err
			continue
		}
		result.Processed = append(result.Processed, b)
	}

	o.logger.Info("bonus processing complete",
		zap.String("week", week.Start.String()),
		zap.Int("processed", len(result.Processed)),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// attach re-reads the period under the contractor lock; the listing above
// may be stale if the period was approved in between.
func (o *Orchestrator) attach(ctx context.Context, week generic.Period, b Bonus) error {
	unlock := o.locks.Lock(b.ContractorID)
	defer unlock()

	p, err := o.store.GetPeriodByID(ctx, b.PeriodID)
	if err != nil {
		return fmt.Errorf("attach bonus %s: %w", b.ID, err)
	}
	if !p.IsOpen() {
		return &NoOpenPeriodError{ContractorID: b.ContractorID, BonusID: b.ID, Week: week}
	}
	if err := o.store.AttachBonus(ctx, b.PeriodID, b); err != nil {
		return fmt.Errorf("attach bonus %s: %w", b.ID, err)
	}
	o.audit(ctx, generic.AuditBonusProcessing, b.ContractorID, map[string]string{
		"bonus_id":  b.ID,
		"period_id": b.PeriodID,
	})
	return nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// CreditAssignments records n assignments completed outside the shift feed
// (manual adjustment). Any bonus crossed is stored unattached and picked up
// by the next ProcessBonuses.
func (o *Orchestrator) CreditAssignments(ctx context.Context, c ContractorID, n int, asOf generic.TimePoint) ([]Bonus, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: credit must be positive, got %d", ErrInvalidShiftData, n)
	}

	unlock := o.locks.Lock(c)
	defer unlock()

	before := o.bonuses.Snapshot(c)
	var awarded []Bonus
	for i := 0; i < n; i++ {
		o.bonuses.RecordCompletion(c)
		if b := o.bonuses.Evaluate(c, asOf); b != nil {
			awarded = append(awarded, *b)
		}
	}

	if err := o.store.SaveCredit(ctx, c, o.bonuses.Snapshot(c), awarded); err != nil {
		o.bonuses.Restore(c, before)
		return nil, fmt.Errorf("save credit: %w", err)
	}
	for _, b := range awarded {
		o.audit(ctx, generic.AuditBonusAwarded, c, map[string]string{
			"bonus_id": b.ID,
			"type":     string(b.Type),
			"amount":   b.Amount.String(),
			"source":   "credit",
		})
	}
	return awarded, nil
}

// TransitionPeriod moves a period one status forward.
func (o *Orchestrator) TransitionPeriod(ctx context.Context, id string, to PeriodStatus) (*PayPeriod, error) {
	p, err := o.store.GetPeriodByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(p.ContractorID)
	defer unlock()

	if !p.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: period %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	if err := o.store.UpdatePeriodStatus(ctx, id, p.Status, to); err != nil {
		return nil, err
	}
	o.audit(ctx, generic.AuditPeriodTransitioned, p.ContractorID, map[string]string{
		"period_id": id,
		"from":      string(p.Status),
		"to":        string(to),
	})
	return o.store.GetPeriodByID(ctx, id)
}

// MarkPlaced records that a contractor in consideration has been placed.
func (o *Orchestrator) MarkPlaced(ctx context.Context, c ContractorID, asOf generic.TimePoint) (PlacementProgress, error) {
	unlock := o.locks.Lock(c)
	defer unlock()

	before := o.placement.Progress(c)
	progress, err := o.placement.MarkPlaced(c, asOf)
	if err != nil {
		return progress, err
	}
	if err := o.store.SaveProgress(ctx, progress); err != nil {
		o.placement.Restore(before)
		return before, fmt.Errorf("save progress: %w", err)
	}
	o.audit(ctx, generic.AuditPlacementAdvanced, c, map[string]string{
		"from": string(before.Status),
		"to":   string(progress.Status),
	})
	return progress, nil
}

// Progress returns the contractor's placement progress.
func (o *Orchestrator) Progress(c ContractorID) PlacementProgress {
	return o.placement.Progress(c)
}

// BonusCounter returns the contractor's current assignment counter.
func (o *Orchestrator) BonusCounter(c ContractorID) int {
	return o.bonuses.Count(c)
}

func (o *Orchestrator) audit(ctx context.Context, action generic.AuditAction, c ContractorID, payload map[string]string) {
	entry := generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: o.clock().UTC(),
		ActorID:   o.actor,
		Action:    action,
		EntityID:  c,
		Payload:   payload,
	}
	if err := o.store.AppendAudit(ctx, entry); err != nil {
		o.logger.Warn("audit append failed", zap.String("action", string(action)), zap.Error(err))
	}
}
