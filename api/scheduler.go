/*
scheduler.go - Automated weekly payroll scheduler

PURPOSE:
  Periodically runs payroll for the most recently closed ISO week, then the
  bonus processing pass for the same week, so periods exist without an
  operator pressing the button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Targets the week before the current one (the last closed week)
  - Remembers the last week it finished; a week is retried on the next tick
    only if its run returned an error
  - Reruns are safe anyway: the orchestrator returns existing periods

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active

USAGE:
  s := NewPayrollScheduler(orch, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: RunPayroll endpoint (manual run)
  - payroll/orchestrator.go: ProcessWeeklyPayroll, ProcessBonuses
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// PayrollScheduler runs the weekly payroll on a timer.
type PayrollScheduler struct {
	Orchestrator  *payroll.Orchestrator
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool
	Today         func() generic.TimePoint

	ticker   *time.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastWeek generic.TimePoint
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(orch *payroll.Orchestrator, logger *zap.Logger) *PayrollScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayrollScheduler{
		Orchestrator:  orch,
		Logger:        logger.Named("scheduler"),
		CheckInterval: time.Hour,
		Enabled:       true,
		Today:         generic.Today,
	}
}

// Start begins the scheduler. Starting a running scheduler is a no-op; a
// stopped scheduler can be started again.
func (s *PayrollScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *PayrollScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("stopped")
	}
}

func (s *PayrollScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce runs payroll and bonus processing for the last closed week unless
// that week already completed. It reports whether a run happened.
func (s *PayrollScheduler) RunOnce(ctx context.Context) bool {
	week := generic.WeekOf(s.Today()).PreviousPeriod()
	if s.lastWeek.Equal(week.Start) {
		return false
	}

	log := s.Logger.With(zap.String("week", week.Start.String()))
	result, err := s.Orchestrator.ProcessWeeklyPayroll(ctx, week.End)
	if err != nil {
		log.Error("weekly payroll failed", zap.Error(err))
		return true
	}
	bonuses, err := s.Orchestrator.ProcessBonuses(ctx, week.End)
	if err != nil {
		log.Error("bonus processing failed", zap.Error(err))
		return true
	}

	log.Info("scheduled payroll complete",
		zap.Int("periods", len(result.Periods())),
		zap.Int("failed", len(result.Failed())),
		zap.Int("bonuses_processed", len(bonuses.Processed)),
	)
	s.lastWeek = week.Start
	return true
}
