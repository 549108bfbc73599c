// Package memory provides an in-memory payroll.Store (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	shifts   map[string]payroll.WorkShift
	periods  map[string]payroll.PayPeriod
	byWeek   map[weekKey]string
	bonuses  map[string]payroll.Bonus
	counters map[payroll.ContractorID]int
	progress map[payroll.ContractorID]payroll.PlacementProgress
	feedback map[payroll.ContractorID]float64
	audit    []generic.AuditEntry

	// failNextSave makes the next SavePeriodRun or SaveCredit fail; tests
	// use it to exercise rollback.
	failNextSave error
}

type weekKey struct {
	ContractorID payroll.ContractorID
	WeekStart    string
}

func NewMemory() *Memory {
	return &Memory{
		shifts:   make(map[string]payroll.WorkShift),
		periods:  make(map[string]payroll.PayPeriod),
		byWeek:   make(map[weekKey]string),
		bonuses:  make(map[string]payroll.Bonus),
		counters: make(map[payroll.ContractorID]int),
		progress: make(map[payroll.ContractorID]payroll.PlacementProgress),
		feedback: make(map[payroll.ContractorID]float64),
	}
}

var _ payroll.Store = (*Memory)(nil)

// FailNextSave makes the next SavePeriodRun or SaveCredit return err.
func (m *Memory) FailNextSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextSave = err
}

// =============================================================================
// SHIFTS
// =============================================================================

func (m *Memory) SaveShift(_ context.Context, s payroll.WorkShift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.shifts[s.ID]; ok && existing.IsCompleted() && !existing.SameAs(s) {
		return fmt.Errorf("%w: %s", payroll.ErrShiftImmutable, s.ID)
	}
	m.shifts[s.ID] = s
	return nil
}

func (m *Memory) GetShift(_ context.Context, id string) (*payroll.WorkShift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shifts[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ShiftsInRange(_ context.Context, from, to generic.TimePoint) ([]payroll.WorkShift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window := generic.Period{Start: from, End: to}
	var out []payroll.WorkShift
	for _, s := range m.shifts {
		if window.Contains(s.Date) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// PERIODS AND BONUSES
// =============================================================================

func (m *Memory) SavePeriodRun(_ context.Context, run payroll.PeriodRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNextSave; err != nil {
		m.failNextSave = nil
		return err
	}

	p := run.Period
	k := weekKey{ContractorID: p.ContractorID, WeekStart: p.Start.String()}
	if _, exists := m.byWeek[k]; exists {
		return fmt.Errorf("%w: %s %s", payroll.ErrPeriodExists, p.ContractorID, p.Start)
	}

	m.periods[p.ID] = clonePeriod(p)
	m.byWeek[k] = p.ID
	for _, b := range p.Bonuses {
		m.bonuses[b.ID] = b
	}
	m.counters[p.ContractorID] = run.Counter
	m.progress[p.ContractorID] = run.Progress.Clone()
	return nil
}

func (m *Memory) GetPeriod(_ context.Context, contractor payroll.ContractorID, weekStart generic.TimePoint) (*payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byWeek[weekKey{ContractorID: contractor, WeekStart: weekStart.String()}]
	if !ok {
		return nil, nil
	}
	p := m.periodLocked(id)
	return &p, nil
}

func (m *Memory) GetPeriodByID(_ context.Context, id string) (*payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.periods[id]; !ok {
		return nil, fmt.Errorf("%w: %s", payroll.ErrPeriodNotFound, id)
	}
	p := m.periodLocked(id)
	return &p, nil
}

func (m *Memory) ListPeriods(_ context.Context, filter payroll.PeriodFilter) ([]payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []payroll.PayPeriod
	for id, p := range m.periods {
		if filter.Matches(p) {
			out = append(out, m.periodLocked(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ContractorID < out[j].ContractorID
	})
	return out, nil
}

// periodLocked returns a copy of the period with its current bonuses.
func (m *Memory) periodLocked(id string) payroll.PayPeriod {
	p := clonePeriod(m.periods[id])
	p.Bonuses = nil
	for _, b := range m.bonuses {
		if b.PeriodID == id {
			p.Bonuses = append(p.Bonuses, b)
		}
	}
	sort.Slice(p.Bonuses, func(i, j int) bool { return p.Bonuses[i].ID < p.Bonuses[j].ID })
	return p
}

func (m *Memory) UpdatePeriodStatus(_ context.Context, id string, from, to payroll.PeriodStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return fmt.Errorf("%w: %s", payroll.ErrPeriodNotFound, id)
	}
	if p.Status != from {
		return fmt.Errorf("%w: period %s is %s, expected %s", generic.ErrConcurrentModification, id, p.Status, from)
	}
	p.Status = to
	m.periods[id] = p

	if to == payroll.PeriodPaid {
		for bid, b := range m.bonuses {
			if b.PeriodID == id {
				b.Status = payroll.BonusPaid
				m.bonuses[bid] = b
			}
		}
	}
	return nil
}

func (m *Memory) SaveBonus(_ context.Context, b payroll.Bonus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bonuses[b.ID]; exists {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.bonuses[b.ID] = b
	return nil
}

func (m *Memory) SaveCredit(_ context.Context, contractor payroll.ContractorID, counter int, bonuses []payroll.Bonus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNextSave; err != nil {
		m.failNextSave = nil
		return err
	}
	for _, b := range bonuses {
		if _, exists := m.bonuses[b.ID]; exists {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	for _, b := range bonuses {
		m.bonuses[b.ID] = b
	}
	m.counters[contractor] = counter
	return nil
}

func (m *Memory) AttachBonus(_ context.Context, periodID string, b payroll.Bonus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[periodID]
	if !ok {
		return fmt.Errorf("%w: %s", payroll.ErrPeriodNotFound, periodID)
	}
	if !p.IsOpen() {
		return fmt.Errorf("%w: period %s is %s", generic.ErrConcurrentModification, periodID, p.Status)
	}

	prev, known := m.bonuses[b.ID]
	if !known || prev.PeriodID != periodID {
		p.BonusTotal = p.BonusTotal.Add(b.Amount)
		p.Total = p.Earnings.Add(p.BonusTotal).RoundCurrency()
		m.periods[periodID] = p
	}
	b.PeriodID = periodID
	m.bonuses[b.ID] = b
	return nil
}

func (m *Memory) ListBonuses(_ context.Context, filter payroll.BonusFilter) ([]payroll.Bonus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []payroll.Bonus
	for _, b := range m.bonuses {
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AwardedAt.Equal(out[j].AwardedAt) {
			return out[i].AwardedAt.Before(out[j].AwardedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// STATE
// =============================================================================

func (m *Memory) SaveCounter(_ context.Context, contractor payroll.ContractorID, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[contractor] = n
	return nil
}

func (m *Memory) LoadCounters(_ context.Context) (map[payroll.ContractorID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[payroll.ContractorID]int, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SaveProgress(_ context.Context, p payroll.PlacementProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.ContractorID] = p.Clone()
	return nil
}

func (m *Memory) GetProgress(_ context.Context, contractor payroll.ContractorID) (*payroll.PlacementProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[contractor]
	if !ok {
		return nil, nil
	}
	c := p.Clone()
	return &c, nil
}

func (m *Memory) LoadProgress(_ context.Context) ([]payroll.PlacementProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]payroll.PlacementProgress, 0, len(m.progress))
	for _, p := range m.progress {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractorID < out[j].ContractorID })
	return out, nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

func (m *Memory) SetFeedbackScore(_ context.Context, contractor payroll.ContractorID, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[contractor] = score
	return nil
}

func (m *Memory) FeedbackScore(_ context.Context, contractor payroll.ContractorID) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	score, ok := m.feedback[contractor]
	return score, ok, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.AuditEntry
	for _, e := range m.audit {
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func clonePeriod(p payroll.PayPeriod) payroll.PayPeriod {
	c := p
	c.ShiftIDs = append([]string(nil), p.ShiftIDs...)
	c.Bonuses = append([]payroll.Bonus(nil), p.Bonuses...)
	return c
}
