/*
Package sqlite provides a SQLite-backed implementation of payroll.Store.

PURPOSE:
  Persists shifts, pay periods, bonuses, bonus counters, placement progress,
  feedback scores and the audit log. In production the same patterns apply
  to PostgreSQL with minor SQL dialect differences.

ATOMIC RUNS:
  SavePeriodRun writes the period, its bonuses, the bonus counter and the
  placement progress in one database transaction. A failure anywhere rolls
  back all four, which lets the orchestrator roll back its in-memory state
  and retry the contractor later.

KEY TABLES:
  shifts:             Shift feed; completed rows never change
  pay_periods:        UNIQUE(contractor_id, week_start) enforces one per week
  bonuses:            period_id is NULL until the bonus is attached
  bonus_counters:     Assignments since the last bonus
  placement_progress: Lifetime assignments and institution set
  audit_log:          Append-only

MONEY AND DATES:
  Decimals are stored as TEXT (decimal.String) so no precision is lost.
  Calendar dates are TEXT "YYYY-MM-DD", which sorts and compares correctly.

MIGRATIONS:
  Schema lives in migrations/*.sql, embedded in the binary and applied on
  New() with golang-migrate.

CONCURRENCY:
  One open connection (required for ":memory:") plus a sync.RWMutex, as in
  the in-memory store.

USAGE:
  store, err := sqlite.New("./data/payroll.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timestampLayout is fixed-width so stored timestamps compare as strings.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements payroll.Store using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

var _ payroll.Store = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	if dirty {
		s.logger.Warn("database migration is dirty", zap.Uint("version", version))
	} else {
		s.logger.Debug("database migrated", zap.Uint("version", version))
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SHIFTS
// =============================================================================

const shiftColumns = `id, contractor_id, role, date, hours, status, institution`

// SaveShift inserts or updates a shift. A completed shift can be re-sent
// unchanged but never modified.
func (s *Store) SaveShift(ctx context.Context, shift payroll.WorkShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanShift(tx.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, shift.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	case existing.IsCompleted() && !existing.SameAs(shift):
		return fmt.Errorf("%w: %s", payroll.ErrShiftImmutable, shift.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contractor_id = excluded.contractor_id,
			role = excluded.role,
			date = excluded.date,
			hours = excluded.hours,
			status = excluded.status,
			institution = excluded.institution,
			updated_at = excluded.updated_at
	`,
		shift.ID,
		string(shift.ContractorID),
		string(shift.Role),
		shift.Date.String(),
		shift.Hours.String(),
		string(shift.Status),
		shift.Institution,
		now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetShift(ctx context.Context, id string) (*payroll.WorkShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, err := scanShift(s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) ShiftsInRange(ctx context.Context, from, to generic.TimePoint) ([]payroll.WorkShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE date >= ? AND date <= ?
		ORDER BY id
	`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var out []payroll.WorkShift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, shift)
	}
	return out, rows.Err()
}

// =============================================================================
// PERIODS
// =============================================================================

const periodColumns = `id, contractor_id, week_start, week_end, status, shift_ids_json,
	earnings, bonus_total, total, as_of, created_at`

const bonusColumns = `id, contractor_id, type, amount, awarded_at, status, period_id`

// SavePeriodRun writes the period, its bonuses, the counter and progress atomically.
func (s *Store) SavePeriodRun(ctx context.Context, run payroll.PeriodRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p := run.Period
	shiftIDs, err := json.Marshal(p.ShiftIDs)
	if err != nil {
		return fmt.Errorf("failed to encode shift ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pay_periods (`+periodColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		string(p.ContractorID),
		p.Start.String(),
		p.End.String(),
		string(p.Status),
		string(shiftIDs),
		p.Earnings.Value.String(),
		p.BonusTotal.Value.String(),
		p.Total.Value.String(),
		p.AsOf.String(),
		p.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s %s", payroll.ErrPeriodExists, p.ContractorID, p.Start)
		}
		return fmt.Errorf("failed to insert period: %w", err)
	}

	for _, b := range p.Bonuses {
		if err := insertBonus(ctx, tx, b); err != nil {
			return err
		}
	}
	if err := saveCounter(ctx, tx, p.ContractorID, run.Counter); err != nil {
		return err
	}
	if err := saveProgress(ctx, tx, run.Progress); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetPeriod(ctx context.Context, contractor payroll.ContractorID, weekStart generic.TimePoint) (*payroll.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanPeriod(s.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM pay_periods WHERE contractor_id = ? AND week_start = ?`,
		string(contractor), weekStart.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Bonuses, err = s.periodBonuses(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPeriodByID(ctx context.Context, id string) (*payroll.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanPeriod(s.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM pay_periods WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", payroll.ErrPeriodNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if p.Bonuses, err = s.periodBonuses(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.PayPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.ContractorID != "" {
		where = append(where, "contractor_id = ?")
		args = append(args, string(filter.ContractorID))
	}
	if filter.WeekStart != nil {
		where = append(where, "week_start = ?")
		args = append(args, filter.WeekStart.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + periodColumns + ` FROM pay_periods` + whereClause(where) +
		` ORDER BY week_start, contractor_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}

	var periods []payroll.PayPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		periods = append(periods, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Single connection: bonuses are loaded after the period cursor is closed.
	for i := range periods {
		if periods[i].Bonuses, err = s.periodBonuses(ctx, periods[i].ID); err != nil {
			return nil, err
		}
	}
	return periods, nil
}

func (s *Store) UpdatePeriodStatus(ctx context.Context, id string, from, to payroll.PeriodStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE pay_periods SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pay_periods WHERE id = ?`, id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", payroll.ErrPeriodNotFound, id)
		}
		return fmt.Errorf("%w: period %s is not %s", generic.ErrConcurrentModification, id, from)
	}

	if to == payroll.PeriodPaid {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bonuses SET status = ? WHERE period_id = ?`,
			string(payroll.BonusPaid), id); err != nil {
			return fmt.Errorf("failed to pay bonuses: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// BONUSES
// =============================================================================

func (s *Store) SaveBonus(ctx context.Context, b payroll.Bonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBonus(ctx, s.db, b)
}

// SaveCredit writes the counter and the credit's bonuses in one transaction.
func (s *Store) SaveCredit(ctx context.Context, contractor payroll.ContractorID, counter int, bonuses []payroll.Bonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range bonuses {
		if err := insertBonus(ctx, tx, b); err != nil {
			return err
		}
	}
	if err := saveCounter(ctx, tx, contractor, counter); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AttachBonus(ctx context.Context, periodID string, b payroll.Bonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var earnings, bonusTotal, status string
	err = tx.QueryRowContext(ctx,
		`SELECT earnings, bonus_total, status FROM pay_periods WHERE id = ?`, periodID).
		Scan(&earnings, &bonusTotal, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", payroll.ErrPeriodNotFound, periodID)
	}
	if err != nil {
		return err
	}
	if payroll.PeriodStatus(status) != payroll.PeriodPending {
		return fmt.Errorf("%w: period %s is %s", generic.ErrConcurrentModification, periodID, status)
	}

	var prev sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT period_id FROM bonuses WHERE id = ?`, b.ID).Scan(&prev)
	known := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if !known || prev.String != periodID {
		bt, err := parseMoney(bonusTotal)
		if err != nil {
			return err
		}
		e, err := parseMoney(earnings)
		if err != nil {
			return err
		}
		bt = bt.Add(b.Amount)
		total := e.Add(bt).RoundCurrency()
		if _, err := tx.ExecContext(ctx,
			`UPDATE pay_periods SET bonus_total = ?, total = ? WHERE id = ?`,
			bt.Value.String(), total.Value.String(), periodID); err != nil {
			return fmt.Errorf("failed to update period totals: %w", err)
		}
	}

	b.PeriodID = periodID
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bonuses (`+bonusColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			period_id = excluded.period_id
	`, bonusArgs(b)...)
	if err != nil {
		return fmt.Errorf("failed to attach bonus: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListBonuses(ctx context.Context, filter payroll.BonusFilter) ([]payroll.Bonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.ContractorID != "" {
		where = append(where, "contractor_id = ?")
		args = append(args, string(filter.ContractorID))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Unattached {
		where = append(where, "period_id IS NULL")
	}
	if filter.From != nil {
		where = append(where, "awarded_at >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		where = append(where, "awarded_at <= ?")
		args = append(args, filter.To.String())
	}

	return s.queryBonuses(ctx,
		`SELECT `+bonusColumns+` FROM bonuses`+whereClause(where)+` ORDER BY awarded_at, id`,
		args...)
}

func (s *Store) periodBonuses(ctx context.Context, periodID string) ([]payroll.Bonus, error) {
	return s.queryBonuses(ctx,
		`SELECT `+bonusColumns+` FROM bonuses WHERE period_id = ? ORDER BY id`, periodID)
}

func (s *Store) queryBonuses(ctx context.Context, query string, args ...any) ([]payroll.Bonus, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonuses: %w", err)
	}
	defer rows.Close()

	var out []payroll.Bonus
	for rows.Next() {
		b, err := scanBonus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func insertBonus(ctx context.Context, db execer, b payroll.Bonus) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO bonuses (`+bonusColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bonusArgs(b)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert bonus: %w", err)
	}
	return nil
}

func bonusArgs(b payroll.Bonus) []any {
	return []any{
		b.ID,
		string(b.ContractorID),
		string(b.Type),
		b.Amount.Value.String(),
		b.AwardedAt.String(),
		string(b.Status),
		nullString(b.PeriodID),
	}
}

// =============================================================================
// STATE
// =============================================================================

func (s *Store) SaveCounter(ctx context.Context, contractor payroll.ContractorID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCounter(ctx, s.db, contractor, n)
}

func saveCounter(ctx context.Context, db execer, contractor payroll.ContractorID, n int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO bonus_counters (contractor_id, count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(contractor_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at
	`, string(contractor), n, now())
	if err != nil {
		return fmt.Errorf("failed to save counter: %w", err)
	}
	return nil
}

func (s *Store) LoadCounters(ctx context.Context) (map[payroll.ContractorID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT contractor_id, count FROM bonus_counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}
	defer rows.Close()

	out := make(map[payroll.ContractorID]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		out[payroll.ContractorID(id)] = n
	}
	return out, rows.Err()
}

func (s *Store) SaveProgress(ctx context.Context, p payroll.PlacementProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProgress(ctx, s.db, p)
}

func saveProgress(ctx context.Context, db execer, p payroll.PlacementProgress) error {
	institutions, err := json.Marshal(p.Institutions())
	if err != nil {
		return fmt.Errorf("failed to encode institutions: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO placement_progress (contractor_id, total_assignments, institutions_json, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(contractor_id) DO UPDATE SET
			total_assignments = excluded.total_assignments,
			institutions_json = excluded.institutions_json,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, string(p.ContractorID), p.TotalAssignments, string(institutions), string(p.Status), p.UpdatedAt.String())
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

const progressColumns = `contractor_id, total_assignments, institutions_json, status, updated_at`

func (s *Store) GetProgress(ctx context.Context, contractor payroll.ContractorID) (*payroll.PlacementProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM placement_progress WHERE contractor_id = ?`, string(contractor)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) LoadProgress(ctx context.Context) ([]payroll.PlacementProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM placement_progress ORDER BY contractor_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var out []payroll.PlacementProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// FEEDBACK
// =============================================================================

func (s *Store) SetFeedbackScore(ctx context.Context, contractor payroll.ContractorID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_scores (contractor_id, score, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(contractor_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
	`, string(contractor), score, now())
	if err != nil {
		return fmt.Errorf("failed to save feedback score: %w", err)
	}
	return nil
}

func (s *Store) FeedbackScore(ctx context.Context, contractor payroll.ContractorID) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM feedback_scores WHERE contractor_id = ?`, string(contractor)).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query feedback score: %w", err)
	}
	return score, true, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Timestamp.UTC().Format(timestampLayout), entry.ActorID,
		string(entry.Action), string(entry.EntityID), string(payload))
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.EntityID != nil {
		where = append(where, "entity_id = ?")
		args = append(args, string(*filter.EntityID))
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.From.UTC().Format(timestampLayout))
	}
	if filter.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.To.UTC().Format(timestampLayout))
	}

	query := `SELECT id, timestamp, actor_id, action, entity_id, payload_json FROM audit_log` +
		whereClause(where) + ` ORDER BY rowid`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e       generic.AuditEntry
			ts      string
			action  string
			entity  string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &entity, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp, err = time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		e.Action = generic.AuditAction(action)
		e.EntityID = generic.EntityID(entity)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanShift(row scanner) (payroll.WorkShift, error) {
	var (
		shift              payroll.WorkShift
		contractor, role   string
		date, hours, state string
	)
	err := row.Scan(&shift.ID, &contractor, &role, &date, &hours, &state, &shift.Institution)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shift, err
		}
		return shift, fmt.Errorf("failed to scan shift: %w", err)
	}

	shift.ContractorID = payroll.ContractorID(contractor)
	shift.Role = payroll.Role(role)
	shift.Status = payroll.ShiftStatus(state)
	if shift.Date, err = generic.ParseDate(date); err != nil {
		return shift, fmt.Errorf("shift %s: %w", shift.ID, err)
	}
	if shift.Hours, err = decimal.NewFromString(hours); err != nil {
		return shift, fmt.Errorf("shift %s hours: %w", shift.ID, err)
	}
	return shift, nil
}

func scanPeriod(row scanner) (payroll.PayPeriod, error) {
	var (
		p                           payroll.PayPeriod
		contractor, status          string
		start, end, asOf, created   string
		shiftIDs                    string
		earnings, bonusTotal, total string
	)
	err := row.Scan(&p.ID, &contractor, &start, &end, &status, &shiftIDs,
		&earnings, &bonusTotal, &total, &asOf, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan period: %w", err)
	}

	p.ContractorID = payroll.ContractorID(contractor)
	p.Status = payroll.PeriodStatus(status)
	if err := json.Unmarshal([]byte(shiftIDs), &p.ShiftIDs); err != nil {
		return p, fmt.Errorf("period %s shift ids: %w", p.ID, err)
	}
	if p.Start, err = generic.ParseDate(start); err != nil {
		return p, err
	}
	if p.End, err = generic.ParseDate(end); err != nil {
		return p, err
	}
	if p.AsOf, err = generic.ParseDate(asOf); err != nil {
		return p, err
	}
	if p.Earnings, err = parseMoney(earnings); err != nil {
		return p, err
	}
	if p.BonusTotal, err = parseMoney(bonusTotal); err != nil {
		return p, err
	}
	if p.Total, err = parseMoney(total); err != nil {
		return p, err
	}
	if p.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return p, err
	}
	return p, nil
}

func scanBonus(row scanner) (payroll.Bonus, error) {
	var (
		b                       payroll.Bonus
		contractor, typ, status string
		amount, awarded         string
		periodID                sql.NullString
	)
	if err := row.Scan(&b.ID, &contractor, &typ, &amount, &awarded, &status, &periodID); err != nil {
		return b, fmt.Errorf("failed to scan bonus: %w", err)
	}

	var err error
	b.ContractorID = payroll.ContractorID(contractor)
	b.Type = payroll.BonusType(typ)
	b.Status = payroll.BonusStatus(status)
	b.PeriodID = periodID.String
	if b.Amount, err = parseMoney(amount); err != nil {
		return b, err
	}
	if b.AwardedAt, err = generic.ParseDate(awarded); err != nil {
		return b, err
	}
	return b, nil
}

func scanProgress(row scanner) (payroll.PlacementProgress, error) {
	var (
		contractor, institutions, status, updated string
		total                                     int
	)
	if err := row.Scan(&contractor, &total, &institutions, &status, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payroll.PlacementProgress{}, err
		}
		return payroll.PlacementProgress{}, fmt.Errorf("failed to scan progress: %w", err)
	}

	p := payroll.NewPlacementProgress(payroll.ContractorID(contractor))
	p.TotalAssignments = total
	p.Status = payroll.PlacementStatus(status)

	var names []string
	if err := json.Unmarshal([]byte(institutions), &names); err != nil {
		return p, fmt.Errorf("progress %s institutions: %w", contractor, err)
	}
	for _, n := range names {
		p.UniqueInstitutions[n] = struct{}{}
	}

	var err error
	if p.UpdatedAt, err = generic.ParseDate(updated); err != nil {
		return p, err
	}
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func parseMoney(value string) (generic.Amount, error) {
	return generic.ParseAmount(value, generic.UnitDollars)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
