/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements track.Store and track.TxStore using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  workers:          Worker records with cumulative accumulators
  work_sessions:    Segment log (the authoritative clocked history)
  global_policy:    The singleton pay policy (CHECK id = 1)
  worker_overrides: Per-worker policy overrides (zero or one per worker)
  salary_payments:  Payroll writes

INVARIANT ENFORCEMENT:
  A partial unique index on work_sessions(username) WHERE ended_at IS NULL
  backs the "at most one open segment per worker" invariant at the store
  level; a racing insert surfaces track.ErrConflictingSession.

DECIMALS:
  Money and hours are stored as TEXT and parsed with shopspring/decimal,
  never as floating point columns.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/timeclock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - track/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/track"
)

// Store implements track.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases vanish per-connection; keep a single one.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	store.queries = queries{db: db}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		username         TEXT PRIMARY KEY,
		name             TEXT NOT NULL DEFAULT '',
		cumulative_hours TEXT NOT NULL DEFAULT '0',
		cumulative_wage  TEXT NOT NULL DEFAULT '0',
		created_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS work_sessions (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL REFERENCES workers(username),
		calendar_day  TEXT NOT NULL,
		started_at    TEXT NOT NULL,
		ended_at      TEXT,
		accrued_hours TEXT NOT NULL DEFAULT '0',
		status        TEXT NOT NULL
	);

	-- CRITICAL: at most one open segment per worker at any time.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open
		ON work_sessions(username) WHERE ended_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_sessions_worker_day
		ON work_sessions(username, calendar_day, started_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_status_ended
		ON work_sessions(status, ended_at);

	CREATE TABLE IF NOT EXISTS global_policy (
		id                 INTEGER PRIMARY KEY CHECK (id = 1),
		hourly_rate        TEXT NOT NULL,
		auto_pause_minutes INTEGER NOT NULL,
		auto_pause_enabled INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS worker_overrides (
		username           TEXT PRIMARY KEY REFERENCES workers(username),
		hourly_rate        TEXT,
		auto_pause_minutes INTEGER,
		auto_pause_enabled INTEGER
	);

	CREATE TABLE IF NOT EXISTS salary_payments (
		id       TEXT PRIMARY KEY,
		username TEXT NOT NULL REFERENCES workers(username),
		amount   TEXT NOT NULL,
		note     TEXT NOT NULL DEFAULT '',
		paid_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_worker
		ON salary_payments(username, paid_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(track.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", track.ErrConflict, err)
	}
	return nil
}

// =============================================================================
// QUERIES - shared between Store (autocommit) and WithTx (transactional)
// =============================================================================

// dbtx is the subset of *sql.DB / *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

var _ track.Store = (*queries)(nil)

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

const sessionColumns = "id, username, calendar_day, started_at, ended_at, accrued_hours, status"

func (q *queries) SaveSession(ctx context.Context, s track.WorkSession) error {
	var endedAt any
	if s.EndedAt != nil {
		endedAt = s.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO work_sessions (id, username, calendar_day, started_at, ended_at, accrued_hours, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			accrued_hours = excluded.accrued_hours,
			status = excluded.status`,
		s.ID,
		s.Username,
		s.CalendarDay.UTC().Format("2006-01-02"),
		s.StartedAt.UTC().Format(time.RFC3339Nano),
		endedAt,
		s.AccruedHours.Round(2).String(),
		string(s.Status),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return track.ErrConflictingSession
		}
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (q *queries) GetSession(ctx context.Context, id string) (*track.WorkSession, error) {
	return q.querySession(ctx,
		"SELECT "+sessionColumns+" FROM work_sessions WHERE id = ?", id)
}

func (q *queries) OpenSessionFor(ctx context.Context, username string) (*track.WorkSession, error) {
	return q.querySession(ctx,
		"SELECT "+sessionColumns+" FROM work_sessions WHERE username = ? AND ended_at IS NULL", username)
}

func (q *queries) LatestSessionFor(ctx context.Context, username string) (*track.WorkSession, error) {
	return q.querySession(ctx,
		"SELECT "+sessionColumns+` FROM work_sessions
		 WHERE username = ? ORDER BY started_at DESC LIMIT 1`, username)
}

func (q *queries) SessionsForDay(ctx context.Context, username string, day time.Time) ([]track.WorkSession, error) {
	return q.querySessions(ctx,
		"SELECT "+sessionColumns+` FROM work_sessions
		 WHERE username = ? AND calendar_day = ? ORDER BY started_at ASC`,
		username, day.UTC().Format("2006-01-02"))
}

func (q *queries) SumDoneHours(ctx context.Context, username string) (decimal.Decimal, error) {
	return q.sumDecimal(ctx, `
		SELECT COALESCE(SUM(CAST(accrued_hours AS REAL)), 0)
		FROM work_sessions WHERE username = ? AND status = 'done'`, username)
}

func (q *queries) SumDoneHoursInRange(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return q.sumDecimal(ctx, `
		SELECT COALESCE(SUM(CAST(accrued_hours AS REAL)), 0)
		FROM work_sessions
		WHERE status = 'done' AND ended_at >= ? AND ended_at < ?`,
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
}

func (q *queries) OverdueActiveSessions(ctx context.Context, startedBefore time.Time) ([]track.WorkSession, error) {
	return q.querySessions(ctx,
		"SELECT "+sessionColumns+` FROM work_sessions
		 WHERE status = 'active' AND ended_at IS NULL AND started_at < ?
		 ORDER BY started_at ASC`,
		startedBefore.UTC().Format(time.RFC3339Nano))
}

func (q *queries) querySession(ctx context.Context, query string, args ...any) (*track.WorkSession, error) {
	sessions, err := q.querySessions(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (q *queries) querySessions(ctx context.Context, query string, args ...any) ([]track.WorkSession, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []track.WorkSession
	for rows.Next() {
		var (
			s           track.WorkSession
			calendarDay string
			startedAt   string
			endedAt     sql.NullString
			accrued     string
			status      string
		)
		if err := rows.Scan(&s.ID, &s.Username, &calendarDay, &startedAt, &endedAt, &accrued, &status); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		day, err := time.ParseInLocation("2006-01-02", calendarDay, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad calendar_day %q: %w", calendarDay, err)
		}
		s.CalendarDay = day
		s.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("bad started_at %q: %w", startedAt, err)
		}
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("bad ended_at %q: %w", endedAt.String, err)
			}
			s.EndedAt = &t
		}
		s.AccruedHours, err = decimal.NewFromString(accrued)
		if err != nil {
			return nil, fmt.Errorf("bad accrued_hours %q: %w", accrued, err)
		}
		s.Status = track.SessionStatus(status)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// -----------------------------------------------------------------------------
// Workers
// -----------------------------------------------------------------------------

func (q *queries) GetWorker(ctx context.Context, username string) (*track.Worker, error) {
	workers, err := q.queryWorkers(ctx, `
		SELECT username, name, cumulative_hours, cumulative_wage, created_at
		FROM workers WHERE username = ?`, username)
	if err != nil || len(workers) == 0 {
		return nil, err
	}
	return &workers[0], nil
}

func (q *queries) SaveWorker(ctx context.Context, w track.Worker) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO workers (username, name, cumulative_hours, cumulative_wage, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			name = excluded.name,
			cumulative_hours = excluded.cumulative_hours,
			cumulative_wage = excluded.cumulative_wage`,
		w.Username, w.Name,
		w.CumulativeHours.String(), w.CumulativeWage.String(),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

func (q *queries) ListWorkers(ctx context.Context) ([]track.Worker, error) {
	return q.queryWorkers(ctx, `
		SELECT username, name, cumulative_hours, cumulative_wage, created_at
		FROM workers ORDER BY username ASC`)
}

func (q *queries) AddWorkerTotals(ctx context.Context, username string, hours, wage decimal.Decimal) error {
	w, err := q.GetWorker(ctx, username)
	if err != nil {
		return err
	}
	if w == nil {
		return track.ErrWorkerNotFound
	}
	w.CumulativeHours = w.CumulativeHours.Add(hours)
	w.CumulativeWage = w.CumulativeWage.Add(wage)
	return q.SaveWorker(ctx, *w)
}

func (q *queries) queryWorkers(ctx context.Context, query string, args ...any) ([]track.Worker, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var workers []track.Worker
	for rows.Next() {
		var (
			w         track.Worker
			hours     string
			wage      string
			createdAt string
		)
		if err := rows.Scan(&w.Username, &w.Name, &hours, &wage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		w.CumulativeHours, err = decimal.NewFromString(hours)
		if err != nil {
			return nil, fmt.Errorf("bad cumulative_hours %q: %w", hours, err)
		}
		w.CumulativeWage, err = decimal.NewFromString(wage)
		if err != nil {
			return nil, fmt.Errorf("bad cumulative_wage %q: %w", wage, err)
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// -----------------------------------------------------------------------------
// Policy
// -----------------------------------------------------------------------------

func (q *queries) GlobalPolicy(ctx context.Context) (*track.GlobalPolicy, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT hourly_rate, auto_pause_minutes, auto_pause_enabled FROM global_policy WHERE id = 1")

	var (
		rate    string
		minutes int
		enabled int
	)
	err := row.Scan(&rate, &minutes, &enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load global policy: %w", err)
	}

	p := track.GlobalPolicy{AutoPauseMinutes: minutes, AutoPauseEnabled: enabled != 0}
	p.HourlyRate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("bad hourly_rate %q: %w", rate, err)
	}
	return &p, nil
}

func (q *queries) SaveGlobalPolicy(ctx context.Context, p track.GlobalPolicy) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO global_policy (id, hourly_rate, auto_pause_minutes, auto_pause_enabled)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hourly_rate = excluded.hourly_rate,
			auto_pause_minutes = excluded.auto_pause_minutes,
			auto_pause_enabled = excluded.auto_pause_enabled`,
		p.HourlyRate.String(), p.AutoPauseMinutes, boolToInt(p.AutoPauseEnabled),
	)
	if err != nil {
		return fmt.Errorf("failed to save global policy: %w", err)
	}
	return nil
}

func (q *queries) OverrideFor(ctx context.Context, username string) (*track.WorkerOverride, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT username, hourly_rate, auto_pause_minutes, auto_pause_enabled
		FROM worker_overrides WHERE username = ?`, username)

	var (
		o       track.WorkerOverride
		rate    sql.NullString
		minutes sql.NullInt64
		enabled sql.NullInt64
	)
	err := row.Scan(&o.Username, &rate, &minutes, &enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load override: %w", err)
	}

	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return nil, fmt.Errorf("bad override hourly_rate %q: %w", rate.String, err)
		}
		o.HourlyRate = &d
	}
	if minutes.Valid {
		m := int(minutes.Int64)
		o.AutoPauseMinutes = &m
	}
	if enabled.Valid {
		b := enabled.Int64 != 0
		o.AutoPauseEnabled = &b
	}
	return &o, nil
}

func (q *queries) SaveOverride(ctx context.Context, o track.WorkerOverride) error {
	var (
		rate    any
		minutes any
		enabled any
	)
	if o.HourlyRate != nil {
		rate = o.HourlyRate.String()
	}
	if o.AutoPauseMinutes != nil {
		minutes = *o.AutoPauseMinutes
	}
	if o.AutoPauseEnabled != nil {
		enabled = boolToInt(*o.AutoPauseEnabled)
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO worker_overrides (username, hourly_rate, auto_pause_minutes, auto_pause_enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			hourly_rate = excluded.hourly_rate,
			auto_pause_minutes = excluded.auto_pause_minutes,
			auto_pause_enabled = excluded.auto_pause_enabled`,
		o.Username, rate, minutes, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

func (q *queries) DeleteOverride(ctx context.Context, username string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM worker_overrides WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

func (q *queries) SavePayment(ctx context.Context, p track.SalaryPayment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO salary_payments (id, username, amount, note, paid_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			note = excluded.note`,
		p.ID, p.Username, p.Amount.String(), p.Note, p.PaidAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (q *queries) GetPayment(ctx context.Context, id string) (*track.SalaryPayment, error) {
	payments, err := q.queryPayments(ctx, `
		SELECT id, username, amount, note, paid_at
		FROM salary_payments WHERE id = ?`, id)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

func (q *queries) DeletePayment(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM salary_payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return nil
}

func (q *queries) PaymentsFor(ctx context.Context, username string) ([]track.SalaryPayment, error) {
	return q.queryPayments(ctx, `
		SELECT id, username, amount, note, paid_at
		FROM salary_payments WHERE username = ? ORDER BY paid_at ASC`, username)
}

func (q *queries) SumPayments(ctx context.Context, username string) (decimal.Decimal, error) {
	return q.sumDecimal(ctx, `
		SELECT COALESCE(SUM(CAST(amount AS REAL)), 0)
		FROM salary_payments WHERE username = ?`, username)
}

func (q *queries) SumPaymentsInRange(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return q.sumDecimal(ctx, `
		SELECT COALESCE(SUM(CAST(amount AS REAL)), 0)
		FROM salary_payments WHERE paid_at >= ? AND paid_at < ?`,
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
}

func (q *queries) queryPayments(ctx context.Context, query string, args ...any) ([]track.SalaryPayment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []track.SalaryPayment
	for rows.Next() {
		var (
			p      track.SalaryPayment
			amount string
			paidAt string
		)
		if err := rows.Scan(&p.ID, &p.Username, &amount, &p.Note, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount, err)
		}
		p.PaidAt, err = time.Parse(time.RFC3339Nano, paidAt)
		if err != nil {
			return nil, fmt.Errorf("bad paid_at %q: %w", paidAt, err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// sumDecimal runs a single-value SUM query. Sums go through REAL casts,
// which is fine for 2-decimal amounts; individual rows stay exact TEXT.
func (q *queries) sumDecimal(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var sum float64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum: %w", err)
	}
	return decimal.NewFromFloat(sum).Round(2), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
