/*
Package track provides the core types for the timeclock engine.

PURPOSE:
  This package contains the shared domain types and algorithms for tracking
  hourly workers' clocked time and turning it into payroll obligations.
  The session log is authoritative: "current status" and "elapsed time" are
  always derived by folding over segments, never read from a cached field.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkSession: One contiguous segment of clocked time (a ledger row)
  - Worker: The owning record with append-only cumulative accumulators
  - GlobalPolicy / WorkerOverride / EffectivePolicy: Two-level pay policy
  - SalaryPayment: A payroll write bounded by accrued-but-unpaid balance

DESIGN PRINCIPLES:
  1. Log-as-truth: Segments are closed, never deleted; history is a chain
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Flat config: Policy inheritance is data + a pure merge, not type hierarchy

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence interfaces
  - clock/: State machine over these types
  - payroll/: Balance-validated payment ledger
*/
package track

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION STATUS
// =============================================================================

// SessionStatus is the state of a single work segment.
type SessionStatus string

const (
	// StatusActive is an open segment currently accumulating time.
	StatusActive SessionStatus = "active"

	// StatusPaused is a segment closed by a pause. The paused state is
	// represented by a closed row, not an open one.
	StatusPaused SessionStatus = "paused"

	// StatusDone is a segment closed by an end (terminal per segment).
	StatusDone SessionStatus = "done"

	// StatusOff is a read-side pseudo status: the worker has no segments
	// at all. Never persisted.
	StatusOff SessionStatus = "off"
)

// =============================================================================
// WORK SESSION - One contiguous segment of clocked time
// =============================================================================

// WorkSession is a single segment of a worker's clocked history.
//
// INVARIANTS:
//   - At most one segment per worker with EndedAt == nil at any time.
//   - AccruedHours >= 0, rounded to 2 decimal places on write; 0 while open.
//
// Repeated pause/resume cycles produce a chain of closed segments for the
// same work period, each carrying its own partial AccruedHours, plus one
// currently-open segment.
type WorkSession struct {
	ID           string
	Username     string
	CalendarDay  time.Time // midnight-normalized UTC date derived from StartedAt
	StartedAt    time.Time
	EndedAt      *time.Time // nil means the segment is still open
	AccruedHours decimal.Decimal
	Status       SessionStatus
}

// Open reports whether the segment is still accumulating time.
func (s *WorkSession) Open() bool { return s.EndedAt == nil }

// CalendarDayOf normalizes a timestamp to its midnight UTC date.
func CalendarDayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ElapsedHours computes the hours between start and end, floored at zero and
// rounded to 2 decimal places. This is the single accrual rounding rule for
// both pause and end.
func ElapsedHours(start, end time.Time) decimal.Decimal {
	hours := end.Sub(start).Seconds() / 3600
	if hours < 0 {
		hours = 0
	}
	return decimal.NewFromFloat(hours).Round(2)
}

// =============================================================================
// WORKER - Owning record with cumulative accumulators
// =============================================================================

// Worker is the record that owns sessions and payments, keyed by username.
//
// CumulativeHours and CumulativeWage are append-only accumulators incremented
// exactly once per session close (normal or auto-closed), never recomputed
// from scratch. They must be written in the same transaction as the session
// close or they drift from the log.
type Worker struct {
	Username        string
	Name            string
	CumulativeHours decimal.Decimal
	CumulativeWage  decimal.Decimal
	CreatedAt       time.Time
}

// =============================================================================
// POLICY - Singleton global + optional per-worker override
// =============================================================================

// GlobalPolicy is the singleton pay policy (one row).
type GlobalPolicy struct {
	HourlyRate       decimal.Decimal
	AutoPauseMinutes int
	AutoPauseEnabled bool
}

// WorkerOverride is a per-worker policy override (zero or one per worker).
// A nil field means "inherit global". Stored overrides are always fully
// populated by the resolver's merge rule, but the schema keeps fields
// nullable for compatibility.
type WorkerOverride struct {
	Username         string
	HourlyRate       *decimal.Decimal
	AutoPauseMinutes *int
	AutoPauseEnabled *bool
}

// Provenance records which level a resolved policy field came from.
type Provenance string

const (
	SourceGlobal   Provenance = "global"
	SourceOverride Provenance = "override"
)

// EffectivePolicy is the resolved policy for one worker: override.field if
// present, else global.field, with per-field provenance for API transparency.
// Derived, never persisted.
type EffectivePolicy struct {
	HourlyRate       decimal.Decimal
	AutoPauseMinutes int
	AutoPauseEnabled bool

	HourlyRateSource       Provenance
	AutoPauseMinutesSource Provenance
	AutoPauseEnabledSource Provenance
}

// PolicyPatch is a partial policy update. Nil fields are left untouched.
type PolicyPatch struct {
	HourlyRate       *decimal.Decimal
	AutoPauseMinutes *int
	AutoPauseEnabled *bool
}

// IsEmpty reports whether the patch carries no fields.
func (p PolicyPatch) IsEmpty() bool {
	return p.HourlyRate == nil && p.AutoPauseMinutes == nil && p.AutoPauseEnabled == nil
}

// =============================================================================
// SALARY PAYMENT
// =============================================================================

// SalaryPayment is a payroll write against a worker.
//
// INVARIANT (cross-entity): for every worker, the sum of payment amounts
// never exceeds the wage accrued from done sessions at the resolved rate.
// Equality is permitted.
type SalaryPayment struct {
	ID       string
	Username string
	Amount   decimal.Decimal
	Note     string
	PaidAt   time.Time
}

// PaymentPatch is a partial payment revision. Nil fields are left untouched.
type PaymentPatch struct {
	Amount *decimal.Decimal
	Note   *string
}

// IsEmpty reports whether the patch carries no fields.
func (p PaymentPatch) IsEmpty() bool {
	return p.Amount == nil && p.Note == nil
}
