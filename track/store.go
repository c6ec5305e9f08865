/*
store.go - Persistence interfaces for the timeclock engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the production implementation lives in store/sqlite.

KEY INTERFACES:
  SessionStore: Work segment persistence and aggregate reads
  WorkerStore:  Worker records and cumulative accumulators
  PolicyStore:  Global singleton + per-worker overrides
  PaymentStore: Salary payments
  Store:        All of the above (what a transaction sees)
  TxStore:      Store plus WithTx for atomic multi-step sequences

TRANSACTION BOUNDARY:
  The service holds no in-process coordination primitive beyond what the
  store provides. Every read-then-write sequence that must not race
  (closing a session while accruing wage, validating a payment against a
  live balance, merging an override against current values) runs inside
  a single WithTx call - the database transaction is the unit of
  consistency, not a lock held in application memory.

SEE ALSO:
  - store/sqlite/sqlite.go: Concrete implementation
  - clock/engine.go, payroll/ledger.go, policy/resolver.go: Consumers
*/
package track

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// SessionStore persists work segments and answers the aggregate questions
// the state machine and the payroll ledger need.
//
// Lookups return (nil, nil) when no matching row exists; callers translate
// that into the appropriate taxonomy error.
type SessionStore interface {
	// SaveSession inserts or updates a segment. Inserting a second open
	// segment for the same worker fails with ErrConflictingSession
	// (enforced by the store, not just by the engine).
	SaveSession(ctx context.Context, s WorkSession) error

	// GetSession returns a segment by id, or nil if unknown.
	GetSession(ctx context.Context, id string) (*WorkSession, error)

	// OpenSessionFor returns the worker's open segment (EndedAt null), or nil.
	OpenSessionFor(ctx context.Context, username string) (*WorkSession, error)

	// LatestSessionFor returns the worker's most recently started segment, or nil.
	LatestSessionFor(ctx context.Context, username string) (*WorkSession, error)

	// SessionsForDay returns the worker's segments whose StartedAt falls on
	// the given calendar day, ordered by StartedAt ascending.
	SessionsForDay(ctx context.Context, username string, day time.Time) ([]WorkSession, error)

	// SumDoneHours sums AccruedHours over the worker's done segments, all time.
	SumDoneHours(ctx context.Context, username string) (decimal.Decimal, error)

	// SumDoneHoursInRange sums AccruedHours over done segments across ALL
	// workers with EndedAt in [from, to). Used by the aggregate payroll view.
	SumDoneHoursInRange(ctx context.Context, from, to time.Time) (decimal.Decimal, error)

	// OverdueActiveSessions returns open active segments started before the
	// given cutoff, ordered by StartedAt ascending.
	OverdueActiveSessions(ctx context.Context, startedBefore time.Time) ([]WorkSession, error)
}

// =============================================================================
// WORKER STORE
// =============================================================================

// WorkerStore persists worker records keyed by username.
type WorkerStore interface {
	// GetWorker returns a worker by username, or nil if unknown.
	GetWorker(ctx context.Context, username string) (*Worker, error)

	// SaveWorker inserts or updates a worker record.
	SaveWorker(ctx context.Context, w Worker) error

	// ListWorkers returns all workers ordered by username.
	ListWorkers(ctx context.Context) ([]Worker, error)

	// AddWorkerTotals increments the worker's cumulative accumulators.
	// Must be called inside the same transaction as the session close.
	AddWorkerTotals(ctx context.Context, username string, hours, wage decimal.Decimal) error
}

// =============================================================================
// POLICY STORE
// =============================================================================

// PolicyStore persists the singleton global policy and per-worker overrides.
type PolicyStore interface {
	// GlobalPolicy returns the singleton, or nil if it has never been written.
	GlobalPolicy(ctx context.Context) (*GlobalPolicy, error)

	// SaveGlobalPolicy writes the singleton (insert or replace).
	SaveGlobalPolicy(ctx context.Context, p GlobalPolicy) error

	// OverrideFor returns the worker's override, or nil if none exists.
	OverrideFor(ctx context.Context, username string) (*WorkerOverride, error)

	// SaveOverride writes the worker's override (insert or replace).
	SaveOverride(ctx context.Context, o WorkerOverride) error

	// DeleteOverride removes the worker's override. No-op if none exists.
	DeleteOverride(ctx context.Context, username string) error
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

// PaymentStore persists salary payments.
type PaymentStore interface {
	// SavePayment inserts or updates a payment.
	SavePayment(ctx context.Context, p SalaryPayment) error

	// GetPayment returns a payment by id, or nil if unknown.
	GetPayment(ctx context.Context, id string) (*SalaryPayment, error)

	// DeletePayment removes a payment. No-op if the id is unknown.
	DeletePayment(ctx context.Context, id string) error

	// PaymentsFor returns the worker's payments ordered by PaidAt ascending.
	PaymentsFor(ctx context.Context, username string) ([]SalaryPayment, error)

	// SumPayments sums the worker's payment amounts, all time.
	SumPayments(ctx context.Context, username string) (decimal.Decimal, error)

	// SumPaymentsInRange sums payment amounts across ALL workers with
	// PaidAt in [from, to). Used by the aggregate payroll view.
	SumPaymentsInRange(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// =============================================================================
// COMBINED + TRANSACTIONAL STORE
// =============================================================================

// Store is the full persistence surface a transaction sees.
type Store interface {
	SessionStore
	WorkerStore
	PolicyStore
	PaymentStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a single database transaction.
	// If fn returns an error the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
