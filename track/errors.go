/*
errors.go - Centralized error taxonomy for the timeclock engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error is surfaced to callers with a stable code and a
  human-readable message; none are retried automatically by the core.

ERROR CATEGORIES:
  1. Lookup errors - unknown worker/session/payment
  2. Validation errors - malformed input, detected before any transaction opens
  3. State machine errors - transition preconditions violated
  4. Balance errors - payroll write would overdraw the accrued balance
  5. Store conflicts - concurrent modification, safe for the caller to retry

USAGE:
  Callers match with errors.Is / errors.As:

    if errors.Is(err, track.ErrInvalidTransition) { ... }

    var balErr *track.ExceedsBalanceError
    if errors.As(err, &balErr) {
        log.Println(balErr.Remaining)
    }

SEE ALSO:
  - clock/engine.go: raises transition errors
  - payroll/ledger.go: raises balance errors
  - api/handlers.go: maps these to HTTP statuses
*/
package track

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWorkerNotFound is returned when the referenced worker does not exist.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPaymentNotFound is returned when a payment id is unknown.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidArgument is returned for malformed or out-of-range input
	// (non-positive amount, empty patch). Detected before any transaction opens.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition is returned when a state machine precondition is
	// violated (e.g. ending a session that is already done).
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrConflictingSession is returned when resume would open a second
	// segment while another open segment exists for the worker.
	ErrConflictingSession = errors.New("another open session exists")

	// ErrExceedsBalance is returned when a payroll write would overdraw the
	// worker's accrued-but-unpaid balance.
	ErrExceedsBalance = errors.New("amount exceeds remaining balance")

	// ErrForbidden is returned when the acting identity is neither the
	// target worker nor an elevated actor.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when the store detects a concurrent
	// modification. The caller may safely retry.
	ErrConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError reports which operation was attempted against which
// segment state.
type InvalidTransitionError struct {
	SessionID string
	Status    SessionStatus
	Open      bool
	Op        string // "pause", "resume", "end"
}

func (e *InvalidTransitionError) Error() string {
	openness := "closed"
	if e.Open {
		openness = "open"
	}
	return fmt.Sprintf("cannot %s session %s: segment is %s (%s)",
		e.Op, e.SessionID, e.Status, openness)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ExceedsBalanceError reports a payroll overdraw. The message includes the
// current remaining balance so the caller can adjust.
type ExceedsBalanceError struct {
	Username  string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment of %s exceeds remaining balance %s for %s",
		e.Requested.StringFixed(2), e.Remaining.StringFixed(2), e.Username)
}

func (e *ExceedsBalanceError) Unwrap() error { return ErrExceedsBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflictingSession) ||
		errors.Is(err, ErrExceedsBalance) ||
		errors.Is(err, ErrForbidden) ||
		IsNotFound(err)
}
