/*
Package payroll records salary payments bounded by accrued wage.

PURPOSE:
  Enforces the one cross-entity invariant of the system: for every worker,
  cumulative payments never exceed the wage accrued from done sessions at
  the worker's resolved hourly rate. Equality is permitted - a payment may
  settle the balance exactly.

BALANCE CHECK:
  Within one atomic transaction:
    accrued   = sum(accruedHours over done sessions) x effective rate
    paid      = sum(existing payment amounts)
    remaining = max(0, accrued - paid), rounded to 2 decimals
  A new payment is admitted when amount - remaining <= epsilon.

EPSILONS:
  Create uses 1e-9, revise uses 1e-6. The asymmetry is a historical
  inconsistency preserved for compatibility; do not unify without
  confirming the intended rule.

REVISION:
  Revise re-runs the check with the row's own prior amount excluded from
  the "already paid" side, so raising a payment to the exact remaining
  balance plus its old amount still succeeds.

REMOVAL:
  Deleting a payment needs no re-validation: removals only move the
  balance further from the limit.

SEE ALSO:
  - track/store.go: SumDoneHours / SumPayments aggregates
  - policy/resolver.go: Effective rate resolution
  - summary.go: Read-only per-worker and aggregate views
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/track"
)

// Admission epsilons. The create/revise asymmetry is historical.
var (
	payEpsilon    = decimal.NewFromFloat(1e-9)
	reviseEpsilon = decimal.NewFromFloat(1e-6)
)

// Ledger validates and records salary payments.
type Ledger struct {
	Store track.TxStore

	// Clock returns the current time; overridable in tests.
	Clock func() time.Time
}

// NewLedger creates a payroll ledger over the given store.
func NewLedger(store track.TxStore) *Ledger {
	return &Ledger{Store: store, Clock: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Clock != nil {
		return l.Clock().UTC()
	}
	return time.Now().UTC()
}

// =============================================================================
// WRITES
// =============================================================================

// Pay records a payment against the worker after validating it against the
// remaining balance inside one transaction.
func (l *Ledger) Pay(ctx context.Context, username string, amount decimal.Decimal, note string) (*track.SalaryPayment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", track.ErrInvalidArgument)
	}

	var payment *track.SalaryPayment
	err := l.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}

		remaining, err := remainingBalance(ctx, s, username, decimal.Zero)
		if err != nil {
			return err
		}
		if amount.Sub(remaining).GreaterThan(payEpsilon) {
			return &track.ExceedsBalanceError{Username: username, Requested: amount, Remaining: remaining}
		}

		p := track.SalaryPayment{
			ID:       uuid.NewString(),
			Username: username,
			Amount:   amount,
			Note:     note,
			PaidAt:   l.now(),
		}
		if err := s.SavePayment(ctx, p); err != nil {
			return err
		}
		payment = &p
		return nil
	})
	return payment, err
}

// Revise patches an existing payment, re-checking the balance with the
// row's own prior amount excluded from the already-paid side.
func (l *Ledger) Revise(ctx context.Context, id string, patch track.PaymentPatch) (*track.SalaryPayment, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: payment patch is empty", track.ErrInvalidArgument)
	}
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", track.ErrInvalidArgument)
	}

	var payment *track.SalaryPayment
	err := l.Store.WithTx(ctx, func(s track.Store) error {
		p, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return track.ErrPaymentNotFound
		}

		w, err := s.GetWorker(ctx, p.Username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}

		if patch.Amount != nil {
			remaining, err := remainingBalance(ctx, s, p.Username, p.Amount)
			if err != nil {
				return err
			}
			if patch.Amount.Sub(remaining).GreaterThan(reviseEpsilon) {
				return &track.ExceedsBalanceError{Username: p.Username, Requested: *patch.Amount, Remaining: remaining}
			}
			p.Amount = *patch.Amount
		}
		if patch.Note != nil {
			p.Note = *patch.Note
		}

		if err := s.SavePayment(ctx, *p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	return payment, err
}

// Remove deletes a payment. No balance re-validation: removals can only
// move the balance further from the limit, never over it.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	return l.Store.WithTx(ctx, func(s track.Store) error {
		p, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return track.ErrPaymentNotFound
		}
		return s.DeletePayment(ctx, id)
	})
}

// PaymentsFor returns the worker's payment history.
func (l *Ledger) PaymentsFor(ctx context.Context, username string) ([]track.SalaryPayment, error) {
	var payments []track.SalaryPayment
	err := l.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}
		payments, err = s.PaymentsFor(ctx, username)
		return err
	})
	return payments, err
}

// =============================================================================
// BALANCE
// =============================================================================

// remainingBalance computes max(0, accrued - paid) rounded to 2 decimals,
// with excluded subtracted from the paid side (a revised row's prior amount).
func remainingBalance(ctx context.Context, s track.Store, username string, excluded decimal.Decimal) (decimal.Decimal, error) {
	eff, err := policy.EffectiveFor(ctx, s, username)
	if err != nil {
		return decimal.Zero, err
	}

	hours, err := s.SumDoneHours(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := s.SumPayments(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}

	accrued := hours.Mul(eff.HourlyRate)
	remaining := accrued.Sub(paid.Sub(excluded))
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining.Round(2), nil
}
