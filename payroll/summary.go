/*
summary.go - Read-only payroll views

PURPOSE:
  Derived summaries over sessions and payments. Nothing here writes.

TWO VIEWS, TWO RATES:
  SummaryFor (per worker) uses the worker's EFFECTIVE rate.
  Aggregate (company-wide) uses the current GLOBAL rate for every worker.
  The aggregate intentionally ignores per-worker overrides; it is a
  rough company-level number, not a sum of per-worker balances.

PERIODS:
  all   - the beginning of time
  week  - since Monday 00:00 UTC of the current week
  month - since the 1st 00:00 UTC of the current month
  Sessions are bucketed by when they ended (wage accrues at close),
  payments by when they were paid.
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/track"
)

// WorkerSummary is the per-worker payroll position.
type WorkerSummary struct {
	Username          string
	HourlyRate        decimal.Decimal
	HoursAccrued      decimal.Decimal
	WageAccrued       decimal.Decimal
	AmountPaid        decimal.Decimal
	AmountOutstanding decimal.Decimal
}

// Period selects the window for the aggregate view.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period string; empty defaults to all.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodAll, PeriodWeek, PeriodMonth:
		return Period(s), nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", track.ErrInvalidArgument, s)
	}
}

// AggregateSummary is the company-wide payroll position for a period.
type AggregateSummary struct {
	Period      Period
	Accrued     decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
}

// SummaryFor returns the worker's payroll position at the effective rate.
func (l *Ledger) SummaryFor(ctx context.Context, username string) (*WorkerSummary, error) {
	var summary *WorkerSummary
	err := l.Store.WithTx(ctx, func(s track.Store) error {
		eff, err := policy.EffectiveFor(ctx, s, username)
		if err != nil {
			return err
		}
		hours, err := s.SumDoneHours(ctx, username)
		if err != nil {
			return err
		}
		paid, err := s.SumPayments(ctx, username)
		if err != nil {
			return err
		}

		wage := hours.Mul(eff.HourlyRate).Round(2)
		outstanding := wage.Sub(paid)
		if outstanding.IsNegative() {
			outstanding = decimal.Zero
		}

		summary = &WorkerSummary{
			Username:          username,
			HourlyRate:        eff.HourlyRate,
			HoursAccrued:      hours,
			WageAccrued:       wage,
			AmountPaid:        paid,
			AmountOutstanding: outstanding.Round(2),
		}
		return nil
	})
	return summary, err
}

// Aggregate returns the company-wide accrued/paid/outstanding totals for a
// period, valuing hours at the current global rate.
func (l *Ledger) Aggregate(ctx context.Context, period Period) (*AggregateSummary, error) {
	from, to := periodBounds(period, l.now())

	var summary *AggregateSummary
	err := l.Store.WithTx(ctx, func(s track.Store) error {
		global, err := policy.GlobalFor(ctx, s)
		if err != nil {
			return err
		}
		hours, err := s.SumDoneHoursInRange(ctx, from, to)
		if err != nil {
			return err
		}
		paid, err := s.SumPaymentsInRange(ctx, from, to)
		if err != nil {
			return err
		}

		accrued := hours.Mul(global.HourlyRate).Round(2)
		summary = &AggregateSummary{
			Period:      period,
			Accrued:     accrued,
			Paid:        paid,
			Outstanding: accrued.Sub(paid).Round(2),
		}
		return nil
	})
	return summary, err
}

// periodBounds returns [from, to) for the period as of now.
func periodBounds(period Period, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	to := now.Add(time.Second) // inclusive of "right now"

	switch period {
	case PeriodWeek:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday belongs to the week that started last Monday
		}
		monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		return monday, to
	case PeriodMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first, to
	default:
		return time.Time{}, to
	}
}
