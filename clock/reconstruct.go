/*
reconstruct.go - Read-side status and elapsed-time reconstruction

PURPOSE:
  A worker's "current status" and "elapsed time today" are never stored.
  They are folded from the segment log on every read:

    status  = open segment's status if one exists,
              else the most recently started segment's status,
              else "off"

    elapsed = sum of accruedHours over the day's closed segments
              + live delta (now - startedAt) ONLY if the open segment
                is active; a paused-but-open legacy segment contributes
                no live delta

  The sum never decreases as time advances: pause banks the live delta
  into a closed segment, resume restarts the delta at zero.
*/
package clock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/track"
)

// WorkerStatus is the reconstructed view of a worker's current clock state.
type WorkerStatus struct {
	Username string
	Status   track.SessionStatus
	// Open is the currently open segment, if any.
	Open *track.WorkSession
	// ElapsedHours is the banked hours of today's closed segments plus the
	// open segment's live delta when it is active. Rounded to 2 decimals.
	ElapsedHours decimal.Decimal
}

// CurrentStatus reconstructs the worker's status and elapsed time as of now.
func (e *Engine) CurrentStatus(ctx context.Context, username string) (*WorkerStatus, error) {
	now := e.now()
	var st *WorkerStatus

	err := e.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}

		reconstructed, err := Reconstruct(ctx, s, username, now)
		if err != nil {
			return err
		}
		st = reconstructed
		return nil
	})
	return st, err
}

// Reconstruct folds the worker's segments into a WorkerStatus as of the
// given instant. Exported so read paths outside the engine (reports,
// handlers with their own transaction) can reuse the fold.
func Reconstruct(ctx context.Context, s track.Store, username string, now time.Time) (*WorkerStatus, error) {
	st := &WorkerStatus{
		Username:     username,
		Status:       track.StatusOff,
		ElapsedHours: decimal.Zero,
	}

	open, err := s.OpenSessionFor(ctx, username)
	if err != nil {
		return nil, err
	}

	day := track.CalendarDayOf(now)
	if open != nil {
		st.Status = open.Status
		st.Open = open
		day = open.CalendarDay
	} else {
		latest, err := s.LatestSessionFor(ctx, username)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			st.Status = latest.Status
		}
	}

	segments, err := s.SessionsForDay(ctx, username, day)
	if err != nil {
		return nil, err
	}

	elapsed := decimal.Zero
	for i := range segments {
		if !segments[i].Open() {
			elapsed = elapsed.Add(segments[i].AccruedHours)
		}
	}
	if open != nil && open.Status == track.StatusActive {
		elapsed = elapsed.Add(track.ElapsedHours(open.StartedAt, now))
	}
	st.ElapsedHours = elapsed.Round(2)

	return st, nil
}

// SessionsForDay returns the worker's segments for a calendar day, ordered
// by start time. The day's clocked history is exactly this ordered set.
func (e *Engine) SessionsForDay(ctx context.Context, username string, day time.Time) ([]track.WorkSession, error) {
	var sessions []track.WorkSession
	err := e.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}
		sessions, err = s.SessionsForDay(ctx, username, track.CalendarDayOf(day))
		return err
	})
	return sessions, err
}
