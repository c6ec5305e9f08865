/*
Package clock implements the work-session state machine.

PURPOSE:
  Starts, pauses, resumes and ends a worker's clocked segments, and
  reconstructs "current status" and "elapsed time" from the chain of
  segments. The segment log is authoritative; reads are always a fold
  over the day's segments, never a cached field.

STATES (per segment):
  active -> paused  (pause CLOSES the row: endedAt set, partial hours banked)
  paused -> active  (resume opens a BRAND-NEW row in the normal case)
  active -> done    (end closes the row and accrues wage)

  "off" is a read-side pseudo state for workers with no segments.

WHY PAUSE CLOSES THE ROW:
  History-as-log. Repeated pause/resume cycles leave a chain of closed
  segments for one work period, each carrying its own partial hours,
  plus at most one open segment. Elapsed time is the sum over the chain.
  A legacy branch remains in Resume for rows that are paused while still
  open (a prior data model where pause did not close the row); it flips
  the status in place instead of opening a new row.

ACCRUAL:
  Ending a segment resolves the worker's effective hourly rate and
  increments the worker's cumulative hours/wage accumulators in the SAME
  transaction as the session close. If the two writes were split, a
  failure between them would leave the accumulators drifted from the log.

SEE ALSO:
  - track/types.go: WorkSession, statuses, ElapsedHours
  - reconstruct.go: Read-side status/elapsed fold
  - policy/resolver.go: Effective rate used for accrual
*/
package clock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/timeclock/event"
	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/track"
)

// Engine drives session transitions over a transactional store.
type Engine struct {
	Store  track.TxStore
	Events *event.Bus

	// Clock returns the current time; overridable in tests.
	Clock func() time.Time
}

// NewEngine creates a session engine. bus may be nil (no notifications).
func NewEngine(store track.TxStore, bus *event.Bus) *Engine {
	return &Engine{Store: store, Events: bus, Clock: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return time.Now().UTC()
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Start opens a new active segment for the worker. Idempotent: if an open
// segment already exists (active, or paused via the legacy path) it is
// returned unchanged - no error, no duplicate.
func (e *Engine) Start(ctx context.Context, username string) (*track.WorkSession, error) {
	now := e.now()
	var session *track.WorkSession
	var existed bool

	err := e.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}

		open, err := s.OpenSessionFor(ctx, username)
		if err != nil {
			return err
		}
		if open != nil {
			session = open
			existed = true
			return nil
		}

		fresh := newSegment(username, now)
		if err := s.SaveSession(ctx, fresh); err != nil {
			return err
		}
		session = &fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !existed {
		e.publish(event.SessionStarted, session, now)
	}
	return session, nil
}

// Pause closes an active open segment, banking its partial hours with
// status paused. The paused state is a closed row, not an open one.
func (e *Engine) Pause(ctx context.Context, id string) (*track.WorkSession, error) {
	now := e.now()
	var session *track.WorkSession

	err := e.Store.WithTx(ctx, func(s track.Store) error {
		seg, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if seg == nil {
			return track.ErrSessionNotFound
		}
		if seg.Status != track.StatusActive || !seg.Open() {
			return &track.InvalidTransitionError{SessionID: id, Status: seg.Status, Open: seg.Open(), Op: "pause"}
		}

		seg.EndedAt = &now
		seg.AccruedHours = track.ElapsedHours(seg.StartedAt, now)
		seg.Status = track.StatusPaused
		if err := s.SaveSession(ctx, *seg); err != nil {
			return err
		}
		session = seg
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(event.SessionPaused, session, now)
	return session, nil
}

// Resume continues a paused work period.
//
// Normal case: the paused segment is closed, so a brand-new active segment
// is opened (fresh StartedAt), after verifying no other open segment exists.
// Legacy case: the paused segment is somehow still open; flip its status to
// active in place, no new row.
func (e *Engine) Resume(ctx context.Context, id string) (*track.WorkSession, error) {
	now := e.now()
	var session *track.WorkSession

	err := e.Store.WithTx(ctx, func(s track.Store) error {
		seg, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if seg == nil {
			return track.ErrSessionNotFound
		}
		if seg.Status != track.StatusPaused {
			return &track.InvalidTransitionError{SessionID: id, Status: seg.Status, Open: seg.Open(), Op: "resume"}
		}

		if seg.Open() {
			// Legacy rows paused without being closed: flip in place.
			seg.Status = track.StatusActive
			if err := s.SaveSession(ctx, *seg); err != nil {
				return err
			}
			session = seg
			return nil
		}

		open, err := s.OpenSessionFor(ctx, seg.Username)
		if err != nil {
			return err
		}
		if open != nil {
			return track.ErrConflictingSession
		}

		fresh := newSegment(seg.Username, now)
		if err := s.SaveSession(ctx, fresh); err != nil {
			return err
		}
		session = &fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(event.SessionResumed, session, now)
	return session, nil
}

// End closes an active open segment with status done and accrues wage:
// the worker's cumulative hours and wage are incremented by the elapsed
// hours and elapsed x effective rate, in the same transaction.
func (e *Engine) End(ctx context.Context, id string) (*track.WorkSession, error) {
	now := e.now()
	var session *track.WorkSession

	err := e.Store.WithTx(ctx, func(s track.Store) error {
		seg, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if seg == nil {
			return track.ErrSessionNotFound
		}
		if seg.Status != track.StatusActive || !seg.Open() {
			return &track.InvalidTransitionError{SessionID: id, Status: seg.Status, Open: seg.Open(), Op: "end"}
		}

		elapsed := track.ElapsedHours(seg.StartedAt, now)
		seg.EndedAt = &now
		seg.AccruedHours = elapsed
		seg.Status = track.StatusDone
		if err := s.SaveSession(ctx, *seg); err != nil {
			return err
		}

		eff, err := policy.EffectiveFor(ctx, s, seg.Username)
		if err != nil {
			return err
		}
		wage := elapsed.Mul(eff.HourlyRate)
		if err := s.AddWorkerTotals(ctx, seg.Username, elapsed, wage); err != nil {
			return err
		}

		session = seg
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(event.SessionEnded, session, now)
	return session, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newSegment(username string, now time.Time) track.WorkSession {
	return track.WorkSession{
		ID:          uuid.NewString(),
		Username:    username,
		CalendarDay: track.CalendarDayOf(now),
		StartedAt:   now,
		Status:      track.StatusActive,
	}
}

func (e *Engine) publish(kind event.Kind, s *track.WorkSession, at time.Time) {
	if e.Events == nil || s == nil {
		return
	}
	e.Events.Publish(event.SessionEvent{
		Kind:      kind,
		SessionID: s.ID,
		Username:  s.Username,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Status:    s.Status,
		At:        at,
	})
}
