/*
sweeper.go - Automated closure of abandoned sessions

PURPOSE:
  Periodically force-closes ACTIVE sessions abandoned past a fixed
  24-hour threshold, feeding the same accrual path as a normal close.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each overdue session is closed in its own transaction with
      endedAt      = startedAt + 24h
      accruedHours = 24 exactly (NOT the actual wall-clock gap)
    and wage accrued at the GLOBAL rate, not the worker's override.
    Both simplifications are preserved deliberately; re-confirm the
    intended business rule before changing either.
  - Emits a best-effort auto-ended notification per closure
  - Must not run concurrently with itself: single active instance

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the sweeper is active (disabled under test/CI)

USAGE:
  sweeper := NewOverdueSweeper(store, bus)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - clock/engine.go: The normal close path this mirrors
  - event/bus.go: Notification side channel
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/event"
	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/track"
)

// OverdueThreshold is how long an active session may stay open before the
// sweeper force-closes it.
const OverdueThreshold = 24 * time.Hour

// overdueAccrual is the fixed hours credited on a forced close.
var overdueAccrual = decimal.NewFromInt(24)

// OverdueSweeper force-closes sessions abandoned past the threshold.
type OverdueSweeper struct {
	Store         track.TxStore
	Events        *event.Bus
	CheckInterval time.Duration
	Enabled       bool

	// Clock returns the current time; overridable in tests.
	Clock func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueSweeper creates a sweeper. bus may be nil.
func NewOverdueSweeper(store track.TxStore, bus *event.Bus) *OverdueSweeper {
	return &OverdueSweeper{
		Store:         store,
		Events:        bus,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Clock:         time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper loop.
func (sw *OverdueSweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	sw.ticker = time.NewTicker(sw.CheckInterval)
	sw.wg.Add(1)
	go sw.run()

	log.Printf("[Sweeper] Started with check interval: %v", sw.CheckInterval)
}

// Stop stops the sweeper loop.
func (sw *OverdueSweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ticker != nil {
		sw.ticker.Stop()
		close(sw.stop)
		sw.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (sw *OverdueSweeper) run() {
	defer sw.wg.Done()

	// Run immediately on start
	sw.sweep()

	for {
		select {
		case <-sw.ticker.C:
			sw.sweep()
		case <-sw.stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (sw *OverdueSweeper) RunNow() {
	sw.sweep()
}

func (sw *OverdueSweeper) sweep() {
	ctx := context.Background()
	now := sw.Clock().UTC()
	cutoff := now.Add(-OverdueThreshold)

	overdue, err := sw.Store.OverdueActiveSessions(ctx, cutoff)
	if err != nil {
		log.Printf("[Sweeper] Error listing overdue sessions: %v", err)
		return
	}
	if len(overdue) == 0 {
		return
	}

	closedCount := 0
	for _, seg := range overdue {
		if err := sw.forceClose(ctx, seg.ID); err != nil {
			log.Printf("[Sweeper] Error closing session %s: %v", seg.ID, err)
			continue
		}
		closedCount++
	}

	if closedCount > 0 {
		log.Printf("[Sweeper] Force-closed %d overdue session(s)", closedCount)
	}
}

func (sw *OverdueSweeper) forceClose(ctx context.Context, id string) error {
	var closed *track.WorkSession

	err := sw.Store.WithTx(ctx, func(s track.Store) error {
		seg, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		// Re-check under the transaction: a worker may have closed it
		// between the listing and now.
		if seg == nil || seg.Status != track.StatusActive || !seg.Open() {
			return nil
		}

		endedAt := seg.StartedAt.Add(OverdueThreshold)
		seg.EndedAt = &endedAt
		seg.AccruedHours = overdueAccrual
		seg.Status = track.StatusDone
		if err := s.SaveSession(ctx, *seg); err != nil {
			return err
		}

		global, err := policy.GlobalFor(ctx, s)
		if err != nil {
			return err
		}
		wage := overdueAccrual.Mul(global.HourlyRate)
		if err := s.AddWorkerTotals(ctx, seg.Username, overdueAccrual, wage); err != nil {
			return err
		}

		closed = seg
		return nil
	})
	if err != nil || closed == nil {
		return err
	}

	sw.Events.Publish(event.SessionEvent{
		Kind:      event.SessionAutoEnded,
		SessionID: closed.ID,
		Username:  closed.Username,
		StartedAt: closed.StartedAt,
		EndedAt:   closed.EndedAt,
		Status:    closed.Status,
		At:        sw.Clock().UTC(),
	})
	return nil
}
