package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeclock/api"
	"github.com/warp/timeclock/event"
	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/store/sqlite"
	"github.com/warp/timeclock/track"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestSweeper(t *testing.T) (*api.OverdueSweeper, *sqlite.Store, time.Time) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2025, time.June, 3, 12, 0, 0, 0, time.UTC)

	err = store.SaveWorker(context.Background(), track.Worker{
		Username:  "alice",
		Name:      "Alice",
		CreatedAt: now,
	})
	require.NoError(t, err)

	sweeper := api.NewOverdueSweeper(store, nil)
	sweeper.Clock = func() time.Time { return now }
	return sweeper, store, now
}

func addActiveSession(t *testing.T, store *sqlite.Store, username string, startedAt time.Time) track.WorkSession {
	t.Helper()
	seg := track.WorkSession{
		ID:          uuid.NewString(),
		Username:    username,
		CalendarDay: track.CalendarDayOf(startedAt),
		StartedAt:   startedAt,
		Status:      track.StatusActive,
	}
	require.NoError(t, store.SaveSession(context.Background(), seg))
	return seg
}

// =============================================================================
// SWEEP BEHAVIOR
// =============================================================================

func TestSweeper_ForceClosesOverdueSession(t *testing.T) {
	// GIVEN: An active session started 30 hours ago
	// WHEN:  The sweeper runs
	// THEN:  The session closes with endedAt = startedAt + 24h and exactly
	//        24.00 accrued hours, NOT the 30-hour wall-clock gap

	sweeper, store, now := newTestSweeper(t)
	ctx := context.Background()

	seg := addActiveSession(t, store, "alice", now.Add(-30*time.Hour))

	sweeper.RunNow()

	closed, err := store.GetSession(ctx, seg.ID)
	require.NoError(t, err)
	assert.Equal(t, track.StatusDone, closed.Status)
	require.NotNil(t, closed.EndedAt)
	assert.Equal(t, seg.StartedAt.Add(24*time.Hour), *closed.EndedAt)
	assert.True(t, closed.AccruedHours.Equal(decimal.NewFromInt(24)),
		"accrued: %s", closed.AccruedHours)
}

func TestSweeper_AccruesAtGlobalRate_IgnoresOverride(t *testing.T) {
	// GIVEN: Alice has an hourly-rate override of 500, global is 1000
	// WHEN:  The sweeper force-closes her overdue session
	// THEN:  Wage accrues at the GLOBAL rate: 24 x 1000 = 24000

	sweeper, store, now := newTestSweeper(t)
	ctx := context.Background()

	resolver := policy.NewResolver(store)
	rate := decimal.NewFromInt(500)
	_, err := resolver.SetOverride(ctx, "alice", track.PolicyPatch{HourlyRate: &rate})
	require.NoError(t, err)

	addActiveSession(t, store, "alice", now.Add(-30*time.Hour))

	sweeper.RunNow()

	w, err := store.GetWorker(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.CumulativeHours.Equal(decimal.NewFromInt(24)))
	assert.True(t, w.CumulativeWage.Equal(decimal.NewFromInt(24000)),
		"wage: %s", w.CumulativeWage)
}

func TestSweeper_LeavesRecentSessionsAlone(t *testing.T) {
	// GIVEN: An active session started 23 hours ago
	// WHEN:  The sweeper runs
	// THEN:  The session stays open

	sweeper, store, now := newTestSweeper(t)
	ctx := context.Background()

	seg := addActiveSession(t, store, "alice", now.Add(-23*time.Hour))

	sweeper.RunNow()

	open, err := store.GetSession(ctx, seg.ID)
	require.NoError(t, err)
	assert.Equal(t, track.StatusActive, open.Status)
	assert.True(t, open.Open())
}

func TestSweeper_ClosesMultipleOverdueSessions(t *testing.T) {
	sweeper, store, now := newTestSweeper(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWorker(ctx, track.Worker{Username: "bob", Name: "Bob", CreatedAt: now}))

	a := addActiveSession(t, store, "alice", now.Add(-30*time.Hour))
	b := addActiveSession(t, store, "bob", now.Add(-48*time.Hour))

	sweeper.RunNow()

	for _, id := range []string{a.ID, b.ID} {
		seg, err := store.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, track.StatusDone, seg.Status)
	}
}

func TestSweeper_PublishesAutoEndedEvent(t *testing.T) {
	sweeper, store, now := newTestSweeper(t)

	bus := event.NewBus()
	events, cancel := bus.Subscribe(4)
	defer cancel()
	sweeper.Events = bus

	seg := addActiveSession(t, store, "alice", now.Add(-30*time.Hour))

	sweeper.RunNow()

	select {
	case ev := <-events:
		assert.Equal(t, event.SessionAutoEnded, ev.Kind)
		assert.Equal(t, seg.ID, ev.SessionID)
		assert.Equal(t, "alice", ev.Username)
	default:
		t.Fatal("expected an auto-ended event")
	}
}

func TestSweeper_Disabled_DoesNotStart(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t)
	sweeper.Enabled = false

	// Start must be a no-op; Stop must not hang or panic afterwards.
	sweeper.Start()
	sweeper.Stop()
}
