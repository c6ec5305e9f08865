package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeclock/store/sqlite"
	"github.com/warp/timeclock/track"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.SaveWorker(context.Background(), track.Worker{
		Username:  "alice",
		Name:      "Alice",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return store
}

func openSession(username string, startedAt time.Time) track.WorkSession {
	return track.WorkSession{
		ID:          uuid.NewString(),
		Username:    username,
		CalendarDay: track.CalendarDayOf(startedAt),
		StartedAt:   startedAt,
		Status:      track.StatusActive,
	}
}

func TestStore_SecondOpenSegment_Rejected(t *testing.T) {
	// The "at most one open segment per worker" invariant is enforced by a
	// partial unique index, not only by engine-level checks.
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSession(ctx, openSession("alice", now)))

	err := store.SaveSession(ctx, openSession("alice", now.Add(time.Minute)))
	assert.ErrorIs(t, err, track.ErrConflictingSession)
}

func TestStore_OpenSegmentsForDifferentWorkers_Allowed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveWorker(ctx, track.Worker{Username: "bob", Name: "Bob", CreatedAt: now}))

	require.NoError(t, store.SaveSession(ctx, openSession("alice", now)))
	assert.NoError(t, store.SaveSession(ctx, openSession("bob", now)))
}

func TestStore_ClosingFreesTheSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := openSession("alice", now)
	require.NoError(t, store.SaveSession(ctx, first))

	ended := now.Add(time.Hour)
	first.EndedAt = &ended
	first.AccruedHours = decimal.NewFromInt(1)
	first.Status = track.StatusDone
	require.NoError(t, store.SaveSession(ctx, first))

	assert.NoError(t, store.SaveSession(ctx, openSession("alice", ended)),
		"a new open segment is allowed once the previous one is closed")
}

func TestStore_SessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC)
	ended := started.Add(90 * time.Minute)

	in := track.WorkSession{
		ID:           uuid.NewString(),
		Username:     "alice",
		CalendarDay:  track.CalendarDayOf(started),
		StartedAt:    started,
		EndedAt:      &ended,
		AccruedHours: decimal.NewFromFloat(1.5),
		Status:       track.StatusDone,
	}
	require.NoError(t, store.SaveSession(ctx, in))

	out, err := store.GetSession(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Username, out.Username)
	assert.True(t, in.CalendarDay.Equal(out.CalendarDay))
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
	require.NotNil(t, out.EndedAt)
	assert.True(t, ended.Equal(*out.EndedAt))
	assert.True(t, out.AccruedHours.Equal(decimal.NewFromFloat(1.5)))
	assert.Equal(t, track.StatusDone, out.Status)
}

func TestStore_MissingRows_ReturnNilNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seg, err := store.GetSession(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, seg)

	w, err := store.GetWorker(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, w)

	g, err := store.GlobalPolicy(ctx)
	assert.NoError(t, err)
	assert.Nil(t, g)

	o, err := store.OverrideFor(ctx, "alice")
	assert.NoError(t, err)
	assert.Nil(t, o)

	p, err := store.GetPayment(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	id := uuid.NewString()
	err := store.WithTx(ctx, func(s track.Store) error {
		seg := openSession("alice", time.Now().UTC())
		seg.ID = id
		if err := s.SaveSession(ctx, seg); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	seg, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, seg, "write inside a failed transaction must not persist")
}

func TestStore_AddWorkerTotals_Accumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddWorkerTotals(ctx, "alice", decimal.NewFromInt(2), decimal.NewFromInt(2000)))
	require.NoError(t, store.AddWorkerTotals(ctx, "alice", decimal.NewFromInt(3), decimal.NewFromInt(3000)))

	w, err := store.GetWorker(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, w.CumulativeHours.Equal(decimal.NewFromInt(5)))
	assert.True(t, w.CumulativeWage.Equal(decimal.NewFromInt(5000)))
}

func TestStore_AddWorkerTotals_UnknownWorker(t *testing.T) {
	store := newTestStore(t)

	err := store.AddWorkerTotals(context.Background(), "ghost", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, track.ErrWorkerNotFound)
}

func TestStore_SumDoneHours_IgnoresPausedSegments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ended := now.Add(-time.Hour)
	for _, status := range []track.SessionStatus{track.StatusDone, track.StatusPaused} {
		seg := openSession("alice", ended.Add(-time.Hour))
		seg.EndedAt = &ended
		seg.AccruedHours = decimal.NewFromInt(1)
		seg.Status = status
		require.NoError(t, store.SaveSession(ctx, seg))
	}

	sum, err := store.SumDoneHours(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(1)),
		"only done segments count toward payable hours, got %s", sum)
}
