package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/eyebeam/focusd/internal/recovery"
	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/eyebeam/focusd/internal/timerange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkWeekly(t *testing.T, bundleID string, wd time.Weekday, start, end int) (w *schedule.Weekly) {
	t.Helper()

	d, err := schedule.NewDay(timerange.Range{Start: start, End: end})
	require.NoError(t, err)

	w = schedule.EmptyWeekly(bundleID)
	w.SetDay(wd, d)

	return w
}

// nextWeekday returns the next instant with the given weekday at the given
// hour/minute, relative to now's week.
func nextWeekday(now time.Time, wd time.Weekday, hour, minute int) (t time.Time) {
	for d := 0; d < 7; d++ {
		cand := now.AddDate(0, 0, d)
		if cand.Weekday() == wd {
			return time.Date(cand.Year(), cand.Month(), cand.Day(), hour, minute, 0, 0, cand.Location())
		}
	}

	return now
}

func TestRecover_StartsMissedWindow(t *testing.T) {
	now := time.Now()
	mon := nextWeekday(now, time.Monday, 9, 30)

	// The schedule allows nothing, so every day is one whole-day blocked
	// window and mon 09:30 falls inside Monday's.
	w := schedule.EmptyWeekly("b1")

	var started bool
	startFn := func(_ context.Context, id string, endDate time.Time) (err error) {
		started = true
		assert.Equal(t, "b1", id)
		assert.False(t, endDate.IsZero())

		return nil
	}

	clearFn := func(context.Context, time.Time) (err error) { return nil }

	err := recovery.Recover(context.Background(), mon, "b1", w, false, time.Time{}, startFn, clearFn)
	require.NoError(t, err)
	assert.True(t, started)
}

func TestRecover_NoActionWhenAlreadyActiveSufficient(t *testing.T) {
	now := time.Now()
	mon := nextWeekday(now, time.Monday, 9, 30)

	w := schedule.EmptyWeekly("b1")

	called := false
	startFn := func(context.Context, string, time.Time) (err error) {
		called = true

		return nil
	}
	clearFn := func(context.Context, time.Time) (err error) {
		called = true

		return nil
	}

	err := recovery.Recover(context.Background(), mon, "b1", w, true, mon.AddDate(0, 0, 1), startFn, clearFn)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRecover_ClearsExpiredWhenPastAllWindows(t *testing.T) {
	now := time.Now()
	// A day with an allowed range covering the whole day means no blocked
	// window at all, so "found" is always false for that day.
	d, err := schedule.NewDay(timerange.Range{Start: 0, End: timerange.MinutesPerDay})
	require.NoError(t, err)

	w := schedule.EmptyWeekly("b1")
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		w.SetDay(wd, d)
	}

	past := now.Add(-time.Hour)

	var cleared bool
	startFn := func(context.Context, string, time.Time) (err error) { return nil }
	clearFn := func(_ context.Context, at time.Time) (err error) {
		cleared = true

		return nil
	}

	err = recovery.Recover(context.Background(), now, "b1", w, true, past, startFn, clearFn)
	require.NoError(t, err)
	assert.True(t, cleared)
}
