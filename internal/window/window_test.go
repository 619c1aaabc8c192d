package window_test

import (
	"testing"
	"time"

	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/eyebeam/focusd/internal/timerange"
	"github.com/eyebeam/focusd/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario A: Bundle B1 allows Mon 09:00-17:00; other days empty. now = Sun
// 12:00.  Materializer for week_offset=0 should yield a Monday window
// [00:00-09:00), a Monday window [17:00-24:00), and further whole-day
// windows for the following days not yet past.
func TestMaterialize_ScenarioA(t *testing.T) {
	now := time.Date(2024, time.December, 22, 12, 0, 0, 0, time.UTC) // Sunday.

	workHours, err := schedule.NewDay(timerange.Range{Start: 9 * 60, End: 17 * 60})
	require.NoError(t, err)

	w := schedule.EmptyWeekly("b1")
	w.SetDay(time.Monday, workHours)

	windows, err := window.Materialize(w, 0, now)
	require.NoError(t, err)

	var mondayWindows []window.Window
	for _, win := range windows {
		if win.Day == time.Monday {
			mondayWindows = append(mondayWindows, win)
		}
	}

	require.Len(t, mondayWindows, 2)
	assert.Equal(t, 0, mondayWindows[0].StartMinutes)
	assert.Equal(t, 9*60, mondayWindows[0].DurationMinutes)
	assert.Equal(t, 17*60, mondayWindows[1].StartMinutes)
	assert.Equal(t, timerange.MinutesPerDay-17*60, mondayWindows[1].DurationMinutes)

	// Sunday itself is fully blocked (empty day) but now is inside it, so
	// the window must be clipped to start at now, not at 00:00.
	for _, win := range windows {
		if win.Day == time.Sunday {
			assert.True(t, win.StartWallclock.Equal(now), "sunday window should clip to now")
		}
	}
}

// scenario B: B1 allows Mon 09:00-12:00; B2 allows Mon 10:00-14:00.
// Merged blocks on Monday are [00:00-10:00) and [12:00-24:00), each
// contributed by both B1 and B2; only [10:00-12:00), which both allow, is
// left unblocked.
func TestMergeWindows_ScenarioB(t *testing.T) {
	now := time.Date(2024, time.December, 23, 0, 0, 0, 0, time.UTC) // Monday midnight.

	b1Hours, err := schedule.NewDay(timerange.Range{Start: 9 * 60, End: 12 * 60})
	require.NoError(t, err)
	b2Hours, err := schedule.NewDay(timerange.Range{Start: 10 * 60, End: 14 * 60})
	require.NoError(t, err)

	b1 := schedule.EmptyWeekly("b1")
	b1.SetDay(time.Monday, b1Hours)
	b2 := schedule.EmptyWeekly("b2")
	b2.SetDay(time.Monday, b2Hours)

	w1, err := window.Materialize(b1, 0, now)
	require.NoError(t, err)
	w2, err := window.Materialize(b2, 0, now)
	require.NoError(t, err)

	all := append(w1, w2...)
	merged := window.MergeWindows(all)

	var mondayMerged []window.Window
	for _, win := range merged {
		if win.Day == time.Monday {
			mondayMerged = append(mondayMerged, win)
		}
	}

	// Union of per-bundle blocked minutes on Monday: B1 blocks [0,540)+[720,1440),
	// B2 blocks [0,600)+[840,1440). Union = [0,600)+[720,1440). Assert the
	// union of minutes matches, which is the invariant that actually matters
	// (spec invariant 6), not the exact segment count.
	var totalMinutes int
	for _, win := range mondayMerged {
		totalMinutes += win.DurationMinutes
		assert.NotEmpty(t, win.BundleIDs)
	}

	assert.Equal(t, timerange.MinutesPerDay-(12*60-10*60), totalMinutes)
}

func TestMergeWindows_Deterministic(t *testing.T) {
	now := time.Date(2024, time.December, 22, 0, 0, 0, 0, time.UTC)

	b1Hours, err := schedule.NewDay(timerange.Range{Start: 9 * 60, End: 12 * 60})
	require.NoError(t, err)
	b2Hours, err := schedule.NewDay(timerange.Range{Start: 10 * 60, End: 14 * 60})
	require.NoError(t, err)

	b1 := schedule.EmptyWeekly("b1")
	b1.SetDay(time.Monday, b1Hours)
	b2 := schedule.EmptyWeekly("b2")
	b2.SetDay(time.Monday, b2Hours)

	w1, _ := window.Materialize(b1, 0, now)
	w2, _ := window.Materialize(b2, 0, now)

	mergedA := window.MergeWindows(append(append([]window.Window{}, w1...), w2...))
	mergedB := window.MergeWindows(append(append([]window.Window{}, w1...), w2...))

	require.Equal(t, len(mergedA), len(mergedB))
	for i := range mergedA {
		assert.Equal(t, mergedA[i].ID, mergedB[i].ID)
	}
}
