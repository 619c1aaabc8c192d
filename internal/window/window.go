// Package window implements the window materializer (spec.md §4.4): turning
// an abstract WeeklySchedule into concrete, absolute BlockWindows, and
// merging overlapping per-bundle windows on the same day into minimal
// multi-bundle segments.
package window

import (
	"fmt"
	"sort"
	"time"

	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/eyebeam/focusd/internal/timerange"
)

// Window is a materialized block: an absolute, time-bounded interval during
// which one or more bundles are blocked (spec.md §3's BlockWindow).
type Window struct {
	// StartWallclock is the absolute start of the window, possibly clipped
	// to now if the window was already in progress at materialization time.
	StartWallclock time.Time
	EndWallclock   time.Time

	// ID is the bundle id for a single-bundle window, or a deterministic
	// segment id for a window merged across multiple bundles.
	ID string

	// BundleIDs lists every bundle contributing to this window, sorted.
	BundleIDs []string

	Day             time.Weekday
	StartMinutes    int
	DurationMinutes int
	WeekOffset      int
}

// IsMerged reports whether w was formed by merging more than one bundle's
// windows.
func (w Window) IsMerged() (ok bool) {
	return len(w.BundleIDs) > 1
}

// Materialize computes the absolute BlockWindows for one bundle's
// WeeklySchedule at weekOffset, relative to now (spec.md §4.4 steps 1-4):
// invert each day's allowed intervals, map to absolute time, drop windows
// already past, and clip in-progress windows to start at now.
func Materialize(w *schedule.Weekly, weekOffset int, now time.Time) (windows []Window, err error) {
	weekKey := schedule.KeyForOffset(now, weekOffset)

	anchor, err := weekKey.Anchor(w.Location())
	if err != nil {
		return nil, fmt.Errorf("window: anchoring week %s: %w", weekKey, err)
	}

	localNow := now.In(w.Location())

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		dayOffset := (int(wd) + 6) % 7
		dayStart := anchor.AddDate(0, 0, dayOffset)

		for _, r := range w.Day(wd).Blocked() {
			start := dayStart.Add(time.Duration(r.Start) * time.Minute)
			end := dayStart.Add(time.Duration(r.End) * time.Minute)

			win, ok := clip(start, end, localNow)
			if !ok {
				continue
			}

			windows = append(windows, Window{
				ID:              w.BundleID(),
				BundleIDs:       []string{w.BundleID()},
				Day:             wd,
				StartWallclock:  win.start,
				EndWallclock:    win.end,
				StartMinutes:    r.Start,
				DurationMinutes: r.End - r.Start,
				WeekOffset:      weekOffset,
			})
		}
	}

	SortWindows(windows)

	return windows, nil
}

type clipped struct {
	start, end time.Time
}

// clip drops windows already entirely in the past and clips in-progress
// windows to start at now (spec.md §4.4 steps 3-4).
func clip(start, end, now time.Time) (c clipped, ok bool) {
	if !end.After(now) {
		return clipped{}, false
	}

	if start.Before(now) {
		start = now
	}

	return clipped{start: start, end: end}, true
}

// SortWindows sorts windows by (start, end, id), the tie-break spec.md
// §4.4 requires.
func SortWindows(windows []Window) {
	sort.Slice(windows, func(i, j int) bool {
		a, b := windows[i], windows[j]
		if !a.StartWallclock.Equal(b.StartWallclock) {
			return a.StartWallclock.Before(b.StartWallclock)
		}

		if !a.EndWallclock.Equal(b.EndWallclock) {
			return a.EndWallclock.Before(b.EndWallclock)
		}

		return a.ID < b.ID
	})
}

// MergeWindows merges overlapping per-bundle windows that fall on the same
// (week_offset, day) into minimal multi-bundle segments (spec.md §4.4's
// merged segments, scenario B).  Merging only ever combines windows whose
// union covers exactly the same blocked minutes as the inputs: it is an
// efficiency optimization and must not change which minutes are blocked.
func MergeWindows(windows []Window) (merged []Window) {
	type groupKey struct {
		weekOffset int
		day        time.Weekday
	}

	groups := map[groupKey][]Window{}
	for _, w := range windows {
		k := groupKey{weekOffset: w.WeekOffset, day: w.Day}
		groups[k] = append(groups[k], w)
	}

	for k, group := range groups {
		merged = append(merged, mergeDayGroup(k.weekOffset, k.day, group)...)
	}

	SortWindows(merged)

	return merged
}

// mergeDayGroup merges the per-bundle windows for a single (week_offset,
// day) group using the minute-range union algebra, then re-attaches the
// contributing bundle ids and a deterministic segment id to each merged
// interval.
func mergeDayGroup(weekOffset int, day time.Weekday, group []Window) (merged []Window) {
	if len(group) == 0 {
		return nil
	}

	ranges := make([]timerange.Range, 0, len(group))
	for _, w := range group {
		ranges = append(ranges, timerange.Range{
			Start: w.StartMinutes,
			End:   w.StartMinutes + w.DurationMinutes,
		})
	}

	unioned := timerange.Union(ranges)

	for _, u := range unioned {
		var bundleSet = map[string]bool{}
		var earliestStart, latestEnd time.Time

		for _, w := range group {
			wRange := timerange.Range{Start: w.StartMinutes, End: w.StartMinutes + w.DurationMinutes}
			if !overlaps(wRange, u) {
				continue
			}

			bundleSet[w.ID] = true
			if earliestStart.IsZero() || w.StartWallclock.Before(earliestStart) {
				earliestStart = w.StartWallclock
			}

			if w.EndWallclock.After(latestEnd) {
				latestEnd = w.EndWallclock
			}
		}

		bundleIDs := make([]string, 0, len(bundleSet))
		for id := range bundleSet {
			bundleIDs = append(bundleIDs, id)
		}

		sort.Strings(bundleIDs)

		id := bundleIDs[0]
		if len(bundleIDs) > 1 {
			id = segmentID(bundleIDs, day, u.Start)
		}

		merged = append(merged, Window{
			ID:              id,
			BundleIDs:       bundleIDs,
			Day:             day,
			StartWallclock:  earliestStart,
			EndWallclock:    latestEnd,
			StartMinutes:    u.Start,
			DurationMinutes: u.End - u.Start,
			WeekOffset:      weekOffset,
		})
	}

	return merged
}

func overlaps(a, b timerange.Range) (ok bool) {
	return a.Start < b.End && b.Start < a.End
}

// segmentID deterministically names a merged segment from its sorted
// contributing bundle ids, the weekday, and the start minute — stable
// across reconciliation runs so job labels don't churn (spec invariant 7).
func segmentID(bundleIDs []string, day time.Weekday, startMinutes int) (id string) {
	joined := ""
	for i, b := range bundleIDs {
		if i > 0 {
			joined += "+"
		}

		joined += b
	}

	return fmt.Sprintf("seg-%s-%d-%d", joined, int(day), startMinutes)
}
