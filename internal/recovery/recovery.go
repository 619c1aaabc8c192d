// Package recovery implements the missed-trigger recovery procedure
// (spec.md §4.9), run by cmd/agent on startup.  cmd/daemon does not call
// it: on daemon startup, Daemon.Resume re-applies or clears a persisted
// Active block on its own.
package recovery

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/eyebeam/focusd/internal/window"
)

// StartScheduledFunc fires a pre-registered schedule, matching
// *daemon.Daemon.StartScheduledBlock's signature (cmd/agent passes one that
// calls it over IPC).
type StartScheduledFunc func(ctx context.Context, segmentID string, endDate time.Time) (err error)

// ClearExpiredFunc clears an Active block whose end_date has passed,
// matching *daemon.Daemon.ClearExpiredBlock's signature.
type ClearExpiredFunc func(ctx context.Context, now time.Time) (err error)

// Recover runs the procedure in spec.md §4.9 for a single bundle's
// schedule: it materializes this week's windows, and if now falls inside
// one, ensures the daemon is Active for it (starting it if Idle, doing
// nothing if already Active with a sufficient end_date); if now is past
// every window for today and the daemon is Active with an expired
// end_date, it clears it.
func Recover(
	ctx context.Context,
	now time.Time,
	bundleID string,
	w *schedule.Weekly,
	active bool,
	activeEndDate time.Time,
	startScheduled StartScheduledFunc,
	clearExpired ClearExpiredFunc,
) (err error) {
	windows, err := window.Materialize(w, 0, now)
	if err != nil {
		return err
	}

	current, found := windowContaining(windows, now)

	switch {
	case found && !active:
		log.Info("recovery: %s: now is within a missed window, starting block", bundleID)

		return startScheduled(ctx, bundleID, current.EndWallclock)
	case found && active && !activeEndDate.Before(current.EndWallclock):
		// Already Active with a sufficient end_date: nothing to do
		// (spec.md §4.9 step 4).
		return nil
	case !found && active && !activeEndDate.After(now):
		log.Info("recovery: %s: active block has expired, clearing", bundleID)

		return clearExpired(ctx, now)
	default:
		return nil
	}
}

// Schedules maps a bundle ID to its current WeeklySchedule, the shape
// *store.Store.SchedulesForWeek already returns.
type Schedules map[string]*schedule.Weekly

// RecoverAll runs Recover for every bundle in schedules against the same
// daemon state, used once at agent/daemon startup (spec.md §4.9).
func RecoverAll(
	ctx context.Context,
	now time.Time,
	schedules Schedules,
	active bool,
	activeEndDate time.Time,
	startScheduled StartScheduledFunc,
	clearExpired ClearExpiredFunc,
) (err error) {
	for bundleID, w := range schedules {
		if err = Recover(ctx, now, bundleID, w, active, activeEndDate, startScheduled, clearExpired); err != nil {
			return err
		}
	}

	return nil
}

// windowContaining returns the first window in windows containing instant,
// if any.
func windowContaining(windows []window.Window, instant time.Time) (w window.Window, found bool) {
	for _, w := range windows {
		if !instant.Before(w.StartWallclock) && instant.Before(w.EndWallclock) {
			return w, true
		}
	}

	return window.Window{}, false
}
