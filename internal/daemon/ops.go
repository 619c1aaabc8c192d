package daemon

import (
	"context"
	"time"
)

// StartScheduledBlock fires a pre-registered schedule (spec.md §4.8's
// start_scheduled_block): it looks up id in the ApprovedSchedules store and,
// if found, starts a block with that schedule's blocklist — no interactive
// authorization is needed because consent was already captured at
// registration time (spec.md §9).
func (d *Daemon) StartScheduledBlock(ctx context.Context, id string, endDate time.Time) (err error) {
	as, err := d.store.ApprovedScheduleByID(id)
	if err != nil {
		return err
	}

	return d.Start(ctx, as.Blocklist, as.IsAllowlist, false, endDate, false)
}

// StopTestBlock is only honored when the active block is a test block
// (spec.md §4.8's stop_test_block), and requires no authorization.
func (d *Daemon) StopTestBlock(ctx context.Context, now time.Time) (err error) {
	d.mu.Lock()
	isTest := d.state.IsTest
	d.mu.Unlock()

	if !isTest {
		return ErrNotActive
	}

	return d.Stop(ctx, now, true, false)
}

// ClearExpiredBlock is only honored when now has reached end_date (spec.md
// §4.8's clear_expired_block); it requires no authorization because the
// block has already expired on its own terms.
func (d *Daemon) ClearExpiredBlock(ctx context.Context, now time.Time) (err error) {
	return d.Stop(ctx, now, false, false)
}

// IsPFBlockActive reports whether a block is currently Active (spec.md
// §4.8's is_pf_block_active). It requires no authorization: it is a
// read-only channel-state query.
func (d *Daemon) IsPFBlockActive() (active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state.IsRunning
}

// ClearBlockForDebug forces Idle regardless of end_date (spec.md §4.8's
// clear_block_for_debug, debug-build only; callers outside debug builds
// must not expose this over IPC).
func (d *Daemon) ClearBlockForDebug(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.IsRunning {
		return ErrNotActive
	}

	return d.stopLocked(ctx)
}

// RegisterSchedule stores an ApprovedSchedule (spec.md §4.8's
// register_schedule), capturing consent once so the later timer-fired
// trigger can activate it without interactive authorization.
func (d *Daemon) RegisterSchedule(as ApprovedSchedule) (err error) {
	return d.store.RegisterSchedule(as)
}

// UnregisterSchedule removes an ApprovedSchedule (spec.md §4.8's
// unregister_schedule).
func (d *Daemon) UnregisterSchedule(id string) (err error) {
	return d.store.UnregisterSchedule(id)
}

// CleanupStaleSchedule removes id's ApprovedSchedule if its end_date has
// passed (spec.md §4.8's cleanup_stale_schedule).
func (d *Daemon) CleanupStaleSchedule(id string, now time.Time) (removed bool, err error) {
	return d.store.CleanupStaleSchedule(id, now)
}
