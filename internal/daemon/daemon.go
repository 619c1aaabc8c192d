// Package daemon implements the privileged process's active-block state
// machine (spec.md §4.7): Idle/Active transitions, channel application, and
// bbolt-backed persistence of the root-scoped preference store.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/channels"
)

// Error kinds returned by Daemon methods (spec.md §7).
const (
	ErrAlreadyActive      errors.Error = "daemon: block already active"
	ErrNotActive          errors.Error = "daemon: no block active"
	ErrNotExpired         errors.Error = "daemon: end_date has not passed"
	ErrLoosening          errors.Error = "daemon: update would remove entries before end_date"
	ErrEndDateNotForward  errors.Error = "daemon: new end_date does not move forward"
	ErrEnforcementFailure errors.Error = "daemon: channel enforcement failed"
)

// State is the persisted root-scoped active-block record (spec.md §6's
// "Root-scoped preferences").
type State struct {
	IsRunning   bool           `json:"is_running"`
	EndDate     time.Time      `json:"end_date"`
	Blocklist   []bundle.Entry `json:"blocklist"`
	IsAllowlist bool           `json:"is_allowlist"`
	IsTest      bool           `json:"is_test"`
}

// Daemon owns the single active-block state machine. All transitions are
// serialized on mu, matching spec.md §5's "single mutator" requirement;
// IPC handlers that only read state should call Snapshot instead of
// reaching into State directly.
type Daemon struct {
	mu    sync.Mutex
	store *Store
	chans []channels.Channel

	state State
}

// New returns a Daemon backed by store and enforcing through chans, in
// apply order (hosts, packet-filter, killer by convention).
func New(store *Store, chans []channels.Channel) (d *Daemon) {
	return &Daemon{store: store, chans: chans}
}

// Snapshot returns a copy of the current state for read-only IPC queries.
func (d *Daemon) Snapshot() (s State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Resume loads persisted state on startup and, per spec.md §4.7's
// persistence contract, either re-applies channels and resumes Active (if
// still within end_date) or runs the stop path (if already expired).
func (d *Daemon) Resume(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, err := d.store.LoadState()
	if err != nil {
		return errors.Annotate(err, "daemon: loading state on resume: %w")
	}

	d.state = state

	if !d.state.IsRunning {
		return nil
	}

	now := time.Now()
	if d.state.EndDate.After(now) {
		log.Info("daemon: resuming active block, end_date=%s", d.state.EndDate)

		if err = channels.ApplyAll(ctx, d.chans, d.state.Blocklist, d.state.IsAllowlist); err != nil {
			return fmt.Errorf("%s: %w", ErrEnforcementFailure, err)
		}

		return nil
	}

	log.Info("daemon: resuming with an already-expired block, clearing")

	return d.stopLocked(ctx)
}

// Start transitions Idle → Active (spec.md §4.7). If a block is already
// Active, it is rejected unless debugClear authorizes overriding it.
func (d *Daemon) Start(
	ctx context.Context,
	blocklist []bundle.Entry,
	isAllowlist, isTest bool,
	endDate time.Time,
	debugClear bool,
) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.IsRunning && !debugClear {
		return ErrAlreadyActive
	}

	if err = channels.ApplyAll(ctx, d.chans, blocklist, isAllowlist); err != nil {
		return fmt.Errorf("%s: %w", ErrEnforcementFailure, err)
	}

	d.state = State{
		IsRunning:   true,
		EndDate:     endDate,
		Blocklist:   blocklist,
		IsAllowlist: isAllowlist,
		IsTest:      isTest,
	}

	return d.persistLocked()
}

// UpdateBlocklist re-applies channels with newList while Active. For
// non-test blocks it is additive-only: every entry currently enforced must
// still be present, preventing self-exfiltration mid-block.
func (d *Daemon) UpdateBlocklist(ctx context.Context, newList []bundle.Entry) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.IsRunning {
		return ErrNotActive
	}

	if !d.state.IsTest && !supersets(newList, d.state.Blocklist) {
		return ErrLoosening
	}

	if err = channels.ApplyAll(ctx, d.chans, newList, d.state.IsAllowlist); err != nil {
		return fmt.Errorf("%s: %w", ErrEnforcementFailure, err)
	}

	d.state.Blocklist = newList

	return d.persistLocked()
}

// UpdateEndDate extends end_date while Active. newEnd may only move
// forward unless this is a test block.
func (d *Daemon) UpdateEndDate(newEnd time.Time) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.IsRunning {
		return ErrNotActive
	}

	if !d.state.IsTest && !newEnd.After(d.state.EndDate) {
		return ErrEndDateNotForward
	}

	d.state.EndDate = newEnd

	return d.persistLocked()
}

// Stop transitions Active → Idle. Allowed when now is at or past end_date,
// when the block is a test block, or when debugClear authorizes an early
// stop.
func (d *Daemon) Stop(ctx context.Context, now time.Time, isTestStop, debugClear bool) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.IsRunning {
		return ErrNotActive
	}

	expired := !now.Before(d.state.EndDate)
	if !expired && !debugClear && !(isTestStop && d.state.IsTest) {
		return ErrNotExpired
	}

	return d.stopLocked(ctx)
}

// PeriodicTick runs every minute while Active (spec.md §4.7): if now has
// reached end_date, it transitions to Idle exactly as Stop would.
func (d *Daemon) PeriodicTick(ctx context.Context, now time.Time) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.IsRunning || now.Before(d.state.EndDate) {
		return nil
	}

	return d.stopLocked(ctx)
}

// stopLocked reverts every channel and resets to Idle. Callers must hold
// d.mu.
func (d *Daemon) stopLocked(ctx context.Context) (err error) {
	channels.RevertAll(ctx, d.chans)

	d.state = State{}

	return d.persistLocked()
}

func (d *Daemon) persistLocked() (err error) {
	if err = d.store.SaveState(d.state); err != nil {
		return errors.Annotate(err, "daemon: persisting state: %w")
	}

	return nil
}

// entryKey is the comparable form of an Entry's (Kind, text) pair, used to
// index maps keyed on Entry identity.
type entryKey struct {
	kind bundle.Kind
	text string
}

func keyOf(e bundle.Entry) (k entryKey) {
	kind, text := e.Key()

	return entryKey{kind: kind, text: text}
}

// supersets reports whether every entry in old is present (by Key) in
// newList.
func supersets(newList, old []bundle.Entry) (ok bool) {
	present := make(map[entryKey]bool, len(newList))
	for _, e := range newList {
		present[keyOf(e)] = true
	}

	for _, e := range old {
		if !present[keyOf(e)] {
			return false
		}
	}

	return true
}
