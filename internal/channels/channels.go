// Package channels implements the three pluggable enforcement channels
// (spec.md §4.6): hosts-file rewriting, packet-filter rule management, and
// the process-killer poll loop.  Each is independently idempotent; Apply
// followed by Revert must restore external state bit-for-bit (spec
// invariant 8).
package channels

import (
	"context"

	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/bundle"
)

// Channel is one enforcement mechanism with an idempotent apply/revert
// pair (spec.md §4.6).
type Channel interface {
	// Apply enforces entries.  If isAllowlist is true, the packet-filter
	// channel inverts the sense: only the listed peers are reachable and
	// everything else is denied.  The hosts channel then writes no entries,
	// and the killer channel ignores the flag and still terminates only the
	// listed apps.
	Apply(ctx context.Context, entries []bundle.Entry, isAllowlist bool) (err error)

	// Revert undoes Apply, restoring external state to its pre-Apply
	// snapshot.  It must be safe to call when no Apply is in effect.
	Revert(ctx context.Context) (err error)

	// Name identifies the channel for logging and ordering.
	Name() (name string)
}

// ApplyAll runs Apply on each channel in order (hosts, packet-filter,
// killer, by convention of the slice the caller passes), and if any
// channel fails, reverts every channel that already succeeded before
// surfacing the error — the observable state is "no block in progress"
// rather than half-applied (spec.md §4.6, §7's EnforcementFailure).
func ApplyAll(
	ctx context.Context,
	chans []Channel,
	entries []bundle.Entry,
	isAllowlist bool,
) (err error) {
	applied := make([]Channel, 0, len(chans))

	for _, ch := range chans {
		if err = ch.Apply(ctx, entries, isAllowlist); err != nil {
			RevertAll(ctx, applied)

			return err
		}

		applied = append(applied, ch)
	}

	return nil
}

// RevertAll reverts chans in reverse order, best-effort: it logs but does
// not stop on individual channel revert errors, since the goal is to leave
// external state as clean as possible even when one channel misbehaves.
func RevertAll(ctx context.Context, chans []Channel) {
	for i := len(chans) - 1; i >= 0; i-- {
		if err := chans[i].Revert(ctx); err != nil {
			log.Error("channels: reverting %s: %s", chans[i].Name(), err)
		}
	}
}
