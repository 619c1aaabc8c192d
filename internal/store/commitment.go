package store

import (
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/eyebeam/focusd/internal/schedule"
)

// ErrNoUnlockCredits is returned by EmergencyUnlock once the credit count
// has been exhausted.
const ErrNoUnlockCredits errors.Error = "store: no emergency unlock credits remain"

// UnlockLogEntry is one append-only record of a spent emergency-unlock
// credit (spec.md §4.3's EXPANSION: original_source tracks only the
// remaining count, not when each credit was spent, so focusd keeps a
// timestamped trail a user can audit).
type UnlockLogEntry struct {
	At             time.Time        `yaml:"at"`
	WeekKey        schedule.WeekKey `yaml:"week_key"`
	RemainingAfter int              `yaml:"remaining_after"`
}

// Commit atomically snapshots the current schedules for the week at
// weekOffset and records a Commitment expiring at endWallclock (spec.md
// §4.3's commit operation).  Committing an already-committed week replaces
// the prior commitment and refreshes the snapshot.
func (s *Store) Commit(weekOffset int, endWallclock time.Time, now time.Time) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	weekKey := schedule.KeyForOffset(now, weekOffset)

	snapshot := map[string]*schedule.Weekly{}
	prefix := string(weekKey) + "."
	for k, w := range s.data.Schedules {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			snapshot[w.BundleID()] = w.Clone()
		}
	}

	s.data.Commitments[weekKey] = &Commitment{
		EndWallclock:     endWallclock,
		ScheduleSnapshot: snapshot,
	}

	return s.save()
}

// Commitment returns the commitment record for weekKey, if any.
func (s *Store) Commitment(weekKey schedule.WeekKey) (c Commitment, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.data.Commitments[weekKey]
	if !ok {
		return Commitment{}, false
	}

	return *cp, true
}

// CleanupExpired deletes every commitment whose end_wallclock has passed,
// returning their week keys so the caller can trigger uninstall of the
// corresponding timer jobs (spec.md §4.3's cleanup_expired).  cmd/agent
// calls it every AgentConfig.CommitmentCleanupInterval (one hour by
// default), first one interval after startup; it is not called at startup
// itself.
func (s *Store) CleanupExpired(now time.Time) (expired []schedule.WeekKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for weekKey, c := range s.data.Commitments {
		if c.Expired(now) {
			expired = append(expired, weekKey)
			delete(s.data.Commitments, weekKey)
			changed = true
		}
	}

	if !changed {
		return expired, nil
	}

	return expired, s.save()
}

// EmergencyUnlock decrements emergency_unlock_credits and, if the result is
// non-negative, deletes the current week's commitment (spec.md §4.3's
// emergency_unlock).  It returns the remaining credit count, which stays
// the audit trail of how many times the escape hatch has been used.
func (s *Store) EmergencyUnlock(now time.Time) (remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.EmergencyUnlockCredits--
	remaining = s.data.EmergencyUnlockCredits

	if remaining < 0 {
		// Don't let the counter run away below what we can recover from;
		// the caller is told unambiguously that the hatch is spent.
		s.data.EmergencyUnlockCredits = 0

		if err = s.save(); err != nil {
			return remaining, err
		}

		return remaining, fmt.Errorf("%w: %d", ErrNoUnlockCredits, remaining)
	}

	weekKey := schedule.KeyForOffset(now, 0)
	delete(s.data.Commitments, weekKey)

	s.data.UnlockLog = append(s.data.UnlockLog, UnlockLogEntry{
		At:             now,
		WeekKey:        weekKey,
		RemainingAfter: remaining,
	})

	return remaining, s.save()
}

// UnlockCredits returns the current emergency_unlock_credits value.
func (s *Store) UnlockCredits() (credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.EmergencyUnlockCredits
}

// UnlockHistory returns every recorded emergency-unlock event, oldest
// first, for a user auditing their own usage of the escape hatch.
func (s *Store) UnlockHistory() (log []UnlockLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]UnlockLogEntry(nil), s.data.UnlockLog...)
}
