package store

import (
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/eyebeam/focusd/internal/schedule"
)

// ErrCommitmentViolation is returned when a schedule mutation would loosen
// a committed week (spec.md §4.3, §7's CommitmentViolation).
const ErrCommitmentViolation errors.Error = "store: loosening a committed schedule"

// GetSchedule returns the WeeklySchedule for bundleID at weekOffset (0 =
// this week, 1 = next week), or an empty fully-blocked schedule if none has
// been stored yet (spec.md §4.2's get_schedule).
func (s *Store) GetSchedule(
	bundleID string,
	weekOffset int,
	now time.Time,
) (w *schedule.Weekly, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scheduleKey{Week: schedule.KeyForOffset(now, weekOffset), BundleID: bundleID}
	if w, ok := s.data.Schedules[key.String()]; ok {
		return w.Clone(), nil
	}

	return schedule.EmptyWeekly(bundleID), nil
}

// UpdateSchedule stores w for the given week offset, rejecting the write
// with ErrCommitmentViolation if that week is committed and w loosens the
// currently stored schedule for any day (spec.md §4.3 invariants 4 and 5).
func (s *Store) UpdateSchedule(w *schedule.Weekly, weekOffset int, now time.Time) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	weekKey := schedule.KeyForOffset(now, weekOffset)
	key := scheduleKey{Week: weekKey, BundleID: w.BundleID()}

	if c, ok := s.data.Commitments[weekKey]; ok && !c.Expired(now) {
		old, hadOld := s.data.Schedules[key.String()]
		if hadOld && old.IsLoosening(w) {
			return fmt.Errorf("%w: week %s bundle %s", ErrCommitmentViolation, weekKey, w.BundleID())
		}
	}

	s.data.Schedules[key.String()] = w.Clone()

	return s.save()
}

// RemoveBundleSchedule is RemoveBundle's commitment-aware counterpart:
// removing a bundle entirely while its week is committed counts as
// loosening (spec.md §4.3) and is rejected.
func (s *Store) RemoveBundleSchedule(bundleID string, weekOffset int, now time.Time) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	weekKey := schedule.KeyForOffset(now, weekOffset)
	if c, ok := s.data.Commitments[weekKey]; ok && !c.Expired(now) {
		key := scheduleKey{Week: weekKey, BundleID: bundleID}
		if _, hadOld := s.data.Schedules[key.String()]; hadOld {
			return fmt.Errorf(
				"%w: removing bundle %s during committed week %s",
				ErrCommitmentViolation, bundleID, weekKey,
			)
		}
	}

	key := scheduleKey{Week: weekKey, BundleID: bundleID}
	delete(s.data.Schedules, key.String())

	return s.save()
}

// SchedulesForWeek returns every stored WeeklySchedule whose week_key
// matches weekKey, keyed by bundle id.  cmd/agent uses it to feed the window
// materializer during reconciliation and recovery.
func (s *Store) SchedulesForWeek(weekKey schedule.WeekKey) (schedules map[string]*schedule.Weekly) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules = map[string]*schedule.Weekly{}
	prefix := string(weekKey) + "."
	for k, w := range s.data.Schedules {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			schedules[w.BundleID()] = w.Clone()
		}
	}

	return schedules
}
