package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/eyebeam/focusd/internal/bundle"
	bolt "go.etcd.io/bbolt"
)

// ErrScheduleNotFound is returned when a segment_id has no matching
// ApprovedSchedule (spec.md §4.8's "absence ⇒ reject").
const ErrScheduleNotFound errors.Error = "daemon: no approved schedule with that id"

// ApprovedSchedule is evidence that a user previously authorized a
// scheduled block at registration time, so its later timer-fired trigger
// can activate the block without an interactive authorization prompt
// (spec.md §4.8, §9's "why the ApprovedSchedule indirection").
type ApprovedSchedule struct {
	ID          string         `json:"id"`
	Blocklist   []bundle.Entry `json:"blocklist"`
	IsAllowlist bool           `json:"is_allowlist"`
	EndDate     time.Time      `json:"end_date"`
}

// RegisterSchedule stores an ApprovedSchedule, indexed by its ID, replacing
// any existing entry with the same ID.
func (s *Store) RegisterSchedule(as ApprovedSchedule) (err error) {
	data, err := json.Marshal(as)
	if err != nil {
		return fmt.Errorf("daemon: marshaling approved schedule: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) (err error) {
		return tx.Bucket(bucketSchedule).Put([]byte(as.ID), data)
	})
	if err != nil {
		return fmt.Errorf("daemon: registering schedule %s: %w", as.ID, err)
	}

	return nil
}

// UnregisterSchedule removes the ApprovedSchedule with the given id, if
// any. It is not an error to unregister an id that does not exist.
func (s *Store) UnregisterSchedule(id string) (err error) {
	err = s.db.Update(func(tx *bolt.Tx) (err error) {
		return tx.Bucket(bucketSchedule).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("daemon: unregistering schedule %s: %w", id, err)
	}

	return nil
}

// ApprovedScheduleByID looks up the ApprovedSchedule with the given id.
func (s *Store) ApprovedScheduleByID(id string) (as ApprovedSchedule, err error) {
	err = s.db.View(func(tx *bolt.Tx) (err error) {
		data := tx.Bucket(bucketSchedule).Get([]byte(id))
		if data == nil {
			return ErrScheduleNotFound
		}

		return json.Unmarshal(data, &as)
	})
	if err != nil {
		return ApprovedSchedule{}, err
	}

	return as, nil
}

// ApprovedSchedules returns every currently registered ApprovedSchedule.
func (s *Store) ApprovedSchedules() (all []ApprovedSchedule, err error) {
	err = s.db.View(func(tx *bolt.Tx) (err error) {
		return tx.Bucket(bucketSchedule).ForEach(func(_, v []byte) (err error) {
			var as ApprovedSchedule
			if err = json.Unmarshal(v, &as); err != nil {
				return err
			}

			all = append(all, as)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: listing approved schedules: %w", err)
	}

	return all, nil
}

// CleanupStaleSchedule removes the ApprovedSchedule with id if its end_date
// has passed (spec.md §4.8's cleanup_stale_schedule). It is a no-op,
// returning false, if the schedule is absent or not yet stale.
func (s *Store) CleanupStaleSchedule(id string, now time.Time) (removed bool, err error) {
	as, err := s.ApprovedScheduleByID(id)
	if errors.Is(err, ErrScheduleNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if now.Before(as.EndDate) {
		return false, nil
	}

	if err = s.UnregisterSchedule(id); err != nil {
		return false, err
	}

	return true, nil
}
