package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketState    = []byte("active_block")
	bucketSchedule = []byte("approved_schedules")

	stateKey = []byte("state")
)

// Store is the root-scoped preference store (spec.md §6): BlockIsRunning,
// BlockEndDate, Blocklist, BlockAsAllowlist, IsTestBlock, and
// ApprovedSchedules, persisted transactionally to a bbolt database under
// root-only permissions. bbolt's View/Update closures give each state
// transition a durable write without hand-rolled fsync/rename bookkeeping,
// matching the teacher's own use of bbolt as a single-writer embedded store
// (cuemby-warren's BoltStore).
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if necessary) the bbolt database at path.
func OpenStore(path string) (s *Store, err error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("daemon: opening %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) (err error) {
		if _, err = tx.CreateBucketIfNotExists(bucketState); err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists(bucketSchedule)

		return err
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("daemon: initializing buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() (err error) {
	return s.db.Close()
}

// LoadState returns the persisted active-block record, or the zero State
// (Idle) if none has ever been written.
func (s *Store) LoadState() (state State, err error) {
	err = s.db.View(func(tx *bolt.Tx) (err error) {
		data := tx.Bucket(bucketState).Get(stateKey)
		if data == nil {
			return nil
		}

		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return State{}, fmt.Errorf("daemon: loading state: %w", err)
	}

	return state, nil
}

// SaveState persists state transactionally.
func (s *Store) SaveState(state State) (err error) {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("daemon: marshaling state: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) (err error) {
		return tx.Bucket(bucketState).Put(stateKey, data)
	})
	if err != nil {
		return fmt.Errorf("daemon: saving state: %w", err)
	}

	return nil
}
