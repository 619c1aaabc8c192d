// Package store implements the agent-owned schedule preference area
// (spec.md §4.2): bundles, per-week per-bundle schedules, the commitment
// ledger (§4.3), the week-start preference, and the emergency-unlock credit
// count.  It generalizes the teacher's schedule package's YAML persistence
// idiom to a whole preferences file, written atomically via renameio and
// watched via fsnotify for the "external edit" case the daemon's
// recovery path on agent restart must also tolerate.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a bundle, schedule, or commitment lookup
// fails.
const ErrNotFound errors.Error = "store: not found"

// WeekStart is the user's preferred first day of the week, spec.md §4.2.
type WeekStart string

// Week-start preferences.
const (
	WeekStartMonday WeekStart = "monday"
	WeekStartSunday WeekStart = "sunday"
)

// DefaultUnlockCredits is the default value of emergency_unlock_credits for
// a fresh store (spec.md §4.2).
const DefaultUnlockCredits = 5

// scheduleKey identifies a stored WeeklySchedule: one per (week, bundle)
// pair, spec.md §4.2's "schedules.<week_key>.<bundle_id>".
type scheduleKey struct {
	Week     schedule.WeekKey
	BundleID string
}

func (k scheduleKey) String() (s string) {
	return fmt.Sprintf("%s.%s", k.Week, k.BundleID)
}

// Commitment is the per-week one-way ratchet record (spec.md §3/§4.3): once
// present and unexpired, it forbids loosening any bundle's schedule for
// that week.
type Commitment struct {
	EndWallclock     time.Time                  `yaml:"end_wallclock"`
	ScheduleSnapshot map[string]*schedule.Weekly `yaml:"schedule_snapshot"`
}

// Expired reports whether c's end_wallclock has passed relative to now.
func (c Commitment) Expired(now time.Time) (ok bool) {
	return !c.EndWallclock.After(now)
}

// fileData is the on-disk shape of the store, one YAML document.
type fileData struct {
	Schedules              map[string]*schedule.Weekly      `yaml:"schedules"`
	Commitments            map[schedule.WeekKey]*Commitment `yaml:"commitments"`
	Bundles                []*bundle.Bundle                 `yaml:"bundles"`
	WeekStartPreference    WeekStart                         `yaml:"week_start_preference"`
	EmergencyUnlockCredits int                               `yaml:"emergency_unlock_credits"`
	UnlockLog              []UnlockLogEntry                  `yaml:"unlock_log"`
}

func newFileData() (d *fileData) {
	return &fileData{
		Schedules:              map[string]*schedule.Weekly{},
		Commitments:            map[schedule.WeekKey]*Commitment{},
		WeekStartPreference:    WeekStartMonday,
		EmergencyUnlockCredits: DefaultUnlockCredits,
	}
}

// Store is the agent-owned, user-scoped preferences area.  It is safe for
// concurrent use.
type Store struct {
	watcher  *fsnotify.Watcher
	changeCh chan struct{}
	path     string
	mu       sync.Mutex
	data     *fileData
}

// Open loads the store from path, creating a fresh empty store (seeded with
// the preset bundles) if the file doesn't exist yet.  Callers must call
// Close when done to stop the change watcher.
func Open(path string) (s *Store, err error) {
	s = &Store{path: path, changeCh: make(chan struct{}, 1)}

	data, err := load(path)
	if errors.Is(err, os.ErrNotExist) {
		data = newFileData()
		for _, b := range bundle.Presets() {
			data.Bundles = append(data.Bundles, b)
		}
	} else if err != nil {
		return nil, fmt.Errorf("store: loading %q: %w", path, err)
	}

	s.data = data

	s.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("store: creating watcher: %s", err)

		return s, nil
	}

	if wErr := s.watcher.Add(filepath.Dir(path)); wErr != nil {
		log.Error("store: watching %q: %s", filepath.Dir(path), wErr)
	}

	go s.watchLoop()

	return s, nil
}

func load(path string) (d *fileData, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	d = newFileData()
	if err = yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if d.Schedules == nil {
		d.Schedules = map[string]*schedule.Weekly{}
	}

	if d.Commitments == nil {
		d.Commitments = map[schedule.WeekKey]*Commitment{}
	}

	return d, nil
}

// watchLoop forwards external filesystem edits of the store file as
// DidChange events, so a hand-edited preferences file (or a future second
// writer) is picked up without an agent restart.
func (s *Store) watchLoop() {
	base := filepath.Base(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(ev.Name) == base && ev.Has(fsnotify.Write) {
				s.notify()
			}
		case wErr, ok := <-s.watcher.Errors:
			if !ok {
				return
			}

			log.Error("store: watcher: %s", wErr)
		}
	}
}

// Close stops the store's change watcher.
func (s *Store) Close() (err error) {
	if s.watcher == nil {
		return nil
	}

	return s.watcher.Close()
}

// DidChange returns the channel the store sends on after every write (spec
// §4.2, §6's Notifications).  It is the agent's job to re-reconcile timers
// in response.  The channel is buffered by one and never closed; a send
// never blocks the writer.
func (s *Store) DidChange() (ch <-chan struct{}) {
	return s.changeCh
}

func (s *Store) notify() {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

// save persists the store atomically via rename-over and emits DidChange.
// Callers must hold s.mu.
func (s *Store) save() (err error) {
	data, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("store: marshaling: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("store: creating directory: %w", err)
	}

	if err = renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("store: writing %q: %w", s.path, err)
	}

	s.notify()

	return nil
}

// WeekStartPreference returns the user's preferred first day of the week.
func (s *Store) WeekStartPreference() (pref WeekStart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.WeekStartPreference
}

// SetWeekStartPreference updates the user's preferred first day of the
// week.
func (s *Store) SetWeekStartPreference(pref WeekStart) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.WeekStartPreference = pref

	return s.save()
}
