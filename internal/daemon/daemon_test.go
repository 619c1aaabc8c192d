package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/channels"
	"github.com/eyebeam/focusd/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory Channel double that records apply/revert
// calls and can be made to fail on demand.
type fakeChannel struct {
	name      string
	applyErr  error
	revertErr error
	applied   []bundle.Entry
	reverted  bool
}

func (f *fakeChannel) Apply(_ context.Context, entries []bundle.Entry, _ bool) (err error) {
	if f.applyErr != nil {
		return f.applyErr
	}

	f.applied = entries
	f.reverted = false

	return nil
}

func (f *fakeChannel) Revert(_ context.Context) (err error) {
	if f.revertErr != nil {
		return f.revertErr
	}

	f.reverted = true
	f.applied = nil

	return nil
}

func (f *fakeChannel) Name() (name string) { return f.name }

func openTestDaemon(t *testing.T) (d *daemon.Daemon, s *daemon.Store, ch *fakeChannel) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "daemon.db")
	s, err := daemon.OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ch = &fakeChannel{name: "fake"}
	d = daemon.New(s, []channels.Channel{ch})

	return d, s, ch
}

func websiteEntry(t *testing.T, host string) (e bundle.Entry) {
	t.Helper()

	e, err := bundle.NewWebsiteEntry(host, 0, -1)
	require.NoError(t, err)

	return e
}

func TestDaemon_StartStop(t *testing.T) {
	d, _, ch := openTestDaemon(t)

	entries := []bundle.Entry{websiteEntry(t, "example.com")}
	end := time.Now().Add(time.Hour)

	require.NoError(t, d.Start(context.Background(), entries, false, false, end, false))
	assert.True(t, d.Snapshot().IsRunning)
	assert.Len(t, ch.applied, 1)

	// starting again without debugClear is rejected (spec invariant 9).
	err := d.Start(context.Background(), entries, false, false, end, false)
	assert.ErrorIs(t, err, daemon.ErrAlreadyActive)

	// stop before end_date is rejected without debugClear or test-stop.
	err = d.Stop(context.Background(), time.Now(), false, false)
	assert.ErrorIs(t, err, daemon.ErrNotExpired)

	require.NoError(t, d.Stop(context.Background(), end.Add(time.Minute), false, false))
	assert.False(t, d.Snapshot().IsRunning)
	assert.True(t, ch.reverted)
}

func TestDaemon_UpdateBlocklistAdditiveOnly(t *testing.T) {
	d, _, _ := openTestDaemon(t)

	a := websiteEntry(t, "a.example")
	b := websiteEntry(t, "b.example")
	end := time.Now().Add(time.Hour)

	require.NoError(t, d.Start(context.Background(), []bundle.Entry{a, b}, false, false, end, false))

	err := d.UpdateBlocklist(context.Background(), []bundle.Entry{a})
	assert.ErrorIs(t, err, daemon.ErrLoosening)

	c := websiteEntry(t, "c.example")
	require.NoError(t, d.UpdateBlocklist(context.Background(), []bundle.Entry{a, b, c}))
}

func TestDaemon_UpdateEndDateForwardOnly(t *testing.T) {
	d, _, _ := openTestDaemon(t)

	end := time.Now().Add(time.Hour)
	require.NoError(t, d.Start(context.Background(), nil, false, false, end, false))

	err := d.UpdateEndDate(end.Add(-time.Minute))
	assert.ErrorIs(t, err, daemon.ErrEndDateNotForward)

	require.NoError(t, d.UpdateEndDate(end.Add(time.Minute)))
}

func TestDaemon_PeriodicTick(t *testing.T) {
	d, _, ch := openTestDaemon(t)

	end := time.Now().Add(time.Minute)
	require.NoError(t, d.Start(context.Background(), nil, false, false, end, false))

	require.NoError(t, d.PeriodicTick(context.Background(), time.Now()))
	assert.True(t, d.Snapshot().IsRunning)

	require.NoError(t, d.PeriodicTick(context.Background(), end.Add(time.Second)))
	assert.False(t, d.Snapshot().IsRunning)
	assert.True(t, ch.reverted)
}

func TestDaemon_ResumeActiveStillRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.db")
	s, err := daemon.OpenStore(path)
	require.NoError(t, err)
	defer s.Close()

	end := time.Now().Add(time.Hour)
	require.NoError(t, s.SaveState(daemon.State{
		IsRunning: true,
		EndDate:   end,
		Blocklist: []bundle.Entry{websiteEntry(t, "example.com")},
	}))

	ch := &fakeChannel{name: "fake"}
	d := daemon.New(s, []channels.Channel{ch})

	require.NoError(t, d.Resume(context.Background()))
	assert.True(t, d.Snapshot().IsRunning)
	assert.NotNil(t, ch.applied)
}

func TestDaemon_ResumeExpiredClearsBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.db")
	s, err := daemon.OpenStore(path)
	require.NoError(t, err)
	defer s.Close()

	end := time.Now().Add(-time.Hour)
	require.NoError(t, s.SaveState(daemon.State{IsRunning: true, EndDate: end}))

	ch := &fakeChannel{name: "fake"}
	d := daemon.New(s, []channels.Channel{ch})

	require.NoError(t, d.Resume(context.Background()))
	assert.False(t, d.Snapshot().IsRunning)
}

func TestDaemon_StartScheduledBlockRequiresApproval(t *testing.T) {
	d, s, _ := openTestDaemon(t)

	_, err := s.ApprovedScheduleByID("missing")
	assert.ErrorIs(t, err, daemon.ErrScheduleNotFound)

	end := time.Now().Add(time.Hour)
	require.NoError(t, s.RegisterSchedule(daemon.ApprovedSchedule{
		ID:      "seg-1",
		EndDate: end,
	}))

	require.NoError(t, d.StartScheduledBlock(context.Background(), "seg-1", end))
	assert.True(t, d.Snapshot().IsRunning)
}

func TestDaemon_CleanupStaleSchedule(t *testing.T) {
	_, s, _ := openTestDaemon(t)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.RegisterSchedule(daemon.ApprovedSchedule{ID: "stale", EndDate: past}))

	removed, err := s.CleanupStaleSchedule("stale", time.Now())
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.ApprovedScheduleByID("stale")
	assert.ErrorIs(t, err, daemon.ErrScheduleNotFound)
}
