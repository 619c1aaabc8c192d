package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/eyebeam/focusd/internal/store"
	"github.com/eyebeam/focusd/internal/timerange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (s *store.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "store.yaml")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func mkWeekly(t *testing.T, bundleID string, start, end int) (w *schedule.Weekly) {
	t.Helper()

	d, err := schedule.NewDay(timerange.Range{Start: start, End: end})
	require.NoError(t, err)

	w = schedule.EmptyWeekly(bundleID)
	w.SetDay(time.Monday, d)

	return w
}

func TestStore_AddRemoveBundle(t *testing.T) {
	s := openTestStore(t)

	b := bundle.New("Games", bundle.ColorPurple, 0)
	e, err := bundle.NewWebsiteEntry("store-test-game.example.com", 0, -1)
	require.NoError(t, err)
	b.AddEntry(e)

	require.NoError(t, s.AddBundle(b))

	got, err := s.Bundle(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Name, got.Name)

	require.NoError(t, s.RemoveBundle(b.ID))
	_, err = s.Bundle(b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CommitAndLoosen(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2024, time.December, 22, 12, 0, 0, 0, time.UTC) // Sunday.

	require.NoError(t, s.UpdateSchedule(mkWeekly(t, "b1", 9*60, 17*60), 0, now))

	nextSun := now.AddDate(0, 0, 7)
	require.NoError(t, s.Commit(0, nextSun, now))

	// Tightening is accepted.
	require.NoError(t, s.UpdateSchedule(mkWeekly(t, "b1", 10*60, 16*60), 0, now))

	// Loosening is rejected.
	err := s.UpdateSchedule(mkWeekly(t, "b1", 8*60, 18*60), 0, now)
	assert.ErrorIs(t, err, store.ErrCommitmentViolation)
}

func TestStore_CleanupExpired(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2024, time.December, 22, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Commit(0, now.Add(-time.Hour), now))
	require.NoError(t, s.Commit(1, now.Add(7*24*time.Hour), now))

	expired, err := s.CleanupExpired(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, schedule.KeyForOffset(now, 0), expired[0])

	_, ok := s.Commitment(schedule.KeyForOffset(now, 1))
	assert.True(t, ok)
}

func TestStore_EmergencyUnlock(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2024, time.December, 22, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpdateSchedule(mkWeekly(t, "b1", 9*60, 17*60), 0, now))
	require.NoError(t, s.Commit(0, now.Add(time.Hour), now))

	remaining, err := s.EmergencyUnlock(now)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultUnlockCredits-1, remaining)

	_, ok := s.Commitment(schedule.KeyForOffset(now, 0))
	assert.False(t, ok)

	// Loosening is now accepted since the commitment was removed.
	assert.NoError(t, s.UpdateSchedule(mkWeekly(t, "b1", 0, timerange.MinutesPerDay), 0, now))

	history := s.UnlockHistory()
	require.Len(t, history, 1)
	assert.Equal(t, store.DefaultUnlockCredits-1, history[0].RemainingAfter)
	assert.Equal(t, schedule.KeyForOffset(now, 0), history[0].WeekKey)
}

func TestStore_DidChange(t *testing.T) {
	s := openTestStore(t)

	b := bundle.New("Social", bundle.ColorBlue, 0)
	e, err := bundle.NewWebsiteEntry("store-test-social.example.com", 0, -1)
	require.NoError(t, err)
	b.AddEntry(e)

	require.NoError(t, s.AddBundle(b))

	select {
	case <-s.DidChange():
	default:
		t.Fatal("expected a DidChange notification after AddBundle")
	}
}
