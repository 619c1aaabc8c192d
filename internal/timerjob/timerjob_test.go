package timerjob_test

import (
	"testing"
	"time"

	"github.com/eyebeam/focusd/internal/timerjob"
	"github.com/eyebeam/focusd/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabel_Deterministic(t *testing.T) {
	a := timerjob.Label("b1", time.Monday, 540)
	b := timerjob.Label("b1", time.Monday, 540)
	assert.Equal(t, a, b)
	assert.True(t, timerjob.HasPrefix(a))
}

func TestJob_Encode(t *testing.T) {
	win := window.Window{
		ID:              "b1",
		BundleIDs:       []string{"b1"},
		Day:             time.Monday,
		StartWallclock:  time.Date(2024, 12, 23, 9, 0, 0, 0, time.UTC),
		EndWallclock:    time.Date(2024, 12, 23, 17, 0, 0, 0, time.UTC),
		StartMinutes:    540,
		DurationMinutes: 480,
	}

	job := timerjob.NewJob("/usr/local/bin/focusctl", win)
	assert.Equal(t, timerjob.Label("b1", time.Monday, 540), job.Label)
	require.Len(t, job.ProgramArguments, 4)
	assert.Equal(t, "start-scheduled", job.ProgramArguments[1])
	assert.Equal(t, "b1", job.ProgramArguments[2])

	data, err := job.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), job.Label)
}

type fakeLoader struct {
	installed map[string]bool
	loaded    []string
	unloaded  []string
}

func newFakeLoader(installed ...string) (f *fakeLoader) {
	f = &fakeLoader{installed: map[string]bool{}}
	for _, l := range installed {
		f.installed[l] = true
	}

	return f
}

func (f *fakeLoader) Load(label string, _ []byte) (err error) {
	f.installed[label] = true
	f.loaded = append(f.loaded, label)

	return nil
}

func (f *fakeLoader) Unload(label string) (err error) {
	delete(f.installed, label)
	f.unloaded = append(f.unloaded, label)

	return nil
}

func (f *fakeLoader) Installed() (labels []string, err error) {
	for l := range f.installed {
		labels = append(labels, l)
	}

	return labels, nil
}

func TestReconciler_Reconcile(t *testing.T) {
	stale := timerjob.Label("stale-bundle", time.Tuesday, 0)
	loader := newFakeLoader(stale)

	win := window.Window{ID: "b1", Day: time.Monday, StartMinutes: 540, EndWallclock: time.Now()}
	wantLabel := timerjob.Label("b1", time.Monday, 540)

	r := timerjob.NewReconciler(loader, "/usr/local/bin/focusctl")

	var registered []window.Window
	err := r.Reconcile([]window.Window{win}, func(w window.Window) error {
		registered = append(registered, w)

		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, loader.loaded, wantLabel)
	assert.Contains(t, loader.unloaded, stale)
	assert.Len(t, registered, 1)

	// Reconciling again with the same input must not reinstall or
	// re-register the same job (spec invariant 7, idempotence).
	loader.loaded = nil
	registered = nil
	err = r.Reconcile([]window.Window{win}, func(w window.Window) error {
		registered = append(registered, w)

		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, loader.loaded)
	assert.Empty(t, registered)
}
