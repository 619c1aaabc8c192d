// Package timerjob bridges materialized block windows to OS-level timer
// jobs (spec.md §4.5), adapted from the original implementation's
// SCScheduleLaunchdBridge: deterministic job labels, weekly calendar
// triggers, and an idempotent reconciliation loop.
package timerjob

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/window"
	"howett.net/plist"
)

// LabelPrefix is the reserved namespace every focusd-installed timer job's
// label begins with, matching the original bridge's
// "org.eyebeam.selfcontrol.schedule" convention.
const LabelPrefix = "com.eyebeam.focusd.schedule"

// ErrTransient marks a filesystem/permissions error during job install that
// the agent should retry with backoff before surfacing (spec.md §7).
const ErrTransient errors.Error = "timerjob: transient install failure"

// Job is one OS timer job: a deterministic label, a weekday/hour/minute
// calendar trigger, and a CLI invocation payload (spec.md §6's Timer job
// descriptor).
type Job struct {
	Label           string
	ProgramArguments []string
	Day             time.Weekday
	StartMinutes    int
}

// NewJob builds the Job for win, invoking cliPath with "start-scheduled
// <segment_id|bundle_id> <end-iso>" (spec.md §6's CLI subcommands).
func NewJob(cliPath string, win window.Window) (j Job) {
	return Job{
		Label:        Label(win.ID, win.Day, win.StartMinutes),
		Day:          win.Day,
		StartMinutes: win.StartMinutes,
		ProgramArguments: []string{
			cliPath,
			"start-scheduled",
			win.ID,
			win.EndWallclock.UTC().Format(time.RFC3339),
		},
	}
}

// Label returns the deterministic label for a job over id (a bundle_id or
// segment_id), day, and startMinutes (spec.md §4.5): determinism is what
// makes reconciliation idempotent (spec invariant 7).
func Label(id string, day time.Weekday, startMinutes int) (label string) {
	return fmt.Sprintf("%s.%s.%d.%d", LabelPrefix, id, int(day), startMinutes)
}

// plistDoc is the launchd-style calendar-trigger job descriptor (spec.md
// §6's Timer job descriptor): a label, a program-arguments list, and a
// calendar trigger.  The Weekday/Hour/Minute trigger repeats every week and
// the document has no Disabled key, so a job is not disabled after it
// fires; it stays installed until a later Reconciler.Reconcile no longer
// finds its label among the desired jobs and unloads it.
type plistDoc struct {
	Label                 string            `plist:"Label"`
	ProgramArguments      []string          `plist:"ProgramArguments"`
	StartCalendarInterval map[string]int    `plist:"StartCalendarInterval"`
	RunAtLoad             bool              `plist:"RunAtLoad"`
}

// Encode renders j as a launchd-style plist document.
func (j Job) Encode() (data []byte, err error) {
	doc := plistDoc{
		Label:            j.Label,
		ProgramArguments: j.ProgramArguments,
		StartCalendarInterval: map[string]int{
			"Weekday": int(j.Day),
			"Hour":    j.StartMinutes / 60,
			"Minute":  j.StartMinutes % 60,
		},
		RunAtLoad: false,
	}

	data, err = plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("timerjob: encoding %q: %w", j.Label, err)
	}

	return data, nil
}

// Loader installs and removes jobs with the host's timer/launcher service.
// Implementations live in per-OS files (loader_darwin.go, loader_linux.go),
// matching the enforcement channels' pluggable-per-OS pattern (spec.md
// §4.6).
type Loader interface {
	// Load installs the job described by plistData under label with the
	// host timer service (the launchd loader writes it to disk first).
	Load(label string, plistData []byte) (err error)

	// Unload removes the job with the given label.
	Unload(label string) (err error)

	// Installed returns the labels of every currently installed job whose
	// label begins with LabelPrefix.
	Installed() (labels []string, err error)
}

// Reconciler drives the host's installed timer jobs toward a desired set
// (spec.md §4.5's reconciliation loop).
type Reconciler struct {
	loader  Loader
	cliPath string
}

// NewReconciler returns a Reconciler that installs jobs invoking cliPath
// through loader.
func NewReconciler(loader Loader, cliPath string) (r *Reconciler) {
	return &Reconciler{loader: loader, cliPath: cliPath}
}

// RegisterFunc is called once per newly-installed job, before the job is
// written to disk, so the caller can perform the daemon's RegisterSchedule
// IPC call first (spec.md §4.5 step 4: one elevation prompt per bundle per
// session).
type RegisterFunc func(win window.Window) (err error)

// Reconcile enumerates installed jobs, computes the desired set from
// windows, uninstalls anything installed-but-undesired, and installs
// anything desired-but-not-installed, leaving matches untouched (spec.md
// §4.5 steps 1-3, spec invariant 7's idempotence).
func (r *Reconciler) Reconcile(windows []window.Window, register RegisterFunc) (err error) {
	installed, err := r.loader.Installed()
	if err != nil {
		return fmt.Errorf("%w: listing installed jobs: %s", ErrTransient, err)
	}

	installedSet := map[string]bool{}
	for _, label := range installed {
		installedSet[label] = true
	}

	desired := map[string]window.Window{}
	for _, win := range windows {
		desired[Label(win.ID, win.Day, win.StartMinutes)] = win
	}

	for label := range installedSet {
		if _, ok := desired[label]; !ok {
			if uErr := r.loader.Unload(label); uErr != nil {
				log.Error("timerjob: unloading stale job %q: %s", label, uErr)
			}
		}
	}

	// Install in a stable order so logs/tests are deterministic.
	labels := make([]string, 0, len(desired))
	for label := range desired {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	for _, label := range labels {
		if installedSet[label] {
			continue
		}

		win := desired[label]

		if register != nil {
			if rErr := register(win); rErr != nil {
				return fmt.Errorf("timerjob: registering %q: %w", label, rErr)
			}
		}

		job := NewJob(r.cliPath, win)

		data, eErr := job.Encode()
		if eErr != nil {
			return eErr
		}

		if lErr := r.loader.Load(label, data); lErr != nil {
			return fmt.Errorf("%w: loading %q: %s", ErrTransient, label, lErr)
		}
	}

	return nil
}

// HasPrefix reports whether label belongs to focusd's reserved job
// namespace.
func HasPrefix(label string) (ok bool) {
	return strings.HasPrefix(label, LabelPrefix+".")
}
