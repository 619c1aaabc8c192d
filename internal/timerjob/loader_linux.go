//go:build linux

package timerjob

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"

	"howett.net/plist"
)

// systemdLoader is the Loader implementation backed by transient systemd
// user timer units, the Linux counterpart to launchd (loader_darwin.go).
// Calendar triggers are expressed as systemd OnCalendar specs; unit names
// double as the job label, matching the "deterministic label" requirement
// of spec.md §4.5.
type systemdLoader struct{}

// NewLoader returns the Linux systemd-backed Loader.
func NewLoader(_ string) (l Loader) {
	return &systemdLoader{}
}

// unitName turns a job label into a systemd timer unit name by appending
// ".timer"; the label itself is used unescaped.
func unitName(label string) (name string) {
	return label + ".timer"
}

// Load implements the [Loader] interface for *systemdLoader.  It decodes
// the plist's StartCalendarInterval and ProgramArguments back out of
// plistData, which Reconciler.Reconcile produces with Job.Encode, and
// writes no file of its own.
func (l *systemdLoader) Load(label string, plistData []byte) (err error) {
	doc, err := decodePlist(plistData)
	if err != nil {
		return fmt.Errorf("decoding plist for %q: %w", label, err)
	}

	calendar := fmt.Sprintf(
		"%s *-*-* %02d:%02d:00",
		weekdayAbbrev(doc.StartCalendarInterval["Weekday"]),
		doc.StartCalendarInterval["Hour"],
		doc.StartCalendarInterval["Minute"],
	)

	args := append([]string{
		"--user", "--unit=" + unitName(label), "--on-calendar=" + calendar,
		"--timer-property=AccuracySec=1s", "--",
	}, doc.ProgramArguments...)

	out, err := exec.Command("systemd-run", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemd-run: %w: %s", err, out)
	}

	return nil
}

// Unload implements the [Loader] interface for *systemdLoader.
func (l *systemdLoader) Unload(label string) (err error) {
	out, err := exec.Command("systemctl", "--user", "stop", unitName(label)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl stop: %w: %s", err, out)
	}

	return nil
}

// Installed implements the [Loader] interface for *systemdLoader.
func (l *systemdLoader) Installed() (labels []string, err error) {
	out, err := exec.Command(
		"systemctl", "--user", "list-timers", "--all", "--no-legend", "--plain",
	).Output()
	if err != nil {
		return nil, fmt.Errorf("systemctl list-timers: %w", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		for _, f := range fields {
			if strings.HasSuffix(f, ".timer") {
				label := strings.TrimSuffix(f, ".timer")
				if HasPrefix(label) {
					labels = append(labels, label)
				}
			}
		}
	}

	return labels, nil
}

func weekdayAbbrev(weekday int) (abbrev string) {
	names := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	if weekday < 0 || weekday > 6 {
		return "*"
	}

	return names[weekday]
}

// decodePlist decodes the plist document Job.Encode produced back into its
// fields, so the systemd loader can translate the calendar trigger and
// program arguments without the Reconciler needing a second, OS-specific
// code path.
func decodePlist(data []byte) (doc plistDoc, err error) {
	err = plist.Unmarshal(data, &doc)

	return doc, err
}
