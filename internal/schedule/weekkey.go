package schedule

import (
	"fmt"
	"time"
)

// WeekKey is a string encoding of the Monday-anchored start of a calendar
// week in local time, e.g. "2024-12-23" (spec.md §3).
type WeekKey string

const weekKeyLayout = "2006-01-02"

// StartOfWeek returns the Monday 00:00:00 local wall-clock anchor of the
// week containing t.
func StartOfWeek(t time.Time) (monday time.Time) {
	t = t.In(t.Location())
	// time.Weekday: Sunday=0 ... Saturday=6.  Days since Monday:
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	return midnight.AddDate(0, 0, -offset)
}

// KeyForWeekStart returns the WeekKey for the week whose Monday anchor is
// monday.
func KeyForWeekStart(monday time.Time) (k WeekKey) {
	return WeekKey(monday.Format(weekKeyLayout))
}

// KeyForOffset returns the WeekKey for the week weekOffset weeks after the
// week containing now (weekOffset 0 is "this week", 1 is "next week", per
// spec.md §3/§4.2).
func KeyForOffset(now time.Time, weekOffset int) (k WeekKey) {
	monday := StartOfWeek(now).AddDate(0, 0, 7*weekOffset)

	return KeyForWeekStart(monday)
}

// Anchor parses k back into its Monday 00:00:00 anchor in loc.
func (k WeekKey) Anchor(loc *time.Location) (monday time.Time, err error) {
	monday, err = time.ParseInLocation(weekKeyLayout, string(k), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("week key %q: %w", k, err)
	}

	return monday, nil
}

// OffsetFrom returns how many weeks k is after the week containing now; 0
// means "this week", 1 means "next week".  Used to detect week rollover
// (spec.md §4.2): a schedule stored under a WeekKey stays put, but its
// offset relative to "now" changes as weeks pass.
func (k WeekKey) OffsetFrom(now time.Time) (offset int, err error) {
	anchor, err := k.Anchor(now.Location())
	if err != nil {
		return 0, err
	}

	thisWeek := StartOfWeek(now)
	days := anchor.Sub(thisWeek).Hours() / 24

	return int(days) / 7, nil
}
