// Package schedule provides the per-bundle weekly allow-schedule: which
// minutes of which days a bundle is not blocked.  It generalizes the
// teacher's single-range-per-day [Weekly] into an ordered, coalesced set of
// allowed windows per day, as spec.md §3's DaySchedule/WeeklySchedule
// require.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/eyebeam/focusd/internal/timerange"
	"gopkg.in/yaml.v3"
)

// ErrLoosening is returned by callers that detect a schedule mutation would
// loosen an already-committed week.  The store's own commitment check
// reports store.ErrCommitmentViolation instead.
const ErrLoosening errors.Error = "schedule: loosening a committed schedule"

// Day is an ordered, pairwise-disjoint set of allowed windows for a single
// day.  An empty Day means the day is blocked all day (spec invariant 1).
type Day struct {
	ranges []timerange.Range
}

// NewDay builds a Day from ranges, sorting and coalescing them.  It returns
// an error if any individual range is invalid.
func NewDay(ranges ...timerange.Range) (d Day, err error) {
	for _, r := range ranges {
		if err = r.Validate(); err != nil {
			return Day{}, fmt.Errorf("day range %v: %w", r, err)
		}
	}

	return Day{ranges: timerange.Union(ranges)}, nil
}

// Allowed returns the day's allowed ranges.  The caller must not mutate the
// returned slice.
func (d Day) Allowed() (ranges []timerange.Range) {
	return d.ranges
}

// Blocked returns the inversion of d's allowed ranges within a single day
// (spec §4.1's invert, spec invariant 2).
func (d Day) Blocked() (ranges []timerange.Range) {
	return timerange.Invert(d.ranges)
}

// IsEmpty reports whether the day has no allowed windows (blocked all day).
func (d Day) IsEmpty() (ok bool) {
	return len(d.ranges) == 0
}

// ContainsMinute reports whether minute falls within one of d's allowed
// ranges.
func (d Day) ContainsMinute(minute int) (ok bool) {
	for _, r := range d.ranges {
		if r.Contains(minute) {
			return true
		}
	}

	return false
}

// IsLoosening reports whether new allows any minute this day blocks — the
// per-day primitive behind spec invariant 3 and spec §4.3's commitment
// check.
func (d Day) IsLoosening(new Day) (ok bool) {
	return timerange.IsLoosening(d.ranges, new.ranges)
}

// Weekly is the allow-schedule for one bundle across all seven days of the
// week, in a fixed time zone.  Indexes of days are [time.Weekday] values,
// matching spec.md §3 (0 = Sunday ... 6 = Saturday).
type Weekly struct {
	location *time.Location
	bundleID string
	days     [7]Day
}

// EmptyWeekly returns a fully-blocked weekly schedule for bundleID in the
// local time zone.
func EmptyWeekly(bundleID string) (w *Weekly) {
	return &Weekly{
		location: time.Local,
		bundleID: bundleID,
	}
}

// BundleID returns the bundle this schedule applies to.
func (w *Weekly) BundleID() (id string) {
	return w.bundleID
}

// Location returns the time zone this schedule's minutes are interpreted in.
func (w *Weekly) Location() (loc *time.Location) {
	return w.location
}

// Day returns the allow-schedule for the given weekday.
func (w *Weekly) Day(wd time.Weekday) (d Day) {
	return w.days[wd]
}

// SetDay replaces the allow-schedule for the given weekday.
func (w *Weekly) SetDay(wd time.Weekday, d Day) {
	w.days[wd] = d
}

// Contains returns true if t falls within the allowed window of its weekday
// in the schedule's time zone.
func (w *Weekly) Contains(t time.Time) (ok bool) {
	t = t.In(w.location)
	y, m, dom := t.Date()
	startOfDay := time.Date(y, m, dom, 0, 0, 0, 0, w.location)
	minute := int(t.Sub(startOfDay) / time.Minute)

	return w.days[t.Weekday()].ContainsMinute(minute)
}

// IsLoosening reports whether new allows, on any day, a minute this schedule
// blocks (spec invariant 3, spec §4.3).
func (w *Weekly) IsLoosening(new *Weekly) (ok bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if w.days[wd].IsLoosening(new.days[wd]) {
			return true
		}
	}

	return false
}

// Clone returns a copy of w with its own days array; each Day's range slice
// is shared with w.
func (w *Weekly) Clone() (clone *Weekly) {
	c := *w

	return &c
}

// type check
var _ yaml.Unmarshaler = (*Weekly)(nil)

// UnmarshalYAML implements the [yaml.Unmarshaler] interface for *Weekly.
func (w *Weekly) UnmarshalYAML(value *yaml.Node) (err error) {
	conf := &weeklyConfig{}

	err = value.Decode(conf)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	weekly := Weekly{bundleID: conf.BundleID}

	weekly.location, err = time.LoadLocation(conf.TimeZone)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	days := []dayConfig{
		time.Sunday:    conf.Sunday,
		time.Monday:    conf.Monday,
		time.Tuesday:   conf.Tuesday,
		time.Wednesday: conf.Wednesday,
		time.Thursday:  conf.Thursday,
		time.Friday:    conf.Friday,
		time.Saturday:  conf.Saturday,
	}
	for i, dc := range days {
		d, dErr := dayFromConfig(dc)
		if dErr != nil {
			return fmt.Errorf("weekday %s: %w", time.Weekday(i), dErr)
		}

		weekly.days[i] = d
	}

	*w = weekly

	return nil
}

// type check
var _ yaml.Marshaler = (*Weekly)(nil)

// MarshalYAML implements the [yaml.Marshaler] interface for *Weekly.
func (w *Weekly) MarshalYAML() (v any, err error) {
	return weeklyConfig{
		BundleID:  w.bundleID,
		TimeZone:  w.location.String(),
		Sunday:    dayToConfig(w.days[time.Sunday]),
		Monday:    dayToConfig(w.days[time.Monday]),
		Tuesday:   dayToConfig(w.days[time.Tuesday]),
		Wednesday: dayToConfig(w.days[time.Wednesday]),
		Thursday:  dayToConfig(w.days[time.Thursday]),
		Friday:    dayToConfig(w.days[time.Friday]),
		Saturday:  dayToConfig(w.days[time.Saturday]),
	}, nil
}

func dayFromConfig(dc dayConfig) (d Day, err error) {
	ranges := make([]timerange.Range, 0, len(dc))
	for _, rc := range dc {
		ranges = append(ranges, timerange.Range{
			Start: int(rc.Start.Duration / time.Minute),
			End:   int(rc.End.Duration / time.Minute),
		})
	}

	return NewDay(ranges...)
}

func dayToConfig(d Day) (dc dayConfig) {
	dc = make(dayConfig, 0, len(d.ranges))
	for _, r := range d.ranges {
		dc = append(dc, rangeConfig{
			Start: timeutil.Duration{Duration: time.Duration(r.Start) * time.Minute},
			End:   timeutil.Duration{Duration: time.Duration(r.End) * time.Minute},
		})
	}

	sort.Slice(dc, func(i, j int) bool { return dc[i].Start.Duration < dc[j].Start.Duration })

	return dc
}

// weeklyConfig is the YAML configuration structure of Weekly.
type weeklyConfig struct {
	Sunday    dayConfig `yaml:"sun,omitempty"`
	Monday    dayConfig `yaml:"mon,omitempty"`
	Tuesday   dayConfig `yaml:"tue,omitempty"`
	Wednesday dayConfig `yaml:"wed,omitempty"`
	Thursday  dayConfig `yaml:"thu,omitempty"`
	Friday    dayConfig `yaml:"fri,omitempty"`
	Saturday  dayConfig `yaml:"sat,omitempty"`

	BundleID string `yaml:"bundle_id"`
	TimeZone string `yaml:"time_zone"`
}

// dayConfig is the YAML configuration structure of Day: a list of allowed
// windows.
type dayConfig []rangeConfig

// rangeConfig is the YAML configuration structure of a single allowed
// window.
type rangeConfig struct {
	Start timeutil.Duration `yaml:"start"`
	End   timeutil.Duration `yaml:"end"`
}
