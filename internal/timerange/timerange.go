// Package timerange provides the per-day time-range algebra the scheduling
// engine is built on: ordered, disjoint minute intervals, inversion, union,
// intersection, and the loosening comparison used by commitment enforcement.
package timerange

import (
	"fmt"
	"sort"

	"github.com/AdguardTeam/golibs/errors"
)

// MinutesPerDay is the number of minutes in a day: Start must be below it,
// and End may equal it.
const MinutesPerDay = 24 * 60

// Range is an interval of minutes-from-midnight local wall-clock time.  It
// contains a minute m iff Start <= m < End.
type Range struct {
	Start int
	End   int
}

// Validate returns an error if r isn't a well-formed range within a single
// day.
func (r Range) Validate() (err error) {
	defer func() { err = errors.Annotate(err, "bad time range: %w") }()

	switch {
	case r.Start < 0:
		return fmt.Errorf("start %d is negative", r.Start)
	case r.End > MinutesPerDay:
		return fmt.Errorf("end %d is greater than %d", r.End, MinutesPerDay)
	case r.Start >= r.End:
		return fmt.Errorf("start %d is greater or equal to end %d", r.Start, r.End)
	default:
		return nil
	}
}

// Contains returns true if minute is within [r.Start, r.End).
func (r Range) Contains(minute int) (ok bool) {
	return r.Start <= minute && minute < r.End
}

// Duration returns the length of r in minutes.
func (r Range) Duration() int {
	return r.End - r.Start
}

// Sorted reports whether ranges are non-decreasing by Start.
func Sorted(ranges []Range) (ok bool) {
	return sort.SliceIsSorted(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})
}

// Disjoint reports whether no two ranges in a sorted slice overlap or touch.
// ranges must already satisfy [Sorted].
func Disjoint(ranges []Range) (ok bool) {
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start <= ranges[i-1].End {
			return false
		}
	}

	return true
}

// Union merges overlapping or adjacent ranges into the minimal sorted,
// disjoint covering set.  It does not mutate ranges.
func Union(ranges []Range) (merged []Range) {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}

		return sorted[i].End < sorted[j].End
	})

	merged = append(merged, sorted[0])
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start > last.End {
			merged = append(merged, r)

			continue
		}

		if r.End > last.End {
			last.End = r.End
		}
	}

	return merged
}

// Invert returns the complement of allowed (which must be sorted and
// disjoint) within [0, MinutesPerDay), dropping zero-length segments.  This
// is how block windows are derived from allowed windows (spec §4.1, §4.4).
func Invert(allowed []Range) (blocked []Range) {
	cursor := 0
	for _, r := range allowed {
		if r.Start > cursor {
			blocked = append(blocked, Range{Start: cursor, End: r.Start})
		}

		if r.End > cursor {
			cursor = r.End
		}
	}

	if cursor < MinutesPerDay {
		blocked = append(blocked, Range{Start: cursor, End: MinutesPerDay})
	}

	return blocked
}

// Intersect returns the ranges common to both a and b.  a and b must each be
// sorted and disjoint.
func Intersect(a, b []Range) (result []Range) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := max(a[i].Start, b[j].Start)
		end := min(a[i].End, b[j].End)
		if start < end {
			result = append(result, Range{Start: start, End: end})
		}

		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}

	return result
}

// IsLoosening returns true iff new allows any minute that old blocks, i.e.
// new is not a subset of old's allowed minutes.  old and new must each be
// sorted and disjoint.  This is the monotonicity primitive behind commitment
// enforcement (spec §4.1, §4.3).
func IsLoosening(old, new []Range) (ok bool) {
	oldBlocked := Invert(old)
	newAllowed := Union(new)

	return len(Intersect(oldBlocked, newAllowed)) > 0
}
