package timerange_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/eyebeam/focusd/internal/timerange"
	"github.com/stretchr/testify/assert"
)

func TestRange_Validate(t *testing.T) {
	testCases := []struct {
		name       string
		r          timerange.Range
		wantErrMsg string
	}{{
		name:       "valid",
		r:          timerange.Range{Start: 0, End: 1440},
		wantErrMsg: "",
	}, {
		name:       "negative_start",
		r:          timerange.Range{Start: -1, End: 10},
		wantErrMsg: "bad time range: start -1 is negative",
	}, {
		name:       "end_too_large",
		r:          timerange.Range{Start: 0, End: 1441},
		wantErrMsg: "bad time range: end 1441 is greater than 1440",
	}, {
		name:       "start_equal_end",
		r:          timerange.Range{Start: 540, End: 540},
		wantErrMsg: "bad time range: start 540 is greater or equal to end 540",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)
		})
	}
}

func TestInvert(t *testing.T) {
	testCases := []struct {
		name    string
		allowed []timerange.Range
		want    []timerange.Range
	}{{
		name:    "empty_day_fully_blocked",
		allowed: nil,
		want:    []timerange.Range{{Start: 0, End: 1440}},
	}, {
		name:    "all_day_allowed",
		allowed: []timerange.Range{{Start: 0, End: 1440}},
		want:    nil,
	}, {
		name:    "work_hours",
		allowed: []timerange.Range{{Start: 540, End: 1020}},
		want: []timerange.Range{
			{Start: 0, End: 540},
			{Start: 1020, End: 1440},
		},
	}, {
		name:    "two_windows",
		allowed: []timerange.Range{{Start: 60, End: 120}, {Start: 600, End: 660}},
		want: []timerange.Range{
			{Start: 0, End: 60},
			{Start: 120, End: 600},
			{Start: 660, End: 1440},
		},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, timerange.Invert(tc.allowed))
		})
	}
}

func TestInvert_Involution(t *testing.T) {
	// invert(invert(d)) equals d after coalescing — spec invariant 2.
	allowed := []timerange.Range{{Start: 60, End: 120}, {Start: 600, End: 660}}

	blocked := timerange.Invert(allowed)
	roundTripped := timerange.Invert(blocked)

	assert.Equal(t, timerange.Union(allowed), roundTripped)
}

func TestIsLoosening(t *testing.T) {
	testCases := []struct {
		name string
		old  []timerange.Range
		new  []timerange.Range
		want bool
	}{{
		name: "identical",
		old:  []timerange.Range{{Start: 540, End: 1020}},
		new:  []timerange.Range{{Start: 540, End: 1020}},
		want: false,
	}, {
		name: "tightened",
		old:  []timerange.Range{{Start: 540, End: 1020}},
		new:  []timerange.Range{{Start: 600, End: 960}},
		want: false,
	}, {
		name: "loosened_start",
		old:  []timerange.Range{{Start: 540, End: 1020}},
		new:  []timerange.Range{{Start: 480, End: 1020}},
		want: true,
	}, {
		name: "loosened_end",
		old:  []timerange.Range{{Start: 540, End: 1020}},
		new:  []timerange.Range{{Start: 540, End: 1080}},
		want: true,
	}, {
		name: "both_empty",
		old:  nil,
		new:  nil,
		want: false,
	}, {
		name: "new_adds_any_allowed_time",
		old:  nil,
		new:  []timerange.Range{{Start: 0, End: 1}},
		want: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, timerange.IsLoosening(tc.old, tc.new))
		})
	}
}

func TestUnion(t *testing.T) {
	in := []timerange.Range{
		{Start: 600, End: 840},
		{Start: 540, End: 720},
		{Start: 900, End: 900 + 1},
	}
	want := []timerange.Range{
		{Start: 540, End: 840},
		{Start: 900, End: 901},
	}

	assert.Equal(t, want, timerange.Union(in))
}
