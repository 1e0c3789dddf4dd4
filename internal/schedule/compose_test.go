package schedule_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

var header = schedule.Header{ID: "blk_1", CountryID: "zm", RouteID: "r_12", ServiceID: "svc_weekday"}

func trip(id, start string, runtime timespan.Seconds) schedule.Trip {
	return schedule.Trip{
		ID:        id,
		RouteID:   "r_12",
		ServiceID: "svc_weekday",
		StartTime: timespan.MustParseClock(start),
		Runtime:   runtime,
	}
}

func leg(t schedule.Trip, layover int) schedule.Leg {
	return schedule.Leg{Trip: t, LayoverMinutes: layover}
}

func brk(start string, minutes int) schedule.BlockBreak {
	return schedule.BlockBreak{BreakStart: timespan.MustParseClock(start), Duration: minutes}
}

func requireReport(t *testing.T, err error) *validation.Report {
	t.Helper()
	require.Error(t, err)
	r, ok := validation.AsReport(err)
	require.True(t, ok, "expected a validation report, got %v", err)
	return r
}

func TestCompose_BackToBackTrips(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "08:00", 30*timespan.Minute), 0),
		leg(trip("b", "08:30", 30*timespan.Minute), 0),
	}

	b, err := schedule.Compose(header, legs, nil)
	require.NoError(t, err)

	assert.Equal(t, timespan.MustParseClock("08:00"), b.StartTime)
	assert.Equal(t, timespan.MustParseClock("09:00"), b.EndTime)
	assert.Equal(t, 0, b.BreakMinutes)
	require.Len(t, b.Trips, 2)
	assert.Equal(t, schedule.BlockTrip{BlockID: "blk_1", Sequence: 1, TripID: "a"}, b.Trips[0])
	assert.Equal(t, schedule.BlockTrip{BlockID: "blk_1", Sequence: 2, TripID: "b"}, b.Trips[1])
	assert.Equal(t, "zm", b.CountryID)
}

func TestCompose_SequenceOverlap(t *testing.T) {
	tests := []struct {
		name     string
		first    schedule.Trip
		layover  int
		second   schedule.Trip
		overlaps bool
	}{
		{
			name:     "starts before previous arrival",
			first:    trip("a", "08:00", 45*timespan.Minute),
			second:   trip("b", "08:40", 30*timespan.Minute),
			overlaps: true,
		},
		{
			name: "starts inside recovery",
			first: func() schedule.Trip {
				tr := trip("a", "08:00", 30*timespan.Minute)
				tr.Recovery = 5 * timespan.Minute
				return tr
			}(),
			second:   trip("b", "08:33", 30*timespan.Minute),
			overlaps: true,
		},
		{
			name: "starts right after recovery",
			first: func() schedule.Trip {
				tr := trip("a", "08:00", 30*timespan.Minute)
				tr.Recovery = 5 * timespan.Minute
				return tr
			}(),
			second: trip("b", "08:35", 30*timespan.Minute),
		},
		{
			name:     "starts inside layover",
			first:    trip("a", "08:00", 30*timespan.Minute),
			layover:  10,
			second:   trip("b", "08:35", 30*timespan.Minute),
			overlaps: true,
		},
		{
			name:    "starts after layover",
			first:   trip("a", "08:00", 30*timespan.Minute),
			layover: 10,
			second:  trip("b", "08:40", 30*timespan.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schedule.Compose(header, []schedule.Leg{leg(tt.first, tt.layover), leg(tt.second, 0)}, nil)
			if !tt.overlaps {
				assert.NoError(t, err)
				return
			}
			r := requireReport(t, err)
			assert.ErrorIs(t, err, validation.ErrSequenceOverlap)
			require.Equal(t, 1, r.Len())
			assert.Equal(t, "b", r.Violations[0].Entity.ID)
		})
	}
}

func TestCompose_SpanBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		legs   []schedule.Leg
		wantOK bool
	}{
		{
			name:   "one minute",
			legs:   []schedule.Leg{leg(trip("a", "08:00", 60), 0)},
			wantOK: true,
		},
		{
			name: "fifty nine seconds",
			legs: []schedule.Leg{leg(trip("a", "08:00", 59), 0)},
		},
		{
			name: "twelve hours",
			legs: []schedule.Leg{
				leg(trip("a", "08:00", 8*timespan.Hour), 0),
				leg(trip("b", "16:00", 4*timespan.Hour), 0),
			},
			wantOK: true,
		},
		{
			name: "twelve hours and one second",
			legs: []schedule.Leg{
				leg(trip("a", "08:00", 8*timespan.Hour), 0),
				leg(trip("b", "16:00", 4*timespan.Hour+1), 0),
			},
		},
		{
			name: "trailing layover counts",
			legs: []schedule.Leg{
				leg(trip("a", "08:00", 8*timespan.Hour), 0),
				leg(trip("b", "16:00", 4*timespan.Hour), 1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := schedule.Compose(header, tt.legs, nil)
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, b.EndTime-b.StartTime, b.Span().Duration())
				return
			}
			r := requireReport(t, err)
			assert.ErrorIs(t, err, validation.ErrDurationOutOfBounds)

			var blockLevel bool
			for _, v := range r.Violations {
				if v.Kind == validation.KindDurationOutOfBounds && v.Entity.Type == "block" {
					blockLevel = true
				}
			}
			assert.True(t, blockLevel, "expected a block span violation in %v", r)
		})
	}
}

func TestCompose_TrailingLayoverExtendsEnd(t *testing.T) {
	b, err := schedule.Compose(header, []schedule.Leg{leg(trip("a", "08:00", 30*timespan.Minute), 15)}, nil)
	require.NoError(t, err)
	assert.Equal(t, timespan.MustParseClock("08:45"), b.EndTime)
}

func TestCompose_AcrossMidnight(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("late", "23:30", timespan.Hour), 10),
		leg(trip("owl", "24:40", 30*timespan.Minute), 0),
	}

	b, err := schedule.Compose(header, legs, []schedule.BlockBreak{brk("24:30", 10)})
	require.NoError(t, err)
	assert.Equal(t, "[23:30:00, 25:10:00)", b.Span().String())
}

func TestCompose_Breaks(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "08:00", 30*timespan.Minute), 0),
		leg(trip("b", "09:00", 30*timespan.Minute), 0),
	}

	tests := []struct {
		name     string
		breaks   []schedule.BlockBreak
		wantKind validation.Kind
	}{
		{name: "in gap", breaks: []schedule.BlockBreak{brk("08:30", 30)}},
		{name: "overlaps trip", breaks: []schedule.BlockBreak{brk("08:10", 10)}, wantKind: validation.KindBreakConflict},
		{name: "runs into next trip", breaks: []schedule.BlockBreak{brk("08:45", 20)}, wantKind: validation.KindBreakConflict},
		{name: "too short", breaks: []schedule.BlockBreak{brk("08:30", 4)}, wantKind: validation.KindDurationOutOfBounds},
		{name: "outside block", breaks: []schedule.BlockBreak{brk("09:30", 10)}, wantKind: validation.KindOutOfBounds},
		{
			name:     "overlapping breaks",
			breaks:   []schedule.BlockBreak{brk("08:30", 20), brk("08:40", 10)},
			wantKind: validation.KindBreakConflict,
		},
		{
			name:     "repeated start",
			breaks:   []schedule.BlockBreak{brk("08:30", 10), brk("08:30", 10)},
			wantKind: validation.KindDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := schedule.Compose(header, legs, tt.breaks)
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, 30, b.BreakMinutes)
				return
			}
			r := requireReport(t, err)
			assert.True(t, r.Has(tt.wantKind), "expected %s in %v", tt.wantKind, r)
		})
	}
}

func TestCompose_NestedBreaks(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "08:00", 30*timespan.Minute), 0),
		leg(trip("b", "09:30", 30*timespan.Minute), 0),
	}
	// The hour-long break contains both short ones.
	breaks := []schedule.BlockBreak{brk("08:30", 60), brk("08:40", 5), brk("08:50", 5)}

	_, err := schedule.Compose(header, legs, breaks)
	r := requireReport(t, err)

	var conflicts []string
	for _, v := range r.Violations {
		if v.Kind == validation.KindBreakConflict {
			conflicts = append(conflicts, v.Entity.ID)
		}
	}
	require.Len(t, conflicts, 2, "%v", r)
	assert.Equal(t, r.Len(), len(conflicts))
}

func TestCompose_BreakMinutesCap(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "06:00", timespan.Hour), 0),
		leg(trip("b", "17:00", timespan.Hour), 0),
	}
	breaks := []schedule.BlockBreak{brk("07:00", 120), brk("09:00", 70)}

	_, err := schedule.Compose(header, legs, breaks)
	r := requireReport(t, err)
	require.Equal(t, 1, r.Len())
	assert.Equal(t, validation.KindDurationOutOfBounds, r.Violations[0].Kind)
	assert.Equal(t, "block", r.Violations[0].Entity.Type)
}

func TestCompose_ReportsAllViolations(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "08:00", 45*timespan.Minute), 0),
		leg(trip("b", "08:40", 30*timespan.Minute), 200),
	}
	breaks := []schedule.BlockBreak{brk("08:05", 10)}

	_, err := schedule.Compose(header, legs, breaks)
	r := requireReport(t, err)

	assert.True(t, r.Has(validation.KindSequenceOverlap))
	assert.True(t, r.Has(validation.KindBreakConflict))
	assert.True(t, r.Has(validation.KindDurationOutOfBounds), "layover above 120 minutes")
}

func TestCompose_FatalInput(t *testing.T) {
	_, err := schedule.Compose(header, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.ErrInvalidRange)
	assert.True(t, validation.IsFatal(err))

	bad := trip("a", "08:00", timespan.Hour)
	bad.StartTime = -1
	_, err = schedule.Compose(header, []schedule.Leg{leg(bad, 0)}, nil)
	assert.True(t, validation.IsFatal(err))
}

func TestCompose_Deterministic(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "06:00", timespan.Hour), 5),
		leg(trip("b", "07:30", timespan.Hour), 10),
		leg(trip("c", "09:00", timespan.Hour), 0),
	}
	breaks := []schedule.BlockBreak{brk("08:40", 15), brk("07:05", 20)}

	first, err := schedule.Compose(header, legs, breaks)
	require.NoError(t, err)
	second, err := schedule.Compose(header, legs, breaks)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Equal(t, timespan.MustParseClock("07:05"), first.Breaks[0].BreakStart, "breaks sorted by start")
	assert.Equal(t, "blk_1", first.Breaks[0].BlockID)
}

func TestSummarize_MatchesComponents(t *testing.T) {
	legs := []schedule.Leg{
		leg(trip("a", "06:00", timespan.Hour), 5),
		leg(trip("b", "07:30", timespan.Hour), 10),
		leg(trip("c", "09:00", timespan.Hour), 3),
	}
	breaks := []schedule.BlockBreak{brk("07:05", 20), brk("08:40", 15)}

	b, err := schedule.Compose(header, legs, breaks)
	require.NoError(t, err)

	s := schedule.Summarize(b)

	layovers := 0
	for _, l := range legs {
		layovers += l.LayoverMinutes
	}
	breakMinutes := 0
	for _, br := range breaks {
		breakMinutes += br.Duration
	}

	assert.Equal(t, layovers+breakMinutes, s.TotalLayovers+s.TotalBreaks)
	assert.Equal(t, 18, s.TotalLayovers)
	assert.Equal(t, b.BreakMinutes, s.TotalBreaks)
	assert.Equal(t, 3, s.TripCount)
	assert.Equal(t, 2, s.BreakCount)
	assert.Equal(t, timespan.MustParseClock("10:03")-timespan.MustParseClock("06:00"), s.Span)
}

func TestValidateTrip_StopTimes(t *testing.T) {
	tr := trip("a", "08:00", 30*timespan.Minute)
	tr.StopTimes = []schedule.StopTime{
		{TripID: "a", StopSequence: 1, StopID: "s1", Arrival: 0, Departure: 0},
		{TripID: "a", StopSequence: 2, StopID: "s2", Arrival: 600, Departure: 660},
		{TripID: "a", StopSequence: 3, StopID: "s3", Arrival: 1800, Departure: 1800},
	}
	assert.True(t, schedule.ValidateTrip(tr).OK())

	tr.StopTimes = []schedule.StopTime{
		{TripID: "a", StopSequence: 1, StopID: "s1", Arrival: 0, Departure: 120},
		{TripID: "a", StopSequence: 2, StopID: "s2", Arrival: 60, Departure: 50},
		{TripID: "a", StopSequence: 2, StopID: "s2b", Arrival: 70, Departure: 70},
		{TripID: "a", StopSequence: 3, StopID: "s3", Arrival: 1900, Departure: 1900},
	}
	r := schedule.ValidateTrip(tr)
	assert.Equal(t, 3, r.Count(validation.KindStopTimeOrder))
	assert.Equal(t, 1, r.Count(validation.KindDuplicate))
}

func TestValidateTrip_Fields(t *testing.T) {
	dir := 2
	tr := schedule.Trip{ID: "x", Runtime: 30, Recovery: 3601, DirectionID: &dir}

	r := schedule.ValidateTrip(tr)
	assert.Equal(t, 2, r.Count(validation.KindDurationOutOfBounds))
	assert.Equal(t, 1, r.Count(validation.KindInvalidField))
}
