package timespan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/timespan"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    timespan.Seconds
		wantErr bool
	}{
		{name: "hh:mm", input: "08:30", want: 8*3600 + 30*60},
		{name: "hh:mm:ss", input: "08:30:15", want: 8*3600 + 30*60 + 15},
		{name: "after midnight", input: "25:15:00", want: 25*3600 + 15*60},
		{name: "padded", input: " 06:00 ", want: 6 * 3600},
		{name: "bad minutes", input: "08:61", wantErr: true},
		{name: "bad seconds", input: "08:00:60", wantErr: true},
		{name: "missing part", input: "08", wantErr: true},
		{name: "not a number", input: "ab:00", wantErr: true},
		{name: "negative", input: "-1:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := timespan.ParseClock(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, timespan.ErrInvalidClock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeconds_String(t *testing.T) {
	assert.Equal(t, "08:05:09", timespan.Clock(8, 5, 9).String())
	assert.Equal(t, "25:15:00", timespan.Clock(25, 15, 0).String())
	assert.Equal(t, "-00:01:00", (-timespan.Minute).String())
}

func TestOverlaps(t *testing.T) {
	at := timespan.MustParseClock
	tests := []struct {
		name string
		a, b timespan.Interval
		want bool
	}{
		{
			name: "disjoint",
			a:    timespan.Interval{Start: at("08:00"), End: at("09:00")},
			b:    timespan.Interval{Start: at("10:00"), End: at("11:00")},
			want: false,
		},
		{
			name: "back to back",
			a:    timespan.Interval{Start: at("08:00"), End: at("12:00")},
			b:    timespan.Interval{Start: at("12:00"), End: at("16:00")},
			want: false,
		},
		{
			name: "partial",
			a:    timespan.Interval{Start: at("08:00"), End: at("12:00")},
			b:    timespan.Interval{Start: at("11:00"), End: at("15:00")},
			want: true,
		},
		{
			name: "contained",
			a:    timespan.Interval{Start: at("08:00"), End: at("12:00")},
			b:    timespan.Interval{Start: at("09:00"), End: at("10:00")},
			want: true,
		},
		{
			name: "across midnight",
			a:    timespan.Interval{Start: at("23:30"), End: at("25:15")},
			b:    timespan.Interval{Start: at("24:30"), End: at("26:00")},
			want: true,
		},
		{
			name: "empty interval inside another",
			a:    timespan.Interval{Start: at("08:00"), End: at("12:00")},
			b:    timespan.Interval{Start: at("09:00"), End: at("09:00")},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timespan.Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, timespan.Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestOverlaps_Reflexive(t *testing.T) {
	for _, i := range []timespan.Interval{
		{Start: 0, End: 1},
		{Start: timespan.Clock(23, 0, 0), End: timespan.Clock(26, 0, 0)},
		timespan.NewInterval(timespan.Hour, timespan.Minute),
	} {
		assert.True(t, i.Overlaps(i), "%s should overlap itself", i)
	}
}

func TestDuration(t *testing.T) {
	i := timespan.Interval{Start: timespan.Clock(23, 30, 0), End: timespan.Clock(25, 15, 0)}
	assert.Equal(t, timespan.Seconds(105*60), timespan.Duration(i))
	assert.True(t, i.Valid())
	assert.False(t, i.Empty())
	assert.Equal(t, "[23:30:00, 25:15:00)", i.String())
}

func TestFromClock(t *testing.T) {
	serviceStart := timespan.Clock(4, 0, 0)

	assert.Equal(t, timespan.Clock(23, 30, 0), timespan.FromClock(timespan.Clock(23, 30, 0), serviceStart))
	assert.Equal(t, timespan.Clock(25, 15, 0), timespan.FromClock(timespan.Clock(1, 15, 0), serviceStart))
	assert.Equal(t, timespan.Clock(4, 0, 0), timespan.FromClock(timespan.Clock(4, 0, 0), serviceStart))
	assert.Equal(t, timespan.Clock(25, 0, 0), timespan.FromClock(timespan.Clock(25, 0, 0), serviceStart))
}

func TestShiftByOffset(t *testing.T) {
	start := timespan.Clock(23, 50, 0)
	assert.Equal(t, timespan.Clock(24, 5, 0), timespan.ShiftByOffset(start, timespan.Minutes(15)))
	assert.Equal(t, timespan.Clock(23, 40, 0), timespan.ShiftByOffset(start, -timespan.Minutes(10)))
}

func TestHullAndContains(t *testing.T) {
	a := timespan.Interval{Start: 100, End: 200}
	b := timespan.Interval{Start: 150, End: 400}

	h := timespan.Hull(a, b)
	assert.Equal(t, timespan.Interval{Start: 100, End: 400}, h)
	assert.True(t, h.Contains(a))
	assert.True(t, h.Contains(b))
	assert.False(t, a.Contains(b))
}
