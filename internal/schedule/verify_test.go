package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

func storedBlock(t *testing.T) (*schedule.Block, map[string]schedule.Trip) {
	t.Helper()
	legs := []schedule.Leg{
		leg(trip("a", "08:00", 30*timespan.Minute), 0),
		leg(trip("b", "09:00", 30*timespan.Minute), 5),
	}
	b, err := schedule.Compose(header, legs, []schedule.BlockBreak{brk("08:30", 20)})
	require.NoError(t, err)

	trips := map[string]schedule.Trip{}
	for _, l := range legs {
		trips[l.Trip.ID] = l.Trip
	}
	return b, trips
}

func TestVerify_ComposedBlockPasses(t *testing.T) {
	b, trips := storedBlock(t)
	assert.NoError(t, schedule.Verify(b, trips))
}

func TestVerify_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *schedule.Block, trips map[string]schedule.Trip)
		want   validation.Kind
	}{
		{
			name: "sequence gap",
			mutate: func(b *schedule.Block, _ map[string]schedule.Trip) {
				b.Trips[1].Sequence = 3
			},
			want: validation.KindSequenceGap,
		},
		{
			name: "sequence does not start at one",
			mutate: func(b *schedule.Block, _ map[string]schedule.Trip) {
				b.Trips[0].Sequence = 0
			},
			want: validation.KindSequenceGap,
		},
		{
			name: "repeated sequence",
			mutate: func(b *schedule.Block, _ map[string]schedule.Trip) {
				b.Trips[1].Sequence = 1
			},
			want: validation.KindDuplicate,
		},
		{
			name: "missing trip",
			mutate: func(_ *schedule.Block, trips map[string]schedule.Trip) {
				delete(trips, "b")
			},
			want: validation.KindNotFound,
		},
		{
			name: "stored end cuts a trip",
			mutate: func(b *schedule.Block, _ map[string]schedule.Trip) {
				b.EndTime = timespan.MustParseClock("09:20")
			},
			want: validation.KindOutOfBounds,
		},
		{
			name: "break_minutes drifted",
			mutate: func(b *schedule.Block, _ map[string]schedule.Trip) {
				b.BreakMinutes = 25
			},
			want: validation.KindAggregateMismatch,
		},
		{
			name: "trip moved into predecessor",
			mutate: func(_ *schedule.Block, trips map[string]schedule.Trip) {
				tr := trips["b"]
				tr.StartTime = timespan.MustParseClock("08:20")
				trips["b"] = tr
			},
			want: validation.KindSequenceOverlap,
		},
		{
			name: "trip moved onto break",
			mutate: func(_ *schedule.Block, trips map[string]schedule.Trip) {
				tr := trips["a"]
				tr.Runtime = 40 * timespan.Minute
				trips["a"] = tr
			},
			want: validation.KindBreakConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, trips := storedBlock(t)
			tt.mutate(b, trips)

			err := schedule.Verify(b, trips)
			r := requireReport(t, err)
			assert.True(t, r.Has(tt.want), "expected %s in %v", tt.want, r)
		})
	}
}

func TestVerify_Fatal(t *testing.T) {
	b, trips := storedBlock(t)
	b.EndTime = b.StartTime

	err := schedule.Verify(b, trips)
	assert.True(t, validation.IsFatal(err))
	assert.ErrorIs(t, err, validation.ErrInvalidRange)

	b, trips = storedBlock(t)
	b.Trips = nil
	assert.True(t, validation.IsFatal(schedule.Verify(b, trips)))
}
