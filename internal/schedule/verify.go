package schedule

import (
	"slices"

	"github.com/arknettransit/dutyplan/internal/validation"
)

// Verify re-checks a stored block against the trips it references.
//
// Besides the checks Compose performs, it verifies that sequence numbers run
// 1..n without gaps, that every referenced trip exists, that the stored
// bounds contain every trip and break, and that the stored break_minutes
// matches the sum of break durations.
func Verify(b *Block, trips map[string]Trip) error {
	if b.EndTime <= b.StartTime {
		return validation.InvalidRange(blockRef(b.ID),
			"end_time %s is not after start_time %s", b.EndTime, b.StartTime)
	}
	if len(b.Trips) == 0 {
		return validation.InvalidRange(blockRef(b.ID), "block has no trips")
	}

	var report validation.Report

	ordered := slices.Clone(b.Trips)
	slices.SortStableFunc(ordered, func(a, c BlockTrip) int { return a.Sequence - c.Sequence })

	next := 1
	legs := make([]Leg, 0, len(ordered))
	for i, bt := range ordered {
		switch {
		case i > 0 && bt.Sequence == ordered[i-1].Sequence:
			report.Add(validation.KindDuplicate, blockRef(b.ID), "sequence %d repeated", bt.Sequence)
		case bt.Sequence != next:
			report.Add(validation.KindSequenceGap, blockRef(b.ID),
				"expected sequence %d, found %d", next, bt.Sequence)
		}
		next = bt.Sequence + 1

		t, ok := trips[bt.TripID]
		if !ok {
			report.Add(validation.KindNotFound, tripRef(bt.TripID),
				"referenced by block %s at sequence %d", b.ID, bt.Sequence)
			continue
		}
		legs = append(legs, Leg{Trip: t, LayoverMinutes: bt.LayoverMinutes})
	}

	checkLegs(&report, legs)
	checkSpan(&report, b.ID, b.Span())

	for _, l := range legs {
		if !b.Span().Contains(l.Trip.Span()) {
			report.Add(validation.KindOutOfBounds, tripRef(l.Trip.ID),
				"trip %s outside block %s", l.Trip.Span(), b.Span())
		}
	}

	sorted := sortBreaks(b.Breaks)
	checkBreaks(&report, b.ID, sorted, legs, b.Span())

	if sum := sumBreaks(sorted); sum != b.BreakMinutes {
		report.Add(validation.KindAggregateMismatch, blockRef(b.ID),
			"break_minutes is %d but breaks sum to %d", b.BreakMinutes, sum)
	}

	return report.Err()
}
