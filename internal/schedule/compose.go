package schedule

import (
	"cmp"
	"slices"

	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Compose builds a block from an ordered sequence of legs and a set of breaks.
//
// Each trip must start no earlier than the previous trip's arrival plus its
// recovery and the previous leg's layover. The block runs from the first
// trip's start to the last trip's arrival plus its trailing layover. Breaks
// must fit inside the block without touching any trip's in-service span.
//
// On failure the returned error is either a *validation.Report holding every
// violation found, or a fatal *validation.Error when the input has no trips
// or a negative start time. The output depends only on the input, so
// composing the same legs and breaks twice yields equal blocks.
func Compose(hdr Header, legs []Leg, breaks []BlockBreak) (*Block, error) {
	if len(legs) == 0 {
		return nil, validation.InvalidRange(blockRef(hdr.ID), "block has no trips")
	}
	for _, l := range legs {
		if l.Trip.StartTime < 0 {
			return nil, validation.InvalidRange(tripRef(l.Trip.ID),
				"negative start_time %d", l.Trip.StartTime)
		}
	}

	var report validation.Report
	checkLegs(&report, legs)

	span := composedSpan(legs)
	checkSpan(&report, hdr.ID, span)

	sorted := sortBreaks(breaks)
	checkBreaks(&report, hdr.ID, sorted, legs, span)

	if err := report.Err(); err != nil {
		return nil, err
	}

	b := &Block{
		ID:           hdr.ID,
		CountryID:    hdr.CountryID,
		RouteID:      hdr.RouteID,
		ServiceID:    hdr.ServiceID,
		StartTime:    span.Start,
		EndTime:      span.End,
		BreakMinutes: sumBreaks(sorted),
		Trips:        make([]BlockTrip, len(legs)),
		Breaks:       make([]BlockBreak, len(sorted)),
	}
	for i, l := range legs {
		b.Trips[i] = BlockTrip{
			BlockID:        hdr.ID,
			Sequence:       i + 1,
			TripID:         l.Trip.ID,
			LayoverMinutes: l.LayoverMinutes,
		}
	}
	for i, br := range sorted {
		br.BlockID = hdr.ID
		b.Breaks[i] = br
	}

	return b, nil
}

// checkLegs validates each trip and the spacing between consecutive trips.
func checkLegs(r *validation.Report, legs []Leg) {
	seen := make(map[string]bool, len(legs))

	for i, l := range legs {
		t := l.Trip
		r.Merge(ValidateTrip(t))

		if seen[t.ID] {
			r.Add(validation.KindDuplicate, tripRef(t.ID), "trip appears more than once in block")
		}
		seen[t.ID] = true

		if l.LayoverMinutes < 0 || l.LayoverMinutes > MaxLayoverMinutes {
			r.Add(validation.KindDurationOutOfBounds, tripRef(t.ID),
				"layover_minutes %d outside 0..%d", l.LayoverMinutes, MaxLayoverMinutes)
		}

		if i == 0 {
			continue
		}
		prev := legs[i-1]
		earliest := prev.Trip.End() + prev.Trip.Recovery + prev.Layover()
		if t.StartTime < earliest {
			r.Add(validation.KindSequenceOverlap, tripRef(t.ID),
				"starts at %s, before %s when trip %s frees the vehicle",
				t.StartTime, earliest, prev.Trip.ID)
		}
	}
}

// composedSpan derives block bounds from the legs.
func composedSpan(legs []Leg) timespan.Interval {
	last := legs[len(legs)-1]
	span := timespan.Interval{
		Start: legs[0].Trip.StartTime,
		End:   last.Trip.End() + max(last.Layover(), 0),
	}
	for _, l := range legs {
		span = timespan.Hull(span, l.Trip.Span())
	}
	return span
}

func checkSpan(r *validation.Report, blockID string, span timespan.Interval) {
	d := span.Duration()
	if d < MinBlockSpan || d > MaxBlockSpan {
		r.Add(validation.KindDurationOutOfBounds, blockRef(blockID),
			"span %ds outside %d..%d", d, MinBlockSpan, MaxBlockSpan)
	}
}

// checkBreaks validates break durations and placement. breaks must be sorted
// by start.
func checkBreaks(r *validation.Report, blockID string, breaks []BlockBreak, legs []Leg, bounds timespan.Interval) {
	total := 0
	// reach is the earlier break that ends last.
	var reach BlockBreak

	for i, br := range breaks {
		ref := breakRef(blockID, br)
		iv := br.Interval()

		if br.Duration < MinBreakMinutes || br.Duration > MaxBreakMinutes {
			r.Add(validation.KindDurationOutOfBounds, ref,
				"break_duration %d outside %d..%d minutes", br.Duration, MinBreakMinutes, MaxBreakMinutes)
		}
		total += br.Duration

		if i > 0 {
			switch {
			case breaks[i-1].BreakStart == br.BreakStart:
				r.Add(validation.KindDuplicate, ref, "break_start %s repeated", br.BreakStart)
			case timespan.Overlaps(reach.Interval(), iv):
				r.Add(validation.KindBreakConflict, ref,
					"overlaps break %s", reach.Interval())
			}
		}
		if i == 0 || iv.End > reach.Interval().End {
			reach = br
		}

		if !bounds.Contains(iv) {
			r.Add(validation.KindOutOfBounds, ref,
				"break %s outside block %s", iv, bounds)
		}

		for _, l := range legs {
			if timespan.Overlaps(iv, l.Trip.Span()) {
				r.Add(validation.KindBreakConflict, ref,
					"overlaps trip %s in service %s", l.Trip.ID, l.Trip.Span())
			}
		}
	}

	if total > MaxBlockBreakMinutes {
		r.Add(validation.KindDurationOutOfBounds, blockRef(blockID),
			"break_minutes %d exceeds %d", total, MaxBlockBreakMinutes)
	}
}

func sortBreaks(breaks []BlockBreak) []BlockBreak {
	sorted := slices.Clone(breaks)
	slices.SortStableFunc(sorted, func(a, b BlockBreak) int {
		return cmp.Compare(a.BreakStart, b.BreakStart)
	})
	return sorted
}

func sumBreaks(breaks []BlockBreak) int {
	total := 0
	for _, br := range breaks {
		total += br.Duration
	}
	return total
}
