package schedule

import (
	"fmt"
	"slices"

	"github.com/arknettransit/dutyplan/internal/validation"
)

// ValidateTrip checks a trip's own fields and stop times. It never fails
// fast; every problem is added to the returned report.
func ValidateTrip(t Trip) *validation.Report {
	var r validation.Report
	ref := tripRef(t.ID)

	if t.ID == "" {
		r.Add(validation.KindInvalidField, ref, "trip id is empty")
	}
	if t.Runtime < MinRuntime || t.Runtime > MaxRuntime {
		r.Add(validation.KindDurationOutOfBounds, ref,
			"runtime_s %d outside %d..%d", t.Runtime, MinRuntime, MaxRuntime)
	}
	if t.Recovery < 0 || t.Recovery > MaxRecovery {
		r.Add(validation.KindDurationOutOfBounds, ref,
			"recovery_s %d outside 0..%d", t.Recovery, MaxRecovery)
	}
	if t.DirectionID != nil && *t.DirectionID != 0 && *t.DirectionID != 1 {
		r.Add(validation.KindInvalidField, ref, "direction_id %d is not 0 or 1", *t.DirectionID)
	}

	checkStopTimes(&r, t)
	return &r
}

// checkStopTimes verifies stop_sequence uniqueness and that offsets never
// go backwards as the sequence increases.
func checkStopTimes(r *validation.Report, t Trip) {
	if len(t.StopTimes) == 0 {
		return
	}

	sts := slices.Clone(t.StopTimes)
	slices.SortStableFunc(sts, func(a, b StopTime) int { return a.StopSequence - b.StopSequence })

	for i, st := range sts {
		ref := validation.Ref("stop_time", fmt.Sprintf("%s#%d", t.ID, st.StopSequence))

		if i > 0 && sts[i-1].StopSequence == st.StopSequence {
			r.Add(validation.KindDuplicate, ref, "stop_sequence %d repeated", st.StopSequence)
			continue
		}
		if st.Arrival > st.Departure {
			r.Add(validation.KindStopTimeOrder, ref,
				"arrival %s after departure %s", st.Arrival, st.Departure)
		}
		if st.Arrival < 0 || st.Departure > t.Runtime {
			r.Add(validation.KindStopTimeOrder, ref,
				"offsets [%s, %s] outside trip runtime %s", st.Arrival, st.Departure, t.Runtime)
		}
		if i > 0 && st.Arrival < sts[i-1].Departure {
			r.Add(validation.KindStopTimeOrder, ref,
				"arrives at %s before stop %d departs at %s",
				st.Arrival, sts[i-1].StopSequence, sts[i-1].Departure)
		}
	}
}

func tripRef(id string) validation.EntityRef {
	return validation.Ref("trip", id)
}

func blockRef(id string) validation.EntityRef {
	return validation.Ref("block", id)
}

func breakRef(blockID string, b BlockBreak) validation.EntityRef {
	return validation.Ref("block_break", blockID+"@"+b.BreakStart.String())
}
