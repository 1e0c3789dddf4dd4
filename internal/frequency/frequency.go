// Package frequency expands headway-based service patterns into departures.
package frequency

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Headway bounds.
const (
	MinHeadway = timespan.Minute
	MaxHeadway = 2 * timespan.Hour
)

// Frequency is a repeating-departure pattern for a route under a service.
// (ServiceID, RouteID, StartTime) identifies it.
type Frequency struct {
	ServiceID string           `json:"service_id"`
	RouteID   string           `json:"route_id"`
	StartTime timespan.Seconds `json:"start_time"`
	EndTime   timespan.Seconds `json:"end_time"`
	Headway   timespan.Seconds `json:"headway_s"`
}

// Window returns [StartTime, EndTime).
func (f Frequency) Window() timespan.Interval {
	return timespan.Interval{Start: f.StartTime, End: f.EndTime}
}

func (f Frequency) ref() validation.EntityRef {
	return validation.Ref("frequency", fmt.Sprintf("%s/%s@%s", f.ServiceID, f.RouteID, f.StartTime))
}

// Validate checks the frequency definition. An empty or inverted window is a
// fatal InvalidRange; a headway outside 60..7200 seconds is reported as
// DurationOutOfBounds.
func (f Frequency) Validate() error {
	if f.EndTime <= f.StartTime || f.StartTime < 0 {
		return validation.InvalidRange(f.ref(),
			"end_time %s is not after start_time %s", f.EndTime, f.StartTime)
	}

	var r validation.Report
	if f.Headway < MinHeadway || f.Headway > MaxHeadway {
		r.Add(validation.KindDurationOutOfBounds, f.ref(),
			"headway_s %d outside %d..%d", f.Headway, MinHeadway, MaxHeadway)
	}
	return r.Err()
}

// Expand returns the departures start, start+headway, start+2*headway, ...
// that fall inside both the frequency and the window. Departures before
// window.Start are skipped without shifting the headway phase.
//
// The sequence is recomputed from the definition on every range, so it is
// restartable and never memoized.
func Expand(f Frequency, window timespan.Interval) (iter.Seq[timespan.Seconds], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !window.Valid() {
		return nil, validation.InvalidRange(f.ref(), "window %s is inverted", window)
	}

	return func(yield func(timespan.Seconds) bool) {
		limit := min(f.EndTime, window.End)
		t := f.StartTime
		if window.Start > t {
			steps := (window.Start - t + f.Headway - 1) / f.Headway
			t += steps * f.Headway
		}
		for ; t < limit; t += f.Headway {
			if !yield(t) {
				return
			}
		}
	}, nil
}

// Profile is the fixed runtime pattern applied to every expanded departure.
type Profile struct {
	Runtime     timespan.Seconds `json:"runtime_s"`
	Recovery    timespan.Seconds `json:"recovery_s"`
	ShapeID     string           `json:"shape_id,omitempty"`
	DirectionID *int             `json:"direction_id,omitempty"`
}

// Trips materialises the expanded departures as concrete trips with IDs of the
// form <route>-<service>-<HHMMSS>. Every trip is validated; violations from
// all trips are reported together.
func Trips(f Frequency, window timespan.Interval, p Profile) ([]schedule.Trip, error) {
	seq, err := Expand(f, window)
	if err != nil {
		return nil, err
	}

	var (
		trips  []schedule.Trip
		report validation.Report
	)
	for start := range seq {
		t := schedule.Trip{
			ID:          TripID(f.RouteID, f.ServiceID, start),
			RouteID:     f.RouteID,
			ServiceID:   f.ServiceID,
			ShapeID:     p.ShapeID,
			StartTime:   start,
			Runtime:     p.Runtime,
			Recovery:    p.Recovery,
			DirectionID: p.DirectionID,
		}
		report.Merge(schedule.ValidateTrip(t))
		trips = append(trips, t)
	}

	if err := report.Err(); err != nil {
		return nil, err
	}
	return trips, nil
}

// TripID formats the deterministic ID of a frequency-generated trip.
func TripID(routeID, serviceID string, start timespan.Seconds) string {
	s := int64(start)
	return fmt.Sprintf("%s-%s-%02d%02d%02d", routeID, serviceID, s/3600, (s%3600)/60, s%60)
}

// ValidateSet checks a group of frequencies: identities must be unique and
// windows of the same route and service must not overlap.
func ValidateSet(freqs []Frequency) error {
	sorted := slices.Clone(freqs)
	slices.SortFunc(sorted, func(a, b Frequency) int {
		return cmp.Or(
			cmp.Compare(a.ServiceID, b.ServiceID),
			cmp.Compare(a.RouteID, b.RouteID),
			cmp.Compare(a.StartTime, b.StartTime),
		)
	})

	var (
		r validation.Report
		// reach is the earlier window of the same route and service that ends last.
		reach Frequency
	)
	for i, f := range sorted {
		if err := f.Validate(); err != nil {
			if validation.IsFatal(err) {
				return err
			}
			if fr, ok := validation.AsReport(err); ok {
				r.Merge(fr)
			}
		}
		if i == 0 || reach.ServiceID != f.ServiceID || reach.RouteID != f.RouteID {
			reach = f
			continue
		}
		switch {
		case sorted[i-1].StartTime == f.StartTime:
			r.Add(validation.KindDuplicate, f.ref(), "frequency defined twice")
		case timespan.Overlaps(reach.Window(), f.Window()):
			r.Add(validation.KindSequenceOverlap, f.ref(),
				"window %s overlaps %s", f.Window(), reach.Window())
		}
		if f.EndTime > reach.EndTime {
			reach = f
		}
	}
	return r.Err()
}
