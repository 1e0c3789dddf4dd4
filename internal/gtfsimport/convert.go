// Package gtfsimport loads a static GTFS feed into services, routes, stops,
// trips and blocks.
package gtfsimport

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jamespfennell/gtfs"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/network"
	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Options control how feed entities are mapped.
type Options struct {
	// CountryID scopes every imported service, route and stop.
	CountryID string

	// ServiceDayStart, when set, moves trips that start before it onto the
	// previous service day. Feeds that write 00:30 instead of 24:30 need it.
	ServiceDayStart timespan.Seconds
}

// Snapshot is a feed converted to domain types. Entities that could not be
// converted are left out and described in Report.
type Snapshot struct {
	Services []*calendar.Service
	Routes   []network.Route
	Stops    []network.Stop
	Trips    []schedule.Trip
	Blocks   []BlockGroup
	Report   validation.Report

	// Warnings is the number of parser warnings.
	Warnings int
}

// Parse parses a zipped static feed and converts it.
func Parse(data []byte, opts Options) (*Snapshot, error) {
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse gtfs: %w", err)
	}
	return Convert(static, opts), nil
}

// Convert maps a parsed feed to domain types.
func Convert(static *gtfs.Static, opts Options) *Snapshot {
	snap := &Snapshot{Warnings: len(static.Warnings)}

	for _, s := range static.Services {
		svc := &calendar.Service{
			ID:        s.Id,
			CountryID: opts.CountryID,
			Name:      s.Id,
			Monday:    s.Monday,
			Tuesday:   s.Tuesday,
			Wednesday: s.Wednesday,
			Thursday:  s.Thursday,
			Friday:    s.Friday,
			Saturday:  s.Saturday,
			Sunday:    s.Sunday,
			DateStart: calendar.Day(s.StartDate),
			DateEnd:   calendar.Day(s.EndDate),
		}
		var fe *validation.Error
		if errors.As(svc.Validate(), &fe) {
			snap.Report.AddViolation(fe.Violation())
			continue
		}
		snap.Services = append(snap.Services, svc)
	}

	validFrom := earliestStart(snap.Services)
	for _, r := range static.Routes {
		snap.Routes = append(snap.Routes, network.Route{
			ID:        r.Id,
			CountryID: opts.CountryID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Active:    true,
			ValidFrom: validFrom,
		})
	}

	for _, s := range static.Stops {
		ref := validation.Ref("stop", s.Id)
		if s.Latitude == nil || s.Longitude == nil {
			snap.Report.Add(validation.KindInvalidField, ref, "stop has no coordinates")
			continue
		}
		stop := network.Stop{
			ID:        s.Id,
			CountryID: opts.CountryID,
			Name:      s.Name,
			Lat:       *s.Latitude,
			Lon:       *s.Longitude,
		}
		if r := stop.Validate(); !r.OK() {
			snap.Report.Merge(r)
			continue
		}
		snap.Stops = append(snap.Stops, stop)
	}

	blockIDs := make(map[string]string)
	for _, t := range static.Trips {
		times := make([]stopTime, len(t.StopTimes))
		for i, st := range t.StopTimes {
			times[i] = stopTime{
				sequence:  int(st.StopSequence),
				stopID:    st.Stop.Id,
				arrival:   fromDuration(st.ArrivalTime),
				departure: fromDuration(st.DepartureTime),
			}
		}

		trip, err := buildTrip(t.ID, t.Route.Id, t.Service.Id, times, opts.ServiceDayStart)
		if err != nil {
			snap.Report.Add(validation.KindInvalidField, validation.Ref("trip", t.ID), "%v", err)
			continue
		}
		snap.Trips = append(snap.Trips, trip)
		if t.BlockID != "" {
			blockIDs[t.ID] = t.BlockID
		}
	}

	snap.Blocks = GroupBlocks(snap.Trips, blockIDs)
	return snap
}

type stopTime struct {
	sequence  int
	stopID    string
	arrival   timespan.Seconds
	departure timespan.Seconds
}

func fromDuration(d time.Duration) timespan.Seconds {
	return timespan.Seconds(d / time.Second)
}

// buildTrip turns absolute feed stop times into a trip whose stop times are
// offsets from its first departure.
func buildTrip(id, routeID, serviceID string, times []stopTime, dayStart timespan.Seconds) (schedule.Trip, error) {
	if len(times) < 2 {
		return schedule.Trip{}, fmt.Errorf("trip has %d stop times, need at least 2", len(times))
	}
	times = slices.Clone(times)
	slices.SortFunc(times, func(a, b stopTime) int { return cmp.Compare(a.sequence, b.sequence) })

	first, last := times[0].departure, times[len(times)-1].arrival
	// Times already written past 24:00 are on the right service day.
	start := first
	if dayStart > 0 && first < timespan.Day {
		start = timespan.FromClock(first, dayStart)
	}

	trip := schedule.Trip{
		ID:        id,
		RouteID:   routeID,
		ServiceID: serviceID,
		StartTime: start,
		Runtime:   last - first,
		StopTimes: make([]schedule.StopTime, len(times)),
	}
	for i, st := range times {
		trip.StopTimes[i] = schedule.StopTime{
			TripID:       id,
			StopSequence: st.sequence,
			StopID:       st.stopID,
			Arrival:      st.arrival - first,
			Departure:    st.departure - first,
		}
	}
	// The first stop is boarded at the trip start whatever its arrival says.
	trip.StopTimes[0].Arrival = 0
	return trip, nil
}

func earliestStart(services []*calendar.Service) time.Time {
	var earliest time.Time
	for _, s := range services {
		if earliest.IsZero() || s.DateStart.Before(earliest) {
			earliest = s.DateStart
		}
	}
	if earliest.IsZero() {
		return calendar.Day(time.Now())
	}
	return earliest
}
