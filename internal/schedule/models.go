// Package schedule composes trips and breaks into duty blocks.
//
// All times are service-day offsets (see package timespan), so a block that
// crosses midnight needs no special casing.
package schedule

import (
	"errors"
	"slices"

	"github.com/arknettransit/dutyplan/internal/timespan"
)

// Schedule errors.
var (
	ErrBlockNotFound      = errors.New("block not found")
	ErrTripNotFound       = errors.New("trip not found")
	ErrTripAlreadyBlocked = errors.New("trip already belongs to another block")
)

// Bounds enforced on trips, blocks and breaks.
const (
	MinRuntime  = timespan.Minute
	MaxRuntime  = 8 * timespan.Hour
	MaxRecovery = timespan.Hour

	MinBlockSpan = timespan.Minute
	MaxBlockSpan = 12 * timespan.Hour

	MaxLayoverMinutes    = 120
	MinBreakMinutes      = 5
	MaxBreakMinutes      = 120
	MaxBlockBreakMinutes = 180
)

// Trip is one scheduled one-way run of a route under a service calendar.
type Trip struct {
	ID        string           `json:"id"`
	RouteID   string           `json:"route_id"`
	ServiceID string           `json:"service_id"`
	ShapeID   string           `json:"shape_id,omitempty"`
	StartTime timespan.Seconds `json:"start_time"`
	Runtime   timespan.Seconds `json:"runtime_s"`

	// Recovery is slack after arrival before the vehicle may depart again.
	Recovery    timespan.Seconds `json:"recovery_s"`
	DirectionID *int             `json:"direction_id,omitempty"`
	Sequence    *int             `json:"sequence,omitempty"`
	StopTimes   []StopTime       `json:"stop_times,omitempty"`
}

// Span returns the in-service interval [start, start+runtime).
func (t Trip) Span() timespan.Interval {
	return timespan.NewInterval(t.StartTime, t.Runtime)
}

// End returns the scheduled arrival.
func (t Trip) End() timespan.Seconds {
	return t.StartTime + t.Runtime
}

// Clone returns a deep copy of the trip.
func (t Trip) Clone() Trip {
	cpy := t
	cpy.StopTimes = slices.Clone(t.StopTimes)
	if t.DirectionID != nil {
		d := *t.DirectionID
		cpy.DirectionID = &d
	}
	if t.Sequence != nil {
		s := *t.Sequence
		cpy.Sequence = &s
	}
	return cpy
}

// StopTime is a stop visit expressed as offsets from the trip start.
type StopTime struct {
	TripID       string           `json:"trip_id"`
	StopSequence int              `json:"stop_sequence"`
	StopID       string           `json:"stop_id"`
	Arrival      timespan.Seconds `json:"arrival_offset"`
	Departure    timespan.Seconds `json:"departure_offset"`
}

// Leg is a trip as placed in a block, with the idle time that follows it.
type Leg struct {
	Trip           Trip `json:"trip"`
	LayoverMinutes int  `json:"layover_minutes"`
}

// Layover returns the layover as Seconds.
func (l Leg) Layover() timespan.Seconds {
	return timespan.Minutes(l.LayoverMinutes)
}

// Header carries the identity and scope of a block being composed.
type Header struct {
	ID        string `json:"id"`
	CountryID string `json:"country_id"`
	RouteID   string `json:"route_id"`
	ServiceID string `json:"service_id"`
}

// Block is the duty unit a vehicle or driver is assigned to.
type Block struct {
	ID           string           `json:"id"`
	CountryID    string           `json:"country_id"`
	RouteID      string           `json:"route_id"`
	ServiceID    string           `json:"service_id"`
	StartTime    timespan.Seconds `json:"start_time"`
	EndTime      timespan.Seconds `json:"end_time"`
	BreakMinutes int              `json:"break_minutes"`
	Trips        []BlockTrip      `json:"trips"`
	Breaks       []BlockBreak     `json:"breaks"`
}

// Span returns [StartTime, EndTime).
func (b *Block) Span() timespan.Interval {
	return timespan.Interval{Start: b.StartTime, End: b.EndTime}
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	cpy := *b
	cpy.Trips = slices.Clone(b.Trips)
	cpy.Breaks = slices.Clone(b.Breaks)
	return &cpy
}

// TripIDs returns the trip IDs in sequence order.
func (b *Block) TripIDs() []string {
	trips := slices.Clone(b.Trips)
	slices.SortFunc(trips, func(a, c BlockTrip) int { return a.Sequence - c.Sequence })
	ids := make([]string, len(trips))
	for i, bt := range trips {
		ids[i] = bt.TripID
	}
	return ids
}

// BlockTrip orders a trip within a block.
type BlockTrip struct {
	BlockID        string `json:"block_id"`
	Sequence       int    `json:"sequence"`
	TripID         string `json:"trip_id"`
	LayoverMinutes int    `json:"layover_minutes"`
}

// BlockBreak is a driver break inside a block.
type BlockBreak struct {
	BlockID    string           `json:"block_id"`
	BreakStart timespan.Seconds `json:"break_start"`

	// Duration is in minutes.
	Duration int `json:"break_duration"`
}

// Interval returns [BreakStart, BreakStart+Duration).
func (b BlockBreak) Interval() timespan.Interval {
	return timespan.NewInterval(b.BreakStart, timespan.Minutes(b.Duration))
}
