// Package timespan provides time-of-day arithmetic for service days.
//
// All schedule times are expressed as offsets in seconds from the start of
// the service day rather than as wall-clock times. A block that runs from
// 23:30 to 01:15 is represented as [84600, 90900) so that interval
// comparisons never have to reason about midnight.
package timespan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Seconds is an offset from the start of a service day.
// Values of 24h and beyond denote times after midnight of the next calendar day.
type Seconds int64

// Common durations.
const (
	Minute Seconds = 60
	Hour   Seconds = 60 * Minute
	Day    Seconds = 24 * Hour
)

// ErrInvalidClock is returned when a clock string cannot be parsed.
var ErrInvalidClock = errors.New("invalid clock time")

// Minutes converts a whole number of minutes to Seconds.
func Minutes(m int) Seconds {
	return Seconds(m) * Minute
}

// Clock returns the offset for hh:mm:ss. Hours may exceed 23.
func Clock(h, m, s int) Seconds {
	return Seconds(h)*Hour + Seconds(m)*Minute + Seconds(s)
}

// ParseClock parses HH:MM or HH:MM:SS. Hours >= 24 are accepted so that
// post-midnight service times can be written the way GTFS feeds write them.
func ParseClock(s string) (Seconds, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	return Clock(vals[0], vals[1], vals[2]), nil
}

// MustParseClock is like ParseClock but panics on error. Intended for tests and constants.
func MustParseClock(s string) Seconds {
	v, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String formats the offset as HH:MM:SS, keeping hours >= 24 as-is.
func (s Seconds) String() string {
	sign := ""
	v := int64(s)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, v/3600, (v%3600)/60, v%60)
}

// Minutes returns the offset in whole minutes, truncated.
func (s Seconds) Minutes() int {
	return int(s / Minute)
}

// FromClock normalises a wall-clock time of day against the service-day start.
// A clock time earlier than serviceStart is taken to be on the following
// calendar day, so 01:15 in a service that starts at 04:00 becomes 25:15.
func FromClock(clock, serviceStart Seconds) Seconds {
	clock %= Day
	if clock < 0 {
		clock += Day
	}
	if clock < serviceStart%Day {
		return clock + Day
	}
	return clock
}

// ShiftByOffset moves t by offset. Both are service-day offsets, so the
// result never wraps.
func ShiftByOffset(t, offset Seconds) Seconds {
	return t + offset
}

// Interval is a half-open span [Start, End) of service-day offsets.
type Interval struct {
	Start Seconds
	End   Seconds
}

// NewInterval builds an interval from a start and a length.
func NewInterval(start, length Seconds) Interval {
	return Interval{Start: start, End: start + length}
}

// Duration returns End - Start.
func (i Interval) Duration() Seconds {
	return i.End - i.Start
}

// Empty reports whether the interval covers no time.
func (i Interval) Empty() bool {
	return i.End <= i.Start
}

// Valid reports whether End >= Start.
func (i Interval) Valid() bool {
	return i.End >= i.Start
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return other.Start >= i.Start && other.End <= i.End
}

// Overlaps reports whether i and other share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}

// String formats the interval as [HH:MM:SS, HH:MM:SS).
func (i Interval) String() string {
	return "[" + i.Start.String() + ", " + i.End.String() + ")"
}

// Overlaps reports whether two half-open intervals intersect.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Duration returns the length of the interval.
func Duration(i Interval) Seconds {
	return i.Duration()
}

// Hull returns the smallest interval covering both a and b.
func Hull(a, b Interval) Interval {
	out := a
	if b.Start < out.Start {
		out.Start = b.Start
	}
	if b.End > out.End {
		out.End = b.End
	}
	return out
}
