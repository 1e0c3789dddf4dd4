package calendar

import (
	"iter"
	"slices"
	"time"

	"github.com/arknettransit/dutyplan/internal/validation"
)

// Validate checks the validity window. An inverted window is fatal.
func (s *Service) Validate() error {
	if Day(s.DateEnd).Before(Day(s.DateStart)) {
		return validation.InvalidRange(validation.Ref("service", s.ID),
			"date_end %s is before date_start %s",
			s.DateEnd.Format(time.DateOnly), s.DateStart.Format(time.DateOnly))
	}
	return nil
}

// ActiveOn reports whether the service runs on date.
func ActiveOn(s *Service, date time.Time) bool {
	d := Day(date)
	if containsDate(s.Removed, d) {
		return false
	}
	if containsDate(s.Added, d) {
		return true
	}
	if d.Before(Day(s.DateStart)) || d.After(Day(s.DateEnd)) {
		return false
	}
	return s.RunsOn(d.Weekday())
}

// ActiveDates returns the dates in [from, to] on which the service runs.
//
// The sequence is lazy and may be ranged over any number of times; each
// pass re-reads the service, so it reflects the definition at iteration time.
// An inverted service window or query range is a fatal InvalidRange.
func ActiveDates(s *Service, from, to time.Time) (iter.Seq[time.Time], error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil, validation.InvalidRange(validation.Ref("service", s.ID),
			"range end %s is before range start %s",
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	return func(yield func(time.Time) bool) {
		start, end := scanBounds(s, from, to)
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if ActiveOn(s, d) && !yield(d) {
				return
			}
		}
	}, nil
}

// CountActive returns the number of active dates in [from, to].
func CountActive(s *Service, from, to time.Time) (int, error) {
	seq, err := ActiveDates(s, from, to)
	if err != nil {
		return 0, err
	}
	n := 0
	for range seq {
		n++
	}
	return n, nil
}

// scanBounds narrows [from, to] to the days that can possibly be active:
// the validity window plus any added dates.
func scanBounds(s *Service, from, to time.Time) (time.Time, time.Time) {
	lo, hi := Day(s.DateStart), Day(s.DateEnd)
	for _, a := range s.Added {
		a = Day(a)
		if a.Before(lo) {
			lo = a
		}
		if a.After(hi) {
			hi = a
		}
	}
	if lo.After(from) {
		from = lo
	}
	if hi.Before(to) {
		to = hi
	}
	return from, to
}

func containsDate(dates []time.Time, d time.Time) bool {
	return slices.ContainsFunc(dates, func(x time.Time) bool {
		return Day(x).Equal(d)
	})
}
