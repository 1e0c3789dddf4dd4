// Package calendar resolves service calendars into the dates on which they run.
package calendar

import (
	"errors"
	"time"
)

// Service errors.
var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrDuplicateServiceName = errors.New("service name already used in country")
)

// Service is a service calendar: a validity window, a weekly pattern and
// optional per-date exceptions.
type Service struct {
	ID        string `json:"id"`
	CountryID string `json:"country_id"`
	Name      string `json:"name"`

	Monday    bool `json:"monday"`
	Tuesday   bool `json:"tuesday"`
	Wednesday bool `json:"wednesday"`
	Thursday  bool `json:"thursday"`
	Friday    bool `json:"friday"`
	Saturday  bool `json:"saturday"`
	Sunday    bool `json:"sunday"`

	// DateStart and DateEnd bound the weekly pattern, both inclusive.
	DateStart time.Time `json:"date_start"`
	DateEnd   time.Time `json:"date_end"`

	// Added dates run regardless of weekday flags and window.
	Added []time.Time `json:"added,omitempty"`
	// Removed dates never run. Removal wins over addition.
	Removed []time.Time `json:"removed,omitempty"`
}

// Clone returns a deep copy of the service.
func (s *Service) Clone() *Service {
	cpy := *s
	cpy.Added = append([]time.Time(nil), s.Added...)
	cpy.Removed = append([]time.Time(nil), s.Removed...)
	return &cpy
}

// RunsOn reports whether the weekly pattern includes the weekday.
func (s *Service) RunsOn(day time.Weekday) bool {
	switch day {
	case time.Monday:
		return s.Monday
	case time.Tuesday:
		return s.Tuesday
	case time.Wednesday:
		return s.Wednesday
	case time.Thursday:
		return s.Thursday
	case time.Friday:
		return s.Friday
	case time.Saturday:
		return s.Saturday
	case time.Sunday:
		return s.Sunday
	}
	return false
}

// SetDays replaces the weekly pattern with the given weekdays.
func (s *Service) SetDays(days ...time.Weekday) {
	s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday, s.Saturday, s.Sunday =
		false, false, false, false, false, false, false
	for _, d := range days {
		switch d {
		case time.Monday:
			s.Monday = true
		case time.Tuesday:
			s.Tuesday = true
		case time.Wednesday:
			s.Wednesday = true
		case time.Thursday:
			s.Thursday = true
		case time.Friday:
			s.Friday = true
		case time.Saturday:
			s.Saturday = true
		case time.Sunday:
			s.Sunday = true
		}
	}
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar date, discarding time and location.
func Day(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
