package network

import (
	"fmt"
	"regexp"
	"time"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/validation"
	"github.com/arknettransit/dutyplan/pkg/polyline"
)

var shortNamePattern = regexp.MustCompile(`^[0-9]{1,2}[A-Z]?$`)

// Validate checks the country's fields.
func (c *Country) Validate() *validation.Report {
	var r validation.Report
	ref := validation.Ref("country", c.ID)
	if c.ID == "" {
		r.Add(validation.KindInvalidField, ref, "id is empty")
	}
	if len(c.ISOCode) != 2 {
		r.Add(validation.KindInvalidField, ref, "iso_code %q is not two letters", c.ISOCode)
	}
	if c.Name == "" {
		r.Add(validation.KindInvalidField, ref, "name is empty")
	}
	return &r
}

// Validate checks the route's fields. An inverted validity window is fatal.
func (rt *Route) Validate() (*validation.Report, error) {
	ref := validation.Ref("route", rt.ID)
	if rt.ValidTo != nil && rt.ValidTo.Before(rt.ValidFrom) {
		return nil, validation.InvalidRange(ref, "valid_to %s before valid_from %s",
			rt.ValidTo.Format(time.DateOnly), rt.ValidFrom.Format(time.DateOnly))
	}

	var r validation.Report
	if rt.ID == "" {
		r.Add(validation.KindInvalidField, ref, "id is empty")
	}
	if rt.CountryID == "" {
		r.Add(validation.KindInvalidField, ref, "country_id is empty")
	}
	if !shortNamePattern.MatchString(rt.ShortName) {
		r.Add(validation.KindInvalidField, ref, "short_name %q must match %s", rt.ShortName, shortNamePattern)
	}
	if rt.ValidFrom.IsZero() {
		r.Add(validation.KindInvalidField, ref, "valid_from is not set")
	}
	return &r, nil
}

// RunsOn reports whether the route is active and date falls in its validity window.
func (rt *Route) RunsOn(date time.Time) bool {
	if !rt.Active {
		return false
	}
	day := calendar.Day(date)
	if day.Before(calendar.Day(rt.ValidFrom)) {
		return false
	}
	return rt.ValidTo == nil || !day.After(calendar.Day(*rt.ValidTo))
}

// NewShape decodes encoded and derives the shape length.
func NewShape(id, encoded string) (*Shape, error) {
	coords, err := polyline.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", id, err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("shape %s: %w: need at least two points, got %d", id, polyline.ErrMalformed, len(coords))
	}
	return &Shape{
		ID:           id,
		Polyline:     encoded,
		LengthMeters: polyline.Length(coords),
	}, nil
}

// Coordinates decodes the shape's polyline.
func (s *Shape) Coordinates() ([]polyline.Coordinate, error) {
	return polyline.Decode(s.Polyline)
}

// Validate checks the depot's fields.
func (d *Depot) Validate() *validation.Report {
	var r validation.Report
	ref := validation.Ref("depot", d.ID)
	if d.Name == "" {
		r.Add(validation.KindInvalidField, ref, "name is empty")
	}
	if (d.Lat == nil) != (d.Lon == nil) {
		r.Add(validation.KindInvalidField, ref, "lat and lon must be set together")
	}
	if d.Lat != nil && d.Lon != nil && !(polyline.Coordinate{Lat: *d.Lat, Lon: *d.Lon}).Valid() {
		r.Add(validation.KindInvalidField, ref, "location %f,%f out of range", *d.Lat, *d.Lon)
	}
	if d.Capacity != nil && *d.Capacity < 0 {
		r.Add(validation.KindInvalidField, ref, "capacity %d is negative", *d.Capacity)
	}
	return &r
}

// Validate checks the stop's fields.
func (s *Stop) Validate() *validation.Report {
	var r validation.Report
	ref := validation.Ref("stop", s.ID)
	if s.Name == "" {
		r.Add(validation.KindInvalidField, ref, "name is empty")
	}
	if !(polyline.Coordinate{Lat: s.Lat, Lon: s.Lon}).Valid() {
		r.Add(validation.KindInvalidField, ref, "location %f,%f out of range", s.Lat, s.Lon)
	}
	return &r
}

// CheckRoutes reports routes that share a short name within a country.
// The second and later routes with the same name are reported, each
// pointing at the first.
func CheckRoutes(routes []Route) *validation.Report {
	var r validation.Report
	type key struct{ country, name string }
	first := make(map[key]string, len(routes))
	for _, rt := range routes {
		k := key{rt.CountryID, rt.ShortName}
		if owner, ok := first[k]; ok {
			related := validation.Ref("route", owner)
			r.AddViolation(validation.Violation{
				Kind:    validation.KindDuplicate,
				Entity:  validation.Ref("route", rt.ID),
				Detail:  fmt.Sprintf("short_name %s already used in country %s", rt.ShortName, rt.CountryID),
				Related: &related,
			})
			continue
		}
		first[k] = rt.ID
	}
	return &r
}

// CheckRouteShapes reports routes with more than one default shape.
func CheckRouteShapes(links []RouteShape) *validation.Report {
	var r validation.Report
	defaults := make(map[string]string)
	for _, l := range links {
		if !l.Default {
			continue
		}
		if prev, ok := defaults[l.RouteID]; ok {
			related := validation.Ref("shape", prev)
			r.AddViolation(validation.Violation{
				Kind:    validation.KindDuplicate,
				Entity:  validation.Ref("route", l.RouteID),
				Detail:  fmt.Sprintf("shape %s is a second default", l.ShapeID),
				Related: &related,
			})
			continue
		}
		defaults[l.RouteID] = l.ShapeID
	}
	return &r
}
