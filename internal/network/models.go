// Package network holds the static network a country operates: routes,
// their shapes, depots and stops.
package network

import (
	"errors"
	"time"
)

// Network errors.
var (
	ErrCountryNotFound = errors.New("country not found")
	ErrRouteNotFound   = errors.New("route not found")
	ErrShapeNotFound   = errors.New("shape not found")
	ErrDepotNotFound   = errors.New("depot not found")
	ErrStopNotFound    = errors.New("stop not found")

	ErrDuplicateISOCode   = errors.New("iso code already used")
	ErrDuplicateShortName = errors.New("route short name already used in country")
	ErrDuplicateDepotName = errors.New("depot name already used in country")
)

// Country is the root scope for routes, services, depots, vehicles and stops.
type Country struct {
	ID      string `json:"id"`
	ISOCode string `json:"iso_code"`
	Name    string `json:"name"`
}

// Route is a numbered line, e.g. "12" or "12A".
type Route struct {
	ID        string `json:"id"`
	CountryID string `json:"country_id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Active    bool   `json:"active"`

	// ValidFrom and ValidTo are inclusive. A nil ValidTo is open-ended.
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// Shape is an encoded polyline with its derived length.
type Shape struct {
	ID           string  `json:"id"`
	Polyline     string  `json:"polyline"`
	LengthMeters float64 `json:"length_m"`
}

// RouteShape links a route to one of its shape variants.
type RouteShape struct {
	RouteID     string `json:"route_id"`
	ShapeID     string `json:"shape_id"`
	VariantCode string `json:"variant_code"`
	Default     bool   `json:"is_default"`
}

// Depot is a garage vehicles and drivers are based at.
type Depot struct {
	ID        string   `json:"id"`
	CountryID string   `json:"country_id"`
	Name      string   `json:"name"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	Capacity  *int     `json:"capacity,omitempty"`
}

// Stop is a boarding point.
type Stop struct {
	ID        string  `json:"id"`
	CountryID string  `json:"country_id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}
