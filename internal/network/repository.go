package network

import "context"

// Repository defines the interface for network persistence.
type Repository interface {
	SaveCountry(ctx context.Context, c *Country) error
	GetCountry(ctx context.Context, id string) (*Country, error)

	// SaveRoute creates or replaces a route. Returns ErrDuplicateShortName
	// if another route in the country uses the short name.
	SaveRoute(ctx context.Context, rt *Route) error
	GetRoute(ctx context.Context, id string) (*Route, error)
	ListRoutes(ctx context.Context, countryID string) ([]Route, error)

	SaveShape(ctx context.Context, s *Shape) error
	GetShape(ctx context.Context, id string) (*Shape, error)

	// LinkShape stores a route/shape link. A default link clears the
	// default flag on the route's other links.
	LinkShape(ctx context.Context, l RouteShape) error
	ListRouteShapes(ctx context.Context, routeID string) ([]RouteShape, error)

	// SaveDepot creates or replaces a depot. Returns ErrDuplicateDepotName
	// if another depot in the country uses the name.
	SaveDepot(ctx context.Context, d *Depot) error
	ListDepots(ctx context.Context, countryID string) ([]Depot, error)

	SaveStops(ctx context.Context, stops []Stop) error
	GetStop(ctx context.Context, id string) (*Stop, error)
}
