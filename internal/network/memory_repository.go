package network

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and dry runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	countries map[string]Country
	routes    map[string]Route
	shapes    map[string]Shape
	links     []RouteShape
	depots    map[string]Depot
	stops     map[string]Stop
}

// NewInMemoryRepository creates a new in-memory network repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		countries: make(map[string]Country),
		routes:    make(map[string]Route),
		shapes:    make(map[string]Shape),
		depots:    make(map[string]Depot),
		stops:     make(map[string]Stop),
	}
}

// SaveCountry creates or replaces a country.
func (r *InMemoryRepository) SaveCountry(_ context.Context, c *Country) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.countries {
		if id != c.ID && existing.ISOCode == c.ISOCode {
			return ErrDuplicateISOCode
		}
	}
	r.countries[c.ID] = *c
	return nil
}

// GetCountry retrieves a country by ID.
func (r *InMemoryRepository) GetCountry(_ context.Context, id string) (*Country, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.countries[id]
	if !ok {
		return nil, ErrCountryNotFound
	}
	return &c, nil
}

// SaveRoute creates or replaces a route.
func (r *InMemoryRepository) SaveRoute(_ context.Context, rt *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.routes {
		if id != rt.ID && existing.CountryID == rt.CountryID && existing.ShortName == rt.ShortName {
			return ErrDuplicateShortName
		}
	}
	r.routes[rt.ID] = *rt
	return nil
}

// GetRoute retrieves a route by ID.
func (r *InMemoryRepository) GetRoute(_ context.Context, id string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[id]
	if !ok {
		return nil, ErrRouteNotFound
	}
	return &rt, nil
}

// ListRoutes returns a country's routes ordered by short name.
func (r *InMemoryRepository) ListRoutes(_ context.Context, countryID string) ([]Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Route
	for _, rt := range r.routes {
		if rt.CountryID == countryID {
			out = append(out, rt)
		}
	}
	slices.SortFunc(out, func(a, b Route) int { return cmp.Compare(a.ShortName, b.ShortName) })
	return out, nil
}

// SaveShape creates or replaces a shape.
func (r *InMemoryRepository) SaveShape(_ context.Context, s *Shape) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shapes[s.ID] = *s
	return nil
}

// GetShape retrieves a shape by ID.
func (r *InMemoryRepository) GetShape(_ context.Context, id string) (*Shape, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shapes[id]
	if !ok {
		return nil, ErrShapeNotFound
	}
	return &s, nil
}

// LinkShape stores a route/shape link.
func (r *InMemoryRepository) LinkShape(_ context.Context, l RouteShape) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[l.RouteID]; !ok {
		return ErrRouteNotFound
	}
	if _, ok := r.shapes[l.ShapeID]; !ok {
		return ErrShapeNotFound
	}

	replaced := false
	for i, existing := range r.links {
		if existing.RouteID != l.RouteID {
			continue
		}
		if existing.ShapeID == l.ShapeID && existing.VariantCode == l.VariantCode {
			r.links[i] = l
			replaced = true
		} else if l.Default {
			r.links[i].Default = false
		}
	}
	if !replaced {
		r.links = append(r.links, l)
	}
	return nil
}

// ListRouteShapes returns a route's shape links, default first.
func (r *InMemoryRepository) ListRouteShapes(_ context.Context, routeID string) ([]RouteShape, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RouteShape
	for _, l := range r.links {
		if l.RouteID == routeID {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b RouteShape) int {
		switch {
		case a.Default && !b.Default:
			return -1
		case b.Default && !a.Default:
			return 1
		}
		return cmp.Or(cmp.Compare(a.VariantCode, b.VariantCode), cmp.Compare(a.ShapeID, b.ShapeID))
	})
	return out, nil
}

// SaveDepot creates or replaces a depot.
func (r *InMemoryRepository) SaveDepot(_ context.Context, d *Depot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.depots {
		if id != d.ID && existing.CountryID == d.CountryID && existing.Name == d.Name {
			return ErrDuplicateDepotName
		}
	}
	r.depots[d.ID] = *d
	return nil
}

// ListDepots returns a country's depots ordered by name.
func (r *InMemoryRepository) ListDepots(_ context.Context, countryID string) ([]Depot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Depot
	for _, d := range r.depots {
		if d.CountryID == countryID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Depot) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// SaveStops creates or replaces stops.
func (r *InMemoryRepository) SaveStops(_ context.Context, stops []Stop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range stops {
		r.stops[s.ID] = s
	}
	return nil
}

// GetStop retrieves a stop by ID.
func (r *InMemoryRepository) GetStop(_ context.Context, id string) (*Stop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stops[id]
	if !ok {
		return nil, ErrStopNotFound
	}
	return &s, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
