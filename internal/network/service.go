package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/validation"
)

// Service registers and queries network entities.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new network service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "network").Logger(),
	}
}

// RegisterCountry validates and stores a country.
func (s *Service) RegisterCountry(ctx context.Context, c *Country) error {
	if err := c.Validate().Err(); err != nil {
		return err
	}
	if err := s.repo.SaveCountry(ctx, c); err != nil {
		return duplicate(err, ErrDuplicateISOCode, validation.Ref("country", c.ID), "iso_code %s already used", c.ISOCode)
	}
	return nil
}

// RegisterRoute validates and stores a route. The country must exist.
func (s *Service) RegisterRoute(ctx context.Context, rt *Route) error {
	report, err := rt.Validate()
	if err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return err
	}
	if _, err := s.repo.GetCountry(ctx, rt.CountryID); err != nil {
		return notFound(err, ErrCountryNotFound)
	}

	if err := s.repo.SaveRoute(ctx, rt); err != nil {
		return duplicate(err, ErrDuplicateShortName, validation.Ref("route", rt.ID),
			"short_name %s already used in country %s", rt.ShortName, rt.CountryID)
	}

	s.logger.Debug().Str("route_id", rt.ID).Str("short_name", rt.ShortName).Msg("route registered")
	return nil
}

// RegisterShape decodes and stores a shape, then links it to routeID.
func (s *Service) RegisterShape(ctx context.Context, routeID, shapeID, encoded, variant string, isDefault bool) (*Shape, error) {
	shape, err := NewShape(shapeID, encoded)
	if err != nil {
		var r validation.Report
		r.Add(validation.KindInvalidField, validation.Ref("shape", shapeID), "%v", err)
		return nil, errors.Join(err, r.Err())
	}
	if _, err := s.repo.GetRoute(ctx, routeID); err != nil {
		return nil, notFound(err, ErrRouteNotFound)
	}

	if err := s.repo.SaveShape(ctx, shape); err != nil {
		return nil, fmt.Errorf("save shape %s: %w", shapeID, err)
	}
	link := RouteShape{RouteID: routeID, ShapeID: shapeID, VariantCode: variant, Default: isDefault}
	if err := s.repo.LinkShape(ctx, link); err != nil {
		return nil, fmt.Errorf("link shape %s to route %s: %w", shapeID, routeID, err)
	}
	return shape, nil
}

// DefaultShape returns the route's default shape, or the first linked
// shape when none is marked default.
func (s *Service) DefaultShape(ctx context.Context, routeID string) (*Shape, error) {
	links, err := s.repo.ListRouteShapes(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("route %s: %w", routeID, ErrShapeNotFound)
	}
	return s.repo.GetShape(ctx, links[0].ShapeID)
}

// RegisterDepot validates and stores a depot.
func (s *Service) RegisterDepot(ctx context.Context, d *Depot) error {
	if err := d.Validate().Err(); err != nil {
		return err
	}
	if err := s.repo.SaveDepot(ctx, d); err != nil {
		return duplicate(err, ErrDuplicateDepotName, validation.Ref("depot", d.ID),
			"name %s already used in country %s", d.Name, d.CountryID)
	}
	return nil
}

// RegisterStops validates and stores stops. Invalid stops are reported and
// none are stored.
func (s *Service) RegisterStops(ctx context.Context, stops []Stop) error {
	var r validation.Report
	for i := range stops {
		r.Merge(stops[i].Validate())
	}
	if err := r.Err(); err != nil {
		return err
	}
	return s.repo.SaveStops(ctx, stops)
}

// RoutesRunningOn returns the country's routes that run on date.
func (s *Service) RoutesRunningOn(ctx context.Context, countryID string, date time.Time) ([]Route, error) {
	routes, err := s.repo.ListRoutes(ctx, countryID)
	if err != nil {
		return nil, err
	}
	out := routes[:0]
	for _, rt := range routes {
		if rt.RunsOn(date) {
			out = append(out, rt)
		}
	}
	return out, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%w: %w", validation.ErrNotFound, err)
	}
	return err
}

func duplicate(err, sentinel error, ref validation.EntityRef, format string, args ...any) error {
	if !errors.Is(err, sentinel) {
		return err
	}
	var r validation.Report
	r.Add(validation.KindDuplicate, ref, format, args...)
	return errors.Join(err, r.Err())
}
