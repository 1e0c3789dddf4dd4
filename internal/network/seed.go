package network

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/validation"
	"github.com/arknettransit/dutyplan/pkg/polyline"
)

// SeedOptions controls how shapes are matched to routes.
type SeedOptions struct {
	CountryID string
	// CreateRoutes registers a route for shapes whose short name is unknown.
	CreateRoutes bool
	// ValidFrom is the start date of created routes. Zero means today.
	ValidFrom time.Time
}

// SeedResult counts what a seed run stored. Rows that failed validation
// are left out and described in Report.
type SeedResult struct {
	Countries int               `json:"countries"`
	Routes    int               `json:"routes"`
	Shapes    int               `json:"shapes"`
	Report    validation.Report `json:"report"`
}

// SeedCountries registers each country. Invalid or duplicate countries are
// reported and skipped; a storage error stops the run.
func (s *Service) SeedCountries(ctx context.Context, countries []Country) (*SeedResult, error) {
	res := &SeedResult{}
	for i := range countries {
		err := s.RegisterCountry(ctx, &countries[i])
		if res.collect(err, validation.Ref("country", countries[i].ID)) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Countries++
	}
	s.logger.Info().Int("countries", res.Countries).Int("violations", res.Report.Len()).Msg("countries seeded")
	return res, nil
}

// SeedRoutes registers each route. Routes that fail validation or name an
// unknown country are reported and skipped.
func (s *Service) SeedRoutes(ctx context.Context, routes []Route) (*SeedResult, error) {
	res := &SeedResult{}
	for i := range routes {
		err := s.RegisterRoute(ctx, &routes[i])
		if res.collect(err, validation.Ref("route", routes[i].ID)) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Routes++
	}
	s.logger.Info().Int("routes", res.Routes).Int("violations", res.Report.Len()).Msg("routes seeded")
	return res, nil
}

// SeedShapes orders each source's segments into one path and registers it
// as a shape of the route with the same short name in opts.CountryID. The
// shape ID is ShapeID(route, variant), so seeding the same file twice
// replaces the shapes rather than adding new ones.
func (s *Service) SeedShapes(ctx context.Context, sources []ShapeSource, opts SeedOptions) (*SeedResult, error) {
	routes, err := s.repo.ListRoutes(ctx, opts.CountryID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Route, len(routes))
	for _, rt := range routes {
		byName[rt.ShortName] = rt
	}

	validFrom := opts.ValidFrom
	if validFrom.IsZero() {
		validFrom = calendar.Day(time.Now())
	}

	res := &SeedResult{}
	for _, src := range sources {
		short := strings.ToUpper(strings.TrimSpace(src.ShortName))
		rt, ok := byName[short]
		if !ok {
			ref := validation.Ref("route", RouteID(opts.CountryID, short))
			if !opts.CreateRoutes {
				res.Report.Add(validation.KindNotFound, ref, "no route %q in country %s", short, opts.CountryID)
				continue
			}
			rt = Route{ID: ref.ID, CountryID: opts.CountryID, ShortName: short, Active: true, ValidFrom: validFrom}
			err := s.RegisterRoute(ctx, &rt)
			if res.collect(err, ref) {
				continue
			}
			if err != nil {
				return res, err
			}
			byName[short] = rt
			res.Routes++
		}

		shapeID := ShapeID(rt.ID, src.VariantCode)
		path := src.Path()
		if len(path) < 2 {
			res.Report.Add(validation.KindInvalidField, validation.Ref("shape", shapeID),
				"%d segments give a path of %d points", len(src.Segments), len(path))
			continue
		}

		shape, err := s.RegisterShape(ctx, rt.ID, shapeID, polyline.Encode(path), src.VariantCode, src.Default)
		if res.collect(err, validation.Ref("shape", shapeID)) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Shapes++
		s.logger.Debug().
			Str("route_id", rt.ID).
			Str("shape_id", shape.ID).
			Int("points", len(path)).
			Float64("length_m", shape.LengthMeters).
			Msg("shape seeded")
	}

	s.logger.Info().
		Int("routes", res.Routes).
		Int("shapes", res.Shapes).
		Int("violations", res.Report.Len()).
		Msg("shapes seeded")
	return res, nil
}

// ShapeID is the ID a seeded shape gets for a route variant.
func ShapeID(routeID, variant string) string {
	if variant == "" {
		variant = "default"
	}
	return routeID + "/" + variant
}

// collect moves a validation failure into the result's report. It returns
// false for nil and for errors that are not validation failures.
func (res *SeedResult) collect(err error, ref validation.EntityRef) bool {
	if err == nil {
		return false
	}
	if r, ok := validation.AsReport(err); ok {
		res.Report.Merge(r)
		return true
	}
	var fe *validation.Error
	if errors.As(err, &fe) {
		res.Report.AddViolation(fe.Violation())
		return true
	}
	if errors.Is(err, validation.ErrNotFound) {
		res.Report.Add(validation.KindNotFound, ref, "%v", err)
		return true
	}
	return false
}
