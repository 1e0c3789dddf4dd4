package network_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/calendar"
	"github.com/arknettransit/dutyplan/internal/network"
	"github.com/arknettransit/dutyplan/internal/validation"
	"github.com/arknettransit/dutyplan/pkg/polyline"
)

// Five points along one street, a short spur off the middle and a piece
// that is not connected to anything.
var (
	ptA = polyline.Coordinate{Lat: -15.4, Lon: 28.00}
	ptB = polyline.Coordinate{Lat: -15.4, Lon: 28.01}
	ptC = polyline.Coordinate{Lat: -15.4, Lon: 28.02}
	ptD = polyline.Coordinate{Lat: -15.4, Lon: 28.03}
	ptE = polyline.Coordinate{Lat: -15.4, Lon: 28.04}
	ptF = polyline.Coordinate{Lat: -15.401, Lon: 28.02}
	ptX = polyline.Coordinate{Lat: -15.0, Lon: 28.50}
	ptY = polyline.Coordinate{Lat: -15.0, Lon: 28.51}
)

func TestOrderSegments(t *testing.T) {
	path := network.OrderSegments([][]polyline.Coordinate{
		{ptA, ptB, ptC},
		{ptE, ptD},
		{ptC, ptF},
		{ptX, ptY},
		{ptC, ptD},
	})

	assert.Equal(t, []polyline.Coordinate{ptE, ptD, ptC, ptB, ptA}, path)

	first, last, ok := network.Termini(path)
	require.True(t, ok)
	assert.Equal(t, ptE, first)
	assert.Equal(t, ptA, last)
}

func TestOrderSegments_Empty(t *testing.T) {
	assert.Empty(t, network.OrderSegments(nil))
	assert.Empty(t, network.OrderSegments([][]polyline.Coordinate{{ptA}, {ptB, ptB}}))

	_, _, ok := network.Termini(nil)
	assert.False(t, ok)
}

const routeCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"short_name": 12, "variant_code": "A"},
      "geometry": {"type": "LineString", "coordinates": [[28.00, -15.4], [28.01, -15.4], [28.02, -15.4]]}
    },
    {
      "type": "Feature",
      "properties": {"route": "12", "variant_code": "A", "is_default": true},
      "geometry": {"type": "MultiLineString", "coordinates": [
        [[28.04, -15.4], [28.03, -15.4]],
        [[28.02, -15.4], [28.03, -15.4]]
      ]}
    },
    {
      "type": "Feature",
      "properties": {"short_name": "12"},
      "geometry": {"type": "Point", "coordinates": [28.02, -15.4]}
    }
  ]
}`

func TestParseShapes_FeatureCollection(t *testing.T) {
	sources, err := network.ParseShapes([]byte(routeCollection), "")
	require.NoError(t, err)
	require.Len(t, sources, 1, "points are not shapes")

	src := sources[0]
	assert.Equal(t, "12", src.ShortName)
	assert.Equal(t, "A", src.VariantCode)
	assert.True(t, src.Default)
	assert.Len(t, src.Segments, 3)
	assert.Equal(t, 7, src.Points())
	assert.Equal(t, []polyline.Coordinate{ptE, ptD, ptC, ptB, ptA}, src.Path())
}

func TestParseShapes_Forms(t *testing.T) {
	t.Run("bare geometry uses fallback name", func(t *testing.T) {
		sources, err := network.ParseShapes([]byte(`{"type":"LineString","coordinates":[[28.0,-15.4],[28.01,-15.4]]}`), "7")
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "7", sources[0].ShortName)
		assert.ElementsMatch(t, []polyline.Coordinate{ptA, ptB}, sources[0].Path())
	})

	t.Run("ordered route data", func(t *testing.T) {
		sources, err := network.ParseShapes([]byte(`{"route": 7, "route_data": [[28.02,-15.4],[28.0,-15.4],[28.01,-15.4]]}`), "x")
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "7", sources[0].ShortName)
		assert.Equal(t, []polyline.Coordinate{ptC, ptA, ptB}, sources[0].Path(), "given order is kept")
	})

	t.Run("short route data point", func(t *testing.T) {
		_, err := network.ParseShapes([]byte(`{"route": "7", "route_data": [[28.0]]}`), "")
		assert.Error(t, err)
	})

	t.Run("no lines", func(t *testing.T) {
		_, err := network.ParseShapes([]byte(`{"type":"Point","coordinates":[28.0,-15.4]}`), "7")
		assert.ErrorIs(t, err, network.ErrNoGeometry)
	})

	t.Run("not geojson", func(t *testing.T) {
		_, err := network.ParseShapes([]byte(`{"type":"Nope"}`), "7")
		assert.Error(t, err)
	})
}

func TestService_SeedShapes(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	sources, err := network.ParseShapes([]byte(routeCollection), "")
	require.NoError(t, err)

	res, err := svc.SeedShapes(ctx, sources, network.SeedOptions{CountryID: "zm"})
	require.NoError(t, err)
	assert.Zero(t, res.Shapes)
	assert.True(t, res.Report.Has(validation.KindNotFound), "route 12 does not exist yet")

	opts := network.SeedOptions{CountryID: "zm", CreateRoutes: true, ValidFrom: calendar.Date(2025, time.January, 1)}
	res, err = svc.SeedShapes(ctx, sources, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Routes)
	assert.Equal(t, 1, res.Shapes)
	assert.True(t, res.Report.OK())

	shape, err := svc.DefaultShape(ctx, "zm-12")
	require.NoError(t, err)
	assert.Equal(t, "zm-12/A", shape.ID)
	assert.InDelta(t, polyline.Length([]polyline.Coordinate{ptE, ptD, ptC, ptB, ptA}), shape.LengthMeters, 1)

	res, err = svc.SeedShapes(ctx, sources, opts)
	require.NoError(t, err)
	assert.Zero(t, res.Routes, "the route created by the first run is reused")
	assert.Equal(t, 1, res.Shapes)

	running, err := svc.RoutesRunningOn(ctx, "zm", calendar.Date(2025, time.March, 3))
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestService_SeedShapes_ShortPath(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	res, err := svc.SeedShapes(ctx, []network.ShapeSource{{
		ShortName: "3",
		Segments:  [][]polyline.Coordinate{{ptA, ptA}},
	}}, network.SeedOptions{CountryID: "zm", CreateRoutes: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Routes)
	assert.Zero(t, res.Shapes)
	require.Equal(t, 1, res.Report.Len())
	assert.Equal(t, validation.KindInvalidField, res.Report.Violations[0].Kind)
	assert.Equal(t, "zm-3/default", res.Report.Violations[0].Entity.ID)
}

func TestReadCountriesCSV(t *testing.T) {
	countries, err := network.ReadCountriesCSV(strings.NewReader("\ufeffCode,Name\nzm,Zambia\nMW, Malawi\n,Nowhere\n"))
	require.NoError(t, err)
	require.Len(t, countries, 2)
	assert.Equal(t, network.Country{ID: "zm", ISOCode: "ZM", Name: "Zambia"}, countries[0])
	assert.Equal(t, network.Country{ID: "mw", ISOCode: "MW", Name: "Malawi"}, countries[1])

	countries, err = network.ReadCountriesCSV(strings.NewReader("iso_code,country\nke,Kenya\n"))
	require.NoError(t, err)
	require.Len(t, countries, 1)
	assert.Equal(t, "KE", countries[0].ISOCode)

	_, err = network.ReadCountriesCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestService_SeedCountries(t *testing.T) {
	ctx := context.Background()
	svc := network.NewService(network.NewInMemoryRepository(), zerolog.Nop())

	res, err := svc.SeedCountries(ctx, []network.Country{
		{ID: "zm", ISOCode: "ZM", Name: "Zambia"},
		{ID: "zmb", ISOCode: "ZMB", Name: "Three letters"},
		{ID: "zz", ISOCode: "ZM", Name: "Same code"},
		{ID: "mw", ISOCode: "MW", Name: "Malawi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Countries)
	assert.Equal(t, 2, res.Report.Len())
	assert.True(t, res.Report.Has(validation.KindInvalidField))
	assert.True(t, res.Report.Has(validation.KindDuplicate))
}

const routesCSV = `country_id,short_name,long_name,is_active,valid_from,valid_to
ZM,12,Town - Matero,yes,2025-01-01,
zm,5a,Kabwata,0,2025-01-01,2025-12-31
zm,7,Chelston,1,01/02/2025,
mw,1,Lilongwe,,2025-01-01,
`

func TestReadRoutesCSV(t *testing.T) {
	routes, report, err := network.ReadRoutesCSV(strings.NewReader(routesCSV))
	require.NoError(t, err)
	require.Len(t, routes, 3)

	require.Equal(t, 1, report.Len())
	assert.Equal(t, validation.KindInvalidField, report.Violations[0].Kind)
	assert.Equal(t, "zm-7", report.Violations[0].Entity.ID)

	assert.Equal(t, "zm-12", routes[0].ID)
	assert.Equal(t, "zm", routes[0].CountryID)
	assert.True(t, routes[0].Active)
	assert.Nil(t, routes[0].ValidTo)

	assert.Equal(t, "zm-5A", routes[1].ID)
	assert.Equal(t, "5A", routes[1].ShortName)
	assert.False(t, routes[1].Active)
	require.NotNil(t, routes[1].ValidTo)
	assert.Equal(t, calendar.Date(2025, time.December, 31), *routes[1].ValidTo)

	assert.True(t, routes[2].Active, "an empty is_active means active")

	_, _, err = network.ReadRoutesCSV(strings.NewReader("country,short\nzm,1\n"))
	assert.Error(t, err)
}

func TestService_SeedRoutes(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	routes, _, err := network.ReadRoutesCSV(strings.NewReader(routesCSV))
	require.NoError(t, err)

	res, err := svc.SeedRoutes(ctx, routes)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Routes)
	require.Equal(t, 1, res.Report.Len())
	assert.Equal(t, validation.KindNotFound, res.Report.Violations[0].Kind)
	assert.Equal(t, "mw-1", res.Report.Violations[0].Entity.ID)

	running, err := svc.RoutesRunningOn(ctx, "zm", calendar.Date(2025, time.June, 2))
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "zm-12", running[0].ID)
}
