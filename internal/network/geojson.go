package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"

	"github.com/arknettransit/dutyplan/pkg/polyline"
)

// ErrNoGeometry is returned when a GeoJSON document holds no line geometry.
var ErrNoGeometry = errors.New("no line geometry")

// ShapeSource is the line geometry a GeoJSON document holds for one route
// variant. Segments are in file order and need not connect end to end.
type ShapeSource struct {
	ShortName   string
	VariantCode string
	Default     bool
	Segments    [][]polyline.Coordinate

	// ordered is set for documents that already carry a single ordered path.
	ordered bool
}

// Path returns the variant as a single polyline, ordering the segments
// unless the document already gave them in order.
func (s ShapeSource) Path() []polyline.Coordinate {
	if s.ordered && len(s.Segments) == 1 {
		return s.Segments[0]
	}
	return OrderSegments(s.Segments)
}

// Points returns the number of points across all segments.
func (s ShapeSource) Points() int {
	n := 0
	for _, seg := range s.Segments {
		n += len(seg)
	}
	return n
}

// orderedRoute is the compact form written by route ordering tools:
// {"route": "12", "route_data": [[lon, lat], ...]}.
type orderedRoute struct {
	Route     json.RawMessage `json:"route"`
	RouteData [][]float64     `json:"route_data"`
}

// ParseShapes reads route geometry from a GeoJSON document. It accepts a
// FeatureCollection, a single Feature or a bare geometry, and the compact
// ordered form. LineString and MultiLineString geometries are kept; points
// and polygons are ignored.
//
// A feature names its route with a "short_name" or "route" property and
// may set "variant_code" and "is_default". Features without a name use
// fallbackName. Features with the same name and variant are merged.
func ParseShapes(data []byte, fallbackName string) ([]ShapeSource, error) {
	var compact orderedRoute
	if err := json.Unmarshal(data, &compact); err == nil && len(compact.RouteData) > 0 {
		return parseOrdered(compact, fallbackName)
	}

	obj, err := geojson.Parse(string(data), &geojson.ParseOptions{RequireValid: true})
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var features []*geojson.Feature
	switch o := obj.(type) {
	case *geojson.FeatureCollection:
		for _, child := range o.Children() {
			if f, ok := child.(*geojson.Feature); ok {
				features = append(features, f)
			}
		}
	case *geojson.Feature:
		features = append(features, o)
	default:
		features = append(features, geojson.NewFeature(obj, ""))
	}

	var (
		sources []ShapeSource
		index   = make(map[[2]string]int)
	)
	for _, f := range features {
		segments := lineSegments(f.Base())
		if len(segments) == 0 {
			continue
		}
		props, err := featureProperties(f.Members())
		if err != nil {
			return nil, err
		}

		name := props.str("short_name")
		if name == "" {
			name = props.str("route")
		}
		if name == "" {
			name = fallbackName
		}
		key := [2]string{name, props.str("variant_code")}

		i, ok := index[key]
		if !ok {
			i = len(sources)
			index[key] = i
			sources = append(sources, ShapeSource{ShortName: key[0], VariantCode: key[1]})
		}
		sources[i].Segments = append(sources[i].Segments, segments...)
		sources[i].Default = sources[i].Default || props.flag("is_default")
	}

	if len(sources) == 0 {
		return nil, ErrNoGeometry
	}
	return sources, nil
}

func parseOrdered(compact orderedRoute, fallbackName string) ([]ShapeSource, error) {
	name := fallbackName
	if len(compact.Route) > 0 {
		var v any
		if err := json.Unmarshal(compact.Route, &v); err != nil {
			return nil, fmt.Errorf("parse route name: %w", err)
		}
		if s := propertyString(v); s != "" {
			name = s
		}
	}

	path := make([]polyline.Coordinate, 0, len(compact.RouteData))
	for i, pt := range compact.RouteData {
		if len(pt) < 2 {
			return nil, fmt.Errorf("route_data[%d]: need [lon, lat], got %d values", i, len(pt))
		}
		c := polyline.Coordinate{Lat: pt[1], Lon: pt[0]}
		if !c.Valid() {
			return nil, fmt.Errorf("route_data[%d]: coordinate %v out of range", i, pt)
		}
		path = append(path, c)
	}
	return []ShapeSource{{
		ShortName: name,
		Segments:  [][]polyline.Coordinate{path},
		ordered:   true,
	}}, nil
}

func lineSegments(obj geojson.Object) [][]polyline.Coordinate {
	switch g := obj.(type) {
	case *geojson.LineString:
		return [][]polyline.Coordinate{linePoints(g.Base())}
	case *geojson.MultiLineString:
		var out [][]polyline.Coordinate
		for _, child := range g.Children() {
			if ls, ok := child.(*geojson.LineString); ok {
				out = append(out, linePoints(ls.Base()))
			}
		}
		return out
	}
	return nil
}

func linePoints(line *geometry.Line) []polyline.Coordinate {
	out := make([]polyline.Coordinate, line.NumPoints())
	for i := range out {
		p := line.PointAt(i)
		out[i] = polyline.Coordinate{Lat: p.Y, Lon: p.X}
	}
	return out
}

type properties map[string]any

// featureProperties reads the "properties" member from a feature's extra
// members JSON.
func featureProperties(members string) (properties, error) {
	if members == "" {
		return nil, nil
	}
	var m struct {
		Properties properties `json:"properties"`
	}
	if err := json.Unmarshal([]byte(members), &m); err != nil {
		return nil, fmt.Errorf("parse feature properties: %w", err)
	}
	return m.Properties, nil
}

func (p properties) str(key string) string {
	return propertyString(p[key])
}

func (p properties) flag(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return parseBool(v, false)
	case float64:
		return v != 0
	}
	return false
}

func propertyString(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
