// Package spatial provides the geometry predicates used by the suitability
// pipeline: containment, distance to anchor points, representative points and
// fixed-radius buffers.
package spatial

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Metric names accepted by ForMetric.
const (
	MetricPlanar   = "planar"
	MetricGeodesic = "geodesic"
)

// DefaultSegments is the number of vertices used to approximate a circle.
const DefaultSegments = 64

// Geometry is the capability the pipeline needs from a geometry backend.
type Geometry interface {
	// Contains reports whether p lies inside (or on the boundary of) region.
	Contains(region geom.T, p geom.Coord) bool
	// Distance returns the distance from g to p in the metric's units.
	// It is zero when p lies inside g.
	Distance(g geom.T, p geom.Coord) (float64, error)
	// Representative returns the point used for membership tests.
	Representative(g geom.T) (geom.Coord, error)
	// Buffer returns a polygon approximating the circle of the given radius.
	Buffer(center geom.Coord, radius float64) *geom.Polygon
}

// WithinDistance reports whether g intersects the radius-buffer around p.
func WithinDistance(gm Geometry, g geom.T, p geom.Coord, radius float64) (bool, error) {
	d, err := gm.Distance(g, p)
	if err != nil {
		return false, err
	}
	return d <= radius, nil
}

// ForMetric returns the Geometry implementation for a metric name.
func ForMetric(name string, segments int) (Geometry, error) {
	if segments <= 0 {
		segments = DefaultSegments
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricPlanar:
		return Planar{Segments: segments}, nil
	case MetricGeodesic:
		return Geodesic{Planar: Planar{Segments: segments}}, nil
	default:
		return nil, eris.Errorf("spatial: unknown metric %q", name)
	}
}

// Planar evaluates predicates in the coordinate plane of the input SRID.
type Planar struct {
	Segments int
}

// Contains implements Geometry.
func (Planar) Contains(region geom.T, p geom.Coord) bool {
	switch r := region.(type) {
	case *geom.Polygon:
		return polygonContains(r, p)
	case *geom.MultiPolygon:
		for i := 0; i < r.NumPolygons(); i++ {
			if polygonContains(r.Polygon(i), p) {
				return true
			}
		}
	}
	return false
}

// Distance implements Geometry.
func (pl Planar) Distance(g geom.T, p geom.Coord) (float64, error) {
	switch t := g.(type) {
	case *geom.Point:
		return xy.Distance(t.Coords(), p), nil
	case *geom.LineString:
		if t.NumCoords() == 0 {
			return 0, eris.New("spatial: empty linestring")
		}
		return xy.DistanceFromPointToLineString(t.Layout(), p, t.FlatCoords()), nil
	case *geom.Polygon:
		return polygonDistance(t, p, xy.DistanceFromPointToLineString)
	case *geom.MultiPolygon:
		return multiPolygonDistance(t, p, func(poly *geom.Polygon) (float64, error) {
			return polygonDistance(poly, p, xy.DistanceFromPointToLineString)
		})
	default:
		return 0, eris.Errorf("spatial: unsupported geometry %T", g)
	}
}

// Representative implements Geometry. The centroid is used, which for the
// convex parcel shapes this tool works with always lies inside the shape.
func (Planar) Representative(g geom.T) (geom.Coord, error) {
	if g == nil {
		return nil, eris.New("spatial: nil geometry")
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: centroid")
	}
	return c, nil
}

// Buffer implements Geometry.
func (pl Planar) Buffer(center geom.Coord, radius float64) *geom.Polygon {
	n := pl.segments()
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		flat = append(flat, center.X()+radius*math.Cos(theta), center.Y()+radius*math.Sin(theta))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

func (pl Planar) segments() int {
	if pl.Segments <= 0 {
		return DefaultSegments
	}
	return pl.Segments
}

func polygonContains(poly *geom.Polygon, p geom.Coord) bool {
	if poly == nil || poly.NumLinearRings() == 0 {
		return false
	}
	layout := poly.Layout()
	if !xy.IsPointInRing(layout, p, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		hole := poly.LinearRing(i).FlatCoords()
		if xy.IsPointInRing(layout, p, hole) && !xy.IsOnLine(layout, p, hole) {
			return false
		}
	}
	return true
}

type ringDistanceFunc func(layout geom.Layout, p geom.Coord, ring []float64) float64

func polygonDistance(poly *geom.Polygon, p geom.Coord, ringDist ringDistanceFunc) (float64, error) {
	if poly.NumLinearRings() == 0 {
		return 0, eris.New("spatial: empty polygon")
	}
	if polygonContains(poly, p) {
		return 0, nil
	}
	best := math.Inf(1)
	for i := 0; i < poly.NumLinearRings(); i++ {
		ring := poly.LinearRing(i).FlatCoords()
		if len(ring) < 2 {
			continue
		}
		if d := ringDist(poly.Layout(), p, ring); d < best {
			best = d
		}
	}
	return best, nil
}

func multiPolygonDistance(mp *geom.MultiPolygon, p geom.Coord, polyDist func(*geom.Polygon) (float64, error)) (float64, error) {
	if mp.NumPolygons() == 0 {
		return 0, eris.New("spatial: empty multipolygon")
	}
	best := math.Inf(1)
	for i := 0; i < mp.NumPolygons(); i++ {
		d, err := polyDist(mp.Polygon(i))
		if err != nil {
			return 0, err
		}
		if d < best {
			best = d
		}
	}
	return best, nil
}
