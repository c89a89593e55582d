package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Geodesic treats coordinates as longitude/latitude degrees and measures
// distances in metres on the sphere. Containment and representative points
// are evaluated in the lon/lat plane.
type Geodesic struct {
	Planar
}

// Distance implements Geometry. For polygons the nearest boundary point is
// located in a locally scaled lon/lat plane and the great-circle distance to
// it is returned.
func (g Geodesic) Distance(t geom.T, p geom.Coord) (float64, error) {
	switch s := t.(type) {
	case *geom.Point:
		return geo.DistanceHaversine(toOrb(s.Coords()), toOrb(p)), nil
	case *geom.LineString:
		if s.NumCoords() == 0 {
			return 0, eris.New("spatial: empty linestring")
		}
		return geodesicRingDistance(s.Layout(), p, s.FlatCoords()), nil
	case *geom.Polygon:
		return polygonDistance(s, p, geodesicRingDistance)
	case *geom.MultiPolygon:
		return multiPolygonDistance(s, p, func(poly *geom.Polygon) (float64, error) {
			return polygonDistance(poly, p, geodesicRingDistance)
		})
	default:
		return 0, eris.Errorf("spatial: unsupported geometry %T", t)
	}
}

// Buffer implements Geometry; radius is in metres.
func (g Geodesic) Buffer(center geom.Coord, radius float64) *geom.Polygon {
	n := g.segments()
	c := toOrb(center)
	flat := make([]float64, 0, (n+1)*2)
	for i := 0; i < n; i++ {
		bearing := 360 * float64(i) / float64(n)
		pt := geo.PointAtBearingAndDistance(c, bearing, radius)
		flat = append(flat, pt.Lon(), pt.Lat())
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

func geodesicRingDistance(layout geom.Layout, p geom.Coord, ring []float64) float64 {
	stride := layout.Stride()
	target := toOrb(p)
	best := geo.DistanceHaversine(orb.Point{ring[0], ring[1]}, target)
	// Longitude degrees shrink with latitude; scale them so the nearest
	// point search is not biased east-west.
	k := math.Cos(p.Y() * math.Pi / 180)
	for i := 0; i+stride < len(ring); i += stride {
		a := orb.Point{ring[i], ring[i+1]}
		b := orb.Point{ring[i+stride], ring[i+stride+1]}
		if d := geo.DistanceHaversine(nearestOnSegment(a, b, target, k), target); d < best {
			best = d
		}
	}
	return best
}

// nearestOnSegment projects p onto segment ab with x scaled by k.
func nearestOnSegment(a, b, p orb.Point, k float64) orb.Point {
	dx := (b.X() - a.X()) * k
	dy := b.Y() - a.Y()
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}
	t := ((p.X()-a.X())*k*dx + (p.Y()-a.Y())*dy) / lenSq
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return orb.Point{a.X() + t*(b.X()-a.X()), a.Y() + t*(b.Y()-a.Y())}
}

func toOrb(c geom.Coord) orb.Point {
	return orb.Point{c.X(), c.Y()}
}
