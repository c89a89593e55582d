package feature

import (
	"github.com/twpayne/go-geom"

	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// SRIDWGS84 is the SRID of longitude/latitude coordinates.
const SRIDWGS84 = 4326

// FallbackRadius is the buffer radius, in degrees, of the default fallback
// parcels (about 500 m at San Francisco's latitude).
const FallbackRadius = 0.005

// DefaultFallbackParcels returns the four land-based parcels in central San
// Francisco used when no input parcel lies inside the region. The set is
// fixed: IDs 1-4, population densities 5000/3000/2000/1000 and slopes
// 5/15/25/10 degrees.
func DefaultFallbackParcels() []Parcel {
	sites := []struct {
		lon, lat       float64
		density, slope float64
	}{
		{-122.4150, 37.7800, 5000, 5},
		{-122.4050, 37.7850, 3000, 15},
		{-122.4100, 37.7750, 2000, 25},
		{-122.4000, 37.7900, 1000, 10},
	}

	buf := spatial.Planar{Segments: spatial.DefaultSegments}
	parcels := make([]Parcel, 0, len(sites))
	for i, s := range sites {
		g := buf.Buffer(geom.Coord{s.lon, s.lat}, FallbackRadius).SetSRID(SRIDWGS84)
		parcels = append(parcels, NewParcel(i+1, g, map[Attribute]float64{
			PopulationDensity: s.density,
			Slope:             s.slope,
		}))
	}
	return parcels
}
