// Package present turns a scored run into table and map views and renders
// them through pluggable sinks.
package present

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

// DefaultZoom is the initial zoom level of the map view.
const DefaultZoom = 13

// TableRow is one parcel in the table view.
type TableRow struct {
	ID                int
	Geometry          geom.T
	PopulationDensity float64
	Slope             float64
	ProximityScore    float64
	Score             float64
	Tier              feature.Tier
	Channel           suitability.Channel
}

// Rows returns one row per scored parcel, in input order.
func Rows(res *suitability.Result) []TableRow {
	rows := make([]TableRow, 0, len(res.Parcels))
	for _, p := range res.Parcels {
		rows = append(rows, TableRow{
			ID:                p.ID,
			Geometry:          p.Geometry,
			PopulationDensity: p.RawValue(feature.PopulationDensity),
			Slope:             p.RawValue(feature.Slope),
			ProximityScore:    p.Derived.Value(feature.ProximityScore),
			Score:             p.Score,
			Tier:              p.Tier,
			Channel:           suitability.ChannelFor(p.Tier),
		})
	}
	return rows
}

// Style is the presentation of one tier: Fill colours the map polygon, Cell
// the background of the table score cell.
type Style struct {
	Fill string
	Cell string
}

// StyleFor returns the style of a tier.
func StyleFor(t feature.Tier) Style {
	switch t {
	case feature.TierHigh:
		return Style{Fill: "#008000", Cell: "#ccffcc"}
	case feature.TierMedium:
		return Style{Fill: "#ffa500", Cell: "#ffe4b5"}
	case feature.TierLow:
		return Style{Fill: "#ff0000", Cell: "#ffcccc"}
	default:
		return Style{Fill: "#808080", Cell: "#ffffff"}
	}
}

// MapFeature is one parcel in the map view.
type MapFeature struct {
	ID       int
	Geometry geom.T
	Score    float64
	Tier     feature.Tier
	Channel  suitability.Channel
	Tooltip  string
}

// Map is the map view: the region overlay, anchors and coloured parcels.
type Map struct {
	// Center is the region centroid in the input CRS (x, y).
	Center   geom.Coord
	Zoom     int
	SRID     int
	Region   feature.Region
	Anchors  []feature.AnchorPoint
	Features []MapFeature
}

// Geographic reports whether the view is in longitude/latitude and can be
// drawn over web map tiles.
func (m *Map) Geographic() bool {
	return m.SRID == feature.SRIDWGS84
}

// MapView builds the map view of a run.
func MapView(res *suitability.Result) (*Map, error) {
	if res.Region.Geometry == nil {
		return nil, eris.New("present: result has no region")
	}
	center, err := spatial.Planar{}.Representative(res.Region.Geometry)
	if err != nil {
		return nil, eris.Wrap(err, "present: region centroid")
	}

	m := &Map{
		Center:  center,
		Zoom:    DefaultZoom,
		SRID:    res.Region.Geometry.SRID(),
		Region:  res.Region,
		Anchors: res.Anchors,
	}
	for _, p := range res.Parcels {
		m.Features = append(m.Features, MapFeature{
			ID:       p.ID,
			Geometry: p.Geometry,
			Score:    p.Score,
			Tier:     p.Tier,
			Channel:  suitability.ChannelFor(p.Tier),
			Tooltip:  Tooltip(p),
		})
	}
	return m, nil
}

// Tooltip is the hover text of a parcel on the map.
func Tooltip(p feature.Parcel) string {
	return fmt.Sprintf("Suitability: %.2f, Pop Density: %v, Slope: %v°",
		p.Score, p.RawValue(feature.PopulationDensity), p.RawValue(feature.Slope))
}

// RegionTooltip is the hover text of the region overlay.
func RegionTooltip(r feature.Region) string {
	if r.Name == "" {
		return "Study Area Boundary"
	}
	return r.Name + " Boundary"
}
