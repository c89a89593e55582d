// Package dataset loads regions, anchors and parcels from YAML documents,
// shapefiles and OpenStreetMap, and builds the feature store from them.
package dataset

import (
	"io"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// Document is the YAML dataset format. Per-feature srid values override
// the document srid; a mismatch is rejected when the store is built.
type Document struct {
	SRID            int         `yaml:"srid"`
	Region          RegionDoc   `yaml:"region"`
	Anchors         []AnchorDoc `yaml:"anchors"`
	Parcels         []ParcelDoc `yaml:"parcels"`
	FallbackParcels []ParcelDoc `yaml:"fallback_parcels,omitempty"`
}

// RegionDoc is the study-area polygon.
type RegionDoc struct {
	Name     string         `yaml:"name"`
	SRID     int            `yaml:"srid,omitempty"`
	Exterior [][2]float64   `yaml:"exterior,flow"`
	Holes    [][][2]float64 `yaml:"holes,omitempty,flow"`
}

// AnchorDoc is a point anchor.
type AnchorDoc struct {
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	SRID int     `yaml:"srid,omitempty"`
}

// ParcelDoc is a parcel given either as a polygon or as a centre point
// buffered by radius. A null attribute is read as missing.
type ParcelDoc struct {
	ID         int                 `yaml:"id"`
	X          float64             `yaml:"x,omitempty"`
	Y          float64             `yaml:"y,omitempty"`
	Radius     float64             `yaml:"radius,omitempty"`
	Polygon    [][2]float64        `yaml:"polygon,omitempty,flow"`
	SRID       int                 `yaml:"srid,omitempty"`
	Attributes map[string]*float64 `yaml:"attributes"`
}

// Parse decodes a YAML document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "dataset: decode yaml")
	}
	return &doc, nil
}

// Load reads and decodes the YAML document at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	doc, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: %s", path)
	}
	return doc, nil
}

// Encode writes the document as YAML.
func (d *Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return eris.Wrap(err, "dataset: encode yaml")
	}
	return eris.Wrap(enc.Close(), "dataset: encode yaml")
}

func (d *Document) srid(override int) int {
	if override != 0 {
		return override
	}
	return d.SRID
}

// Features converts the document into feature values. Parcels given by
// radius are buffered in CRS units with the given number of segments.
func (d *Document) Features(segments int) (feature.Region, []feature.AnchorPoint, []feature.Parcel, error) {
	region, err := d.region()
	if err != nil {
		return feature.Region{}, nil, nil, err
	}

	anchors := make([]feature.AnchorPoint, 0, len(d.Anchors))
	for _, a := range d.Anchors {
		anchors = append(anchors, feature.AnchorPoint{
			Name:  a.Name,
			Point: geom.NewPointFlat(geom.XY, []float64{a.X, a.Y}).SetSRID(d.srid(a.SRID)),
		})
	}

	parcels, err := d.parcels(d.Parcels, segments)
	if err != nil {
		return feature.Region{}, nil, nil, err
	}
	return region, anchors, parcels, nil
}

// Store builds the feature store. gm is used for the region membership test.
func (d *Document) Store(gm spatial.Geometry, segments int) (*feature.Store, error) {
	region, anchors, parcels, err := d.Features(segments)
	if err != nil {
		return nil, err
	}

	opts := []feature.Option{feature.WithGeometry(gm)}
	if len(d.FallbackParcels) > 0 {
		fallback, err := d.parcels(d.FallbackParcels, segments)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: fallback parcels")
		}
		opts = append(opts, feature.WithFallback(fallback))
	}
	if cols := d.columns(); len(cols) > 0 {
		opts = append(opts, feature.WithColumns(cols))
	}

	return feature.NewStore(region, anchors, parcels, opts...)
}

func (d *Document) region() (feature.Region, error) {
	if len(d.Region.Exterior) < 3 {
		return feature.Region{}, eris.Wrap(feature.ErrNoRegion, "dataset: region exterior needs at least 3 points")
	}
	rings := [][][2]float64{d.Region.Exterior}
	rings = append(rings, d.Region.Holes...)

	var flat []float64
	var ends []int
	for _, ring := range rings {
		flat = appendRing(flat, ring)
		ends = append(ends, len(flat))
	}
	poly := geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(d.srid(d.Region.SRID))
	return feature.Region{Name: d.Region.Name, Geometry: poly}, nil
}

func (d *Document) parcels(docs []ParcelDoc, segments int) ([]feature.Parcel, error) {
	buf := spatial.Planar{Segments: segments}
	out := make([]feature.Parcel, 0, len(docs))
	for _, p := range docs {
		var g *geom.Polygon
		switch {
		case len(p.Polygon) >= 3:
			flat := appendRing(nil, p.Polygon)
			g = geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
		case p.Radius > 0:
			g = buf.Buffer(geom.Coord{p.X, p.Y}, p.Radius)
		default:
			return nil, eris.Errorf("dataset: parcel %d needs a polygon or a positive radius", p.ID)
		}
		g.SetSRID(d.srid(p.SRID))

		raw := make(map[feature.Attribute]float64, len(p.Attributes))
		for k, v := range p.Attributes {
			if v == nil {
				raw[feature.Attribute(k)] = math.NaN()
				continue
			}
			raw[feature.Attribute(k)] = *v
		}
		out = append(out, feature.NewParcel(p.ID, g, raw))
	}
	return out, nil
}

// columns declares every attribute named by any parcel, required ones
// first.
func (d *Document) columns() []feature.Attribute {
	seen := make(map[feature.Attribute]bool)
	for _, p := range d.Parcels {
		for k := range p.Attributes {
			seen[feature.Attribute(k)] = true
		}
	}
	var cols []feature.Attribute
	for _, spec := range feature.RawSchema {
		if seen[spec.Name] {
			cols = append(cols, spec.Name)
			delete(seen, spec.Name)
		}
	}
	extra := make([]feature.Attribute, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(cols, extra...)
}

// appendRing appends ring to flat, closing it if needed.
func appendRing(flat []float64, ring [][2]float64) []float64 {
	if len(ring) == 0 {
		return flat
	}
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	if first, last := ring[0], ring[len(ring)-1]; first != last {
		flat = append(flat, first[0], first[1])
	}
	return flat
}

// Float returns a pointer to v, for building attribute maps.
func Float(v float64) *float64 { return &v }
