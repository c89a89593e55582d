package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/serjvanilla/go-overpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

const sampleYAML = `
srid: 32610
region:
  name: Grid
  exterior: [[0, 0], [1000, 0], [1000, 1000], [0, 1000]]
anchors:
  - {name: North, x: 100, y: 900}
parcels:
  - id: 1
    x: 100
    y: 100
    radius: 10
    attributes: {pop_density: 1200, slope: 4}
  - id: 2
    polygon: [[500, 500], [520, 500], [520, 520], [500, 520]]
    attributes: {pop_density: null, slope: 2}
  - id: 3
    x: 5000
    y: 5000
    radius: 10
    attributes: {pop_density: 10, slope: 1}
`

func TestParse(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 32610, doc.SRID)
	assert.Equal(t, "Grid", doc.Region.Name)
	require.Len(t, doc.Parcels, 3)
	assert.Nil(t, doc.Parcels[1].Attributes["pop_density"])
	assert.Equal(t, 4.0, *doc.Parcels[0].Attributes["slope"])
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("srid: 4326\nregoin: {}\n"))
	assert.Error(t, err)
}

func TestDocumentStore(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	s, err := doc.Store(spatial.Planar{}, 16)
	require.NoError(t, err)

	parcels := s.Parcels()
	require.Len(t, parcels, 2, "parcel 3 lies outside the region")
	assert.Equal(t, 1, s.Excluded())
	assert.Equal(t, 32610, s.SRID())
	assert.True(t, math.IsNaN(parcels[1].RawValue(feature.PopulationDensity)))
	assert.Equal(t, 2.0, parcels[1].RawValue(feature.Slope))
	assert.Equal(t, []feature.Attribute{feature.PopulationDensity, feature.Slope}, s.Columns())

	poly, ok := parcels[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 17, poly.NumCoords(), "16 segments plus closing point")
}

func TestDocumentStore_CrsMismatch(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	doc.Anchors[0].SRID = 4326

	_, err = doc.Store(spatial.Planar{}, 16)
	assert.ErrorIs(t, err, feature.ErrCrsMismatch)
}

func TestDocumentStore_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
		want   error
	}{
		{"no region", func(d *Document) { d.Region.Exterior = nil }, feature.ErrNoRegion},
		{"parcel without shape", func(d *Document) { d.Parcels[0].Radius = 0 }, nil},
		{"duplicate id", func(d *Document) { d.Parcels[1].ID = 1 }, feature.ErrDuplicateParcel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(sampleYAML))
			require.NoError(t, err)
			tt.mutate(doc)

			_, err = doc.Store(spatial.Planar{}, 16)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestDocumentStore_ExplicitFallback(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	doc.Parcels = doc.Parcels[2:]
	doc.FallbackParcels = []ParcelDoc{
		{ID: 9, X: 200, Y: 200, Radius: 5, Attributes: map[string]*float64{"pop_density": Float(1), "slope": Float(1)}},
	}

	s, err := doc.Store(spatial.Planar{}, 8)
	require.NoError(t, err)
	assert.True(t, s.UsedFallback())
	require.Len(t, s.Parcels(), 1)
	assert.Equal(t, 9, s.Parcels()[0].ID)
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SanFrancisco().Encode(&buf))
	assert.Contains(t, buf.String(), "name: San Francisco")

	doc, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, SanFrancisco(), doc)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, doc.Anchors, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSanFrancisco(t *testing.T) {
	s, err := SanFrancisco().Store(spatial.Planar{}, spatial.DefaultSegments)
	require.NoError(t, err)

	assert.False(t, s.UsedFallback())
	assert.Len(t, s.Parcels(), 4)
	assert.Len(t, s.Anchors(), 4)
	assert.Equal(t, feature.SRIDWGS84, s.SRID())
	assert.Equal(t, "San Francisco", s.Region().Name)
}

// writeShapefile writes a shapefile with the given shapes and DBF fields.
func writeShapefile(t *testing.T, path string, kind shp.ShapeType, fields []shp.Field, shapes []shp.Shape, attrs [][]interface{}) {
	t.Helper()
	w, err := shp.Create(path, kind)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))
	for i, s := range shapes {
		require.Equal(t, int32(i), w.Write(s))
		for j, v := range attrs[i] {
			require.NoError(t, w.WriteAttribute(i, j, v))
		}
	}
	w.Close()

	// The writer names the table <base>dbf while the reader opens <base>.dbf.
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
}

func squareShape(cx, cy, r float64) *shp.Polygon {
	return (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{{
		{X: cx - r, Y: cy - r}, {X: cx - r, Y: cy + r}, {X: cx + r, Y: cy + r}, {X: cx + r, Y: cy - r}, {X: cx - r, Y: cy - r},
	}}))
}

func TestShapeToGeom_Holes(t *testing.T) {
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 100}, {X: 100, Y: 100}, {X: 100, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 40, Y: 40}, {X: 60, Y: 40}, {X: 60, Y: 60}, {X: 40, Y: 60}, {X: 40, Y: 40}}
	island := []shp.Point{{X: 200, Y: 0}, {X: 200, Y: 10}, {X: 210, Y: 10}, {X: 210, Y: 0}, {X: 200, Y: 0}}

	g := shapeToGeom((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{outer, hole, island})), 32610)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 32610, mp.SRID())

	pl := spatial.Planar{}
	assert.False(t, pl.Contains(g, geom.Coord{50, 50}))
	assert.True(t, pl.Contains(g, geom.Coord{10, 10}))
	assert.True(t, pl.Contains(g, geom.Coord{205, 5}))
}

func TestShapeToGeom_Unsupported(t *testing.T) {
	assert.Nil(t, shapeToGeom(&shp.PolyLine{}, 4326))
	assert.Nil(t, shapeToGeom((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}})), 4326))
}

func writeLayers(t *testing.T, dir string) ShapefileSource {
	t.Helper()
	src := ShapefileSource{
		Region:  filepath.Join(dir, "region.shp"),
		Anchors: filepath.Join(dir, "anchors.shp"),
		Parcels: filepath.Join(dir, "parcels.shp"),
		SRID:    32610,
	}
	writeShapefile(t, src.Region, shp.POLYGON,
		[]shp.Field{shp.StringField("NAME", 20)},
		[]shp.Shape{squareShape(500, 500, 500)},
		[][]interface{}{{"Grid"}})
	writeShapefile(t, src.Anchors, shp.POINT,
		[]shp.Field{shp.StringField("NAME", 20)},
		[]shp.Shape{&shp.Point{X: 100, Y: 100}, &shp.Point{X: 900, Y: 900}},
		[][]interface{}{{"Alpha"}, {"Beta"}})
	writeShapefile(t, src.Parcels, shp.POLYGON,
		[]shp.Field{shp.NumberField("ID", 10), shp.FloatField("POP_DENS", 12, 2), shp.FloatField("SLOPE", 8, 2)},
		[]shp.Shape{squareShape(100, 120, 10), squareShape(600, 600, 10), squareShape(3000, 3000, 10)},
		[][]interface{}{{11, 2500.5, 3.0}, {12, 800.0, 12.5}, {13, 10.0, 1.0}})
	return src
}

func TestShapefileStore(t *testing.T) {
	src := writeLayers(t, t.TempDir())

	s, err := src.Store(context.Background(), nil, spatial.Planar{})
	require.NoError(t, err)

	assert.Equal(t, "Grid", s.Region().Name)
	assert.Equal(t, 32610, s.SRID())

	anchors := s.Anchors()
	require.Len(t, anchors, 2)
	assert.Equal(t, "Alpha", anchors[0].Name)

	parcels := s.Parcels()
	require.Len(t, parcels, 2)
	assert.Equal(t, 1, s.Excluded())
	assert.Equal(t, 11, parcels[0].ID)
	assert.InDelta(t, 2500.5, parcels[0].RawValue(feature.PopulationDensity), 1e-9)
	assert.InDelta(t, 12.5, parcels[1].RawValue(feature.Slope), 1e-9)
	assert.Equal(t, []feature.Attribute{feature.PopulationDensity, feature.Slope}, s.Columns())
}

func zipLayer(t *testing.T, shpPath, zipPath string) {
	t.Helper()
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	base := strings.TrimSuffix(shpPath, ".shp")
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(base + ext)
		require.NoError(t, err)
		fw, err := zw.Create("layer/" + filepath.Base(base) + ext)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestShapefileStore_ZipAndURL(t *testing.T) {
	dir := t.TempDir()
	src := writeLayers(t, dir)

	parcelsZip := filepath.Join(dir, "parcels.zip")
	zipLayer(t, src.Parcels, parcelsZip)
	regionZip := filepath.Join(dir, "region.zip")
	zipLayer(t, src.Region, regionZip)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/region.zip" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, regionZip)
	}))
	defer srv.Close()

	src.Parcels = parcelsZip
	src.Region = srv.URL + "/region.zip"

	s, err := src.Store(context.Background(), srv.Client(), spatial.Planar{})
	require.NoError(t, err)
	assert.Len(t, s.Parcels(), 2)

	src.Region = srv.URL + "/missing.zip"
	_, err = src.Store(context.Background(), srv.Client(), spatial.Planar{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestShapeToGeom(t *testing.T) {
	g := shapeToGeom(&shp.Point{X: 1, Y: 2}, 4326)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, pt.FlatCoords())
	assert.Equal(t, 4326, pt.SRID())

	mp, ok := shapeToGeom(squareShape(0, 0, 1), 4326).(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())

	assert.Nil(t, shapeToGeom(&shp.PolyLine{}, 4326))
	assert.Nil(t, shapeToGeom(&shp.Polygon{}, 4326))
}

type fakeQuerier struct {
	result overpass.Result
	err    error
	query  string
}

func (f *fakeQuerier) Query(q string) (overpass.Result, error) {
	f.query = q
	return f.result, f.err
}

func node(id int64, lon, lat float64, name string) *overpass.Node {
	n := &overpass.Node{Lat: lat, Lon: lon}
	n.ID = id
	if name != "" {
		n.Tags = map[string]string{"name": name}
	}
	return n
}

func TestFetchStations(t *testing.T) {
	region, _, _, err := SanFrancisco().Features(8)
	require.NoError(t, err)

	q := &fakeQuerier{result: overpass.Result{Nodes: map[int64]*overpass.Node{
		30: node(30, -122.4018, 37.7894, "Montgomery St"),
		10: node(10, -122.3964, 37.7929, "Embarcadero"),
		20: node(20, -122.2712, 37.8033, "12th St Oakland"),
		40: node(40, -122.4138, 37.7793, ""),
	}}}

	anchors, err := FetchStations(context.Background(), q, region)
	require.NoError(t, err)

	assert.Contains(t, q.query, `node["railway"="station"](37.704700,-122.517600,37.808800,-122.356700)`)
	require.Len(t, anchors, 3, "Oakland lies outside the region")
	assert.Equal(t, "Embarcadero", anchors[0].Name)
	assert.Equal(t, "Montgomery St", anchors[1].Name)
	assert.Equal(t, "station 40", anchors[2].Name)
	assert.Equal(t, -122.4138, anchors[2].X)
}

func TestFetchStations_Errors(t *testing.T) {
	region, _, _, err := SanFrancisco().Features(8)
	require.NoError(t, err)

	_, err = FetchStations(context.Background(), &fakeQuerier{err: errors.New("rate limited")}, region)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	projected := feature.Region{Geometry: geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8}).SetSRID(32610)}
	_, err = FetchStations(context.Background(), &fakeQuerier{}, projected)
	assert.ErrorIs(t, err, feature.ErrCrsMismatch)

	_, err = FetchStations(context.Background(), &fakeQuerier{}, feature.Region{})
	assert.ErrorIs(t, err, feature.ErrNoRegion)
}

type blockingQuerier struct{ release chan struct{} }

func (b blockingQuerier) Query(string) (overpass.Result, error) {
	<-b.release
	return overpass.Result{}, nil
}

func TestFetchStations_Canceled(t *testing.T) {
	region, _, _, err := SanFrancisco().Features(8)
	require.NoError(t, err)

	q := blockingQuerier{release: make(chan struct{})}
	defer close(q.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FetchStations(ctx, q, region)
	assert.ErrorIs(t, err, context.Canceled)
}

type flakyQuerier struct {
	calls int
	node  *overpass.Node
}

func (f *flakyQuerier) Query(string) (overpass.Result, error) {
	f.calls++
	if f.calls == 1 {
		return overpass.Result{}, errors.New("overpass: 429 Too Many Requests")
	}
	return overpass.Result{Nodes: map[int64]*overpass.Node{f.node.ID: f.node}}, nil
}

func TestFetchStations_RetriesTransient(t *testing.T) {
	region, _, _, err := SanFrancisco().Features(8)
	require.NoError(t, err)

	q := &flakyQuerier{node: node(5, -122.4076, 37.7858, "Powell St")}
	anchors, err := FetchStations(context.Background(), q, region)
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls)
	require.Len(t, anchors, 1)
	assert.Equal(t, "Powell St", anchors[0].Name)
}
