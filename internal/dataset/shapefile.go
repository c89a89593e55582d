package dataset

import (
	"archive/zip"
	"context"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/resilience"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// ShapefileSource locates the three input layers. Each path may be a .shp
// file, a .zip archive containing one, or an http(s) URL of such an archive.
type ShapefileSource struct {
	Region  string `mapstructure:"region"`
	Anchors string `mapstructure:"anchors"`
	Parcels string `mapstructure:"parcels"`

	RegionNameField string `mapstructure:"region_name_field"`
	AnchorNameField string `mapstructure:"anchor_name_field"`
	ParcelIDField   string `mapstructure:"parcel_id_field"`
	// AttributeFields maps attribute names to DBF field names.
	AttributeFields map[string]string `mapstructure:"attribute_fields"`

	// SRID is assigned to every geometry; shapefiles carry no SRID of their own.
	SRID int `mapstructure:"srid"`
}

func (s ShapefileSource) withDefaults() ShapefileSource {
	if s.RegionNameField == "" {
		s.RegionNameField = "NAME"
	}
	if s.AnchorNameField == "" {
		s.AnchorNameField = "NAME"
	}
	if s.ParcelIDField == "" {
		s.ParcelIDField = "ID"
	}
	if len(s.AttributeFields) == 0 {
		s.AttributeFields = map[string]string{
			string(feature.PopulationDensity): "POP_DENS",
			string(feature.Slope):             "SLOPE",
		}
	}
	if s.SRID == 0 {
		s.SRID = feature.SRIDWGS84
	}
	return s
}

// Store loads all three layers and builds the feature store.
func (s ShapefileSource) Store(ctx context.Context, client *http.Client, gm spatial.Geometry) (*feature.Store, error) {
	s = s.withDefaults()
	tmp, err := os.MkdirTemp("", "suitability-shp-")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	region, err := s.loadRegion(ctx, client, tmp)
	if err != nil {
		return nil, err
	}
	anchors, err := s.loadAnchors(ctx, client, tmp)
	if err != nil {
		return nil, err
	}
	parcels, err := s.loadParcels(ctx, client, tmp)
	if err != nil {
		return nil, err
	}

	cols := make([]feature.Attribute, 0, len(s.AttributeFields))
	for name := range s.AttributeFields {
		cols = append(cols, feature.Attribute(name))
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })

	return feature.NewStore(region, anchors, parcels,
		feature.WithGeometry(gm),
		feature.WithColumns(cols),
	)
}

func (s ShapefileSource) loadRegion(ctx context.Context, client *http.Client, tmp string) (feature.Region, error) {
	reader, err := openShapefile(ctx, client, s.Region, filepath.Join(tmp, "region"))
	if err != nil {
		return feature.Region{}, eris.Wrap(err, "dataset: region layer")
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, s.RegionNameField)
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape, s.SRID)
		if _, ok := g.(*geom.MultiPolygon); !ok {
			continue
		}
		return feature.Region{Name: attribute(reader, nameIdx), Geometry: g}, nil
	}
	return feature.Region{}, eris.Wrapf(feature.ErrNoRegion, "dataset: no polygon in %s", s.Region)
}

func (s ShapefileSource) loadAnchors(ctx context.Context, client *http.Client, tmp string) ([]feature.AnchorPoint, error) {
	if s.Anchors == "" {
		return nil, nil
	}
	reader, err := openShapefile(ctx, client, s.Anchors, filepath.Join(tmp, "anchors"))
	if err != nil {
		return nil, eris.Wrap(err, "dataset: anchor layer")
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, s.AnchorNameField)
	var anchors []feature.AnchorPoint
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		pt, ok := shapeToGeom(shape, s.SRID).(*geom.Point)
		if !ok {
			skipped++
			continue
		}
		name := attribute(reader, nameIdx)
		if name == "" {
			name = "anchor " + strconv.Itoa(n+1)
		}
		anchors = append(anchors, feature.AnchorPoint{Name: name, Point: pt})
	}
	logSkipped("anchors", skipped)
	return anchors, nil
}

func (s ShapefileSource) loadParcels(ctx context.Context, client *http.Client, tmp string) ([]feature.Parcel, error) {
	reader, err := openShapefile(ctx, client, s.Parcels, filepath.Join(tmp, "parcels"))
	if err != nil {
		return nil, eris.Wrap(err, "dataset: parcel layer")
	}
	defer func() { _ = reader.Close() }()

	idIdx := fieldIndex(reader, s.ParcelIDField)
	attrIdx := make(map[feature.Attribute]int, len(s.AttributeFields))
	for name, field := range s.AttributeFields {
		attrIdx[feature.Attribute(name)] = fieldIndex(reader, field)
	}

	var parcels []feature.Parcel
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		g := shapeToGeom(shape, s.SRID)
		if _, ok := g.(*geom.MultiPolygon); !ok {
			skipped++
			continue
		}

		id := n + 1
		if v := attribute(reader, idIdx); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: parcel record %d id %q", n, v)
			}
			id = parsed
		}

		raw := make(map[feature.Attribute]float64, len(attrIdx))
		for name, idx := range attrIdx {
			raw[name] = parseFloat(attribute(reader, idx))
		}
		parcels = append(parcels, feature.NewParcel(id, g, raw))
	}
	logSkipped("parcels", skipped)
	return parcels, nil
}

// openShapefile resolves src to a local .shp file under dir and opens it.
func openShapefile(ctx context.Context, client *http.Client, src, dir string) (*shp.Reader, error) {
	if src == "" {
		return nil, eris.New("path is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "create extract dir")
	}

	path := src
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		path = filepath.Join(dir, "download.zip")
		if err := downloadFile(ctx, client, src, path); err != nil {
			return nil, eris.Wrapf(err, "download %s", src)
		}
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		if err := extractZIP(path, dir); err != nil {
			return nil, eris.Wrapf(err, "extract %s", src)
		}
		found, err := findFileByExt(dir, ".shp")
		if err != nil {
			return nil, err
		}
		path = found
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open shapefile %s", path)
	}
	return reader, nil
}

// shapeToGeom converts a go-shp shape to go-geom. Polygons become
// MultiPolygons. Unsupported shapes yield nil.
func shapeToGeom(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.Polygon:
		return polygonToMultiPolygon(s, srid)
	default:
		return nil
	}
}

// polygonToMultiPolygon groups rings the shapefile way: a clockwise ring
// starts a new polygon and each counter-clockwise ring is a hole of the
// polygon before it. A counter-clockwise ring with no polygon before it is
// taken as an outer ring.
func polygonToMultiPolygon(p *shp.Polygon, srid int) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		// A closed ring needs at least four points.
		if len(flat) < 8 {
			zap.L().Debug("dataset: skipping short polygon ring", zap.Int32("part", i))
			continue
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if current != nil && xy.IsRingCounterClockwise(geom.XY, flat) {
			if err := current.Push(ring); err != nil {
				zap.L().Debug("dataset: skipping malformed polygon hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}

		flush()
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			current = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func attribute(reader *shp.Reader, idx int) string {
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}

func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func logSkipped(layer string, n int) {
	if n > 0 {
		zap.L().Debug("dataset: skipped shapefile records",
			zap.String("layer", layer),
			zap.Int("skipped", n),
		)
	}
}

// downloadFile downloads a URL to a local file, retrying transient
// failures.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}
	p := resilience.DefaultPolicy("download " + url)
	_, err := resilience.Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fetchOnce(ctx, client, url, dest)
	})
	return err
}

func fetchOnce(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("download returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// extractZIP extracts the files of a ZIP archive into destDir, flattening
// any directory structure.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return eris.Wrapf(out.Close(), "close %s", dest)
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
