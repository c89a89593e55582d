package present

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/language"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

func square(cx, cy, r float64, srid int) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		cx - r, cy - r, cx + r, cy - r, cx + r, cy + r, cx - r, cy + r, cx - r, cy - r,
	}, []int{10}).SetSRID(srid)
}

func scoredParcel(id int, density, slope, prox, score float64, tier feature.Tier) feature.Parcel {
	p := feature.NewParcel(id, square(float64(id), 0, 0.25, feature.SRIDWGS84), map[feature.Attribute]float64{
		feature.PopulationDensity: density,
		feature.Slope:             slope,
	})
	_ = p.Derived.Set(feature.ProximityScore, prox)
	p.Score = score
	p.Scored = true
	p.Tier = tier
	return p
}

func testResult() *suitability.Result {
	return &suitability.Result{
		Region: feature.Region{Name: "San Francisco", Geometry: square(2, 0, 5, feature.SRIDWGS84)},
		Anchors: []feature.AnchorPoint{
			{Name: "Powell", Point: geom.NewPointFlat(geom.XY, []float64{1, 0}).SetSRID(feature.SRIDWGS84)},
		},
		Parcels: []feature.Parcel{
			scoredParcel(1, 5000, 5, 1, 1, feature.TierHigh),
			scoredParcel(2, 3000, 15, 1, 0.65, feature.TierMedium),
			scoredParcel(3, 2000, 25, 0.5, 0.1, feature.TierLow),
		},
	}
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		tier feature.Tier
		want Style
	}{
		{feature.TierLow, Style{Fill: "#ff0000", Cell: "#ffcccc"}},
		{feature.TierMedium, Style{Fill: "#ffa500", Cell: "#ffe4b5"}},
		{feature.TierHigh, Style{Fill: "#008000", Cell: "#ccffcc"}},
	}
	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StyleFor(tt.tier))
		})
	}
}

func TestRows(t *testing.T) {
	rows := Rows(testResult())
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].ID)
	assert.Equal(t, 5000.0, rows[0].PopulationDensity)
	assert.Equal(t, 1.0, rows[0].ProximityScore)
	assert.Equal(t, suitability.ChannelGo, rows[0].Channel)
	assert.Equal(t, suitability.ChannelCaution, rows[1].Channel)
	assert.Equal(t, suitability.ChannelWarning, rows[2].Channel)
}

func TestMapView(t *testing.T) {
	m, err := MapView(testResult())
	require.NoError(t, err)

	assert.InDelta(t, 2.0, m.Center.X(), 1e-9)
	assert.InDelta(t, 0.0, m.Center.Y(), 1e-9)
	assert.Equal(t, DefaultZoom, m.Zoom)
	assert.True(t, m.Geographic())
	require.Len(t, m.Features, 3)
	assert.Equal(t, "Suitability: 1.00, Pop Density: 5000, Slope: 5°", m.Features[0].Tooltip)
	assert.Equal(t, suitability.ChannelGo, m.Features[0].Channel)

	_, err = MapView(&suitability.Result{})
	assert.Error(t, err)
}

func TestRegionTooltip(t *testing.T) {
	assert.Equal(t, "San Francisco Boundary", RegionTooltip(feature.Region{Name: "San Francisco"}))
	assert.Equal(t, "Study Area Boundary", RegionTooltip(feature.Region{}))
}

func TestHTMLTableSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTMLTableSink{}.RenderTable(&buf, Rows(testResult())))
	out := buf.String()

	assert.Contains(t, out, "<th>Suitability Score</th>")
	assert.Contains(t, out, "<td>5,000.00</td>")
	assert.Contains(t, out, `style="background-color: #ccffcc"`)
	assert.Contains(t, out, `style="background-color: #ffcccc"`)
	assert.Contains(t, out, `<td style="background-color: #ffe4b5">0.65</td>`)
	assert.Equal(t, 3, strings.Count(out, "<tr><td>"))
}

func TestHTMLTableSink_Language(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTMLTableSink{Language: language.German}.RenderTable(&buf, Rows(testResult())))
	assert.Contains(t, buf.String(), "<td>5.000,00</td>")
}

func TestHTMLTableSink_MissingValue(t *testing.T) {
	rows := []TableRow{{ID: 9, PopulationDensity: math.NaN(), Score: 0.5, Tier: feature.TierMedium}}
	var buf bytes.Buffer
	require.NoError(t, HTMLTableSink{}.RenderTable(&buf, rows))
	assert.Contains(t, buf.String(), "<td>n/a</td>")
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSVSink{}.RenderTable(&buf, Rows(testResult())))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "suitability_score", records[0][4])
	assert.Equal(t, []string{"1", "5000", "5", "1", "1", "High", "go"}, records[1][:7])
	assert.True(t, strings.HasPrefix(records[1][7], "POLYGON (("), records[1][7])
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextSink{}.RenderTable(&buf, Rows(testResult())))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "Pop Density")
	assert.Contains(t, lines[2], "5000.00")
	assert.Contains(t, lines[3], "Medium")
}

func TestXLSXSink(t *testing.T) {
	f, err := XLSXSink{}.Workbook(Rows(testResult()))
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, DefaultSheetName, sheet.Name)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "Parcel ID", sheet.Rows[0].Cells[0].Value)

	scoreCell := sheet.Rows[1].Cells[4]
	assert.Equal(t, "FFCCFFCC", scoreCell.GetStyle().Fill.FgColor)
	assert.Equal(t, "FFFFCCCC", sheet.Rows[3].Cells[4].GetStyle().Fill.FgColor)
	assert.Equal(t, "High", sheet.Rows[1].Cells[5].Value)

	var buf bytes.Buffer
	require.NoError(t, XLSXSink{SheetName: "Run"}.RenderTable(&buf, Rows(testResult())))

	read, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Contains(t, read.Sheet, "Run")
	v, err := read.Sheet["Run"].Rows[2].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.65, v, 1e-9)
}

func TestGeoJSON(t *testing.T) {
	m, err := MapView(testResult())
	require.NoError(t, err)

	b, err := GeoJSON(m)
	require.NoError(t, err)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string                 `json:"id"`
			Geometry   map[string]interface{} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(b, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "1", fc.Features[0].ID)
	assert.Equal(t, "Polygon", fc.Features[0].Geometry["type"])
	assert.Equal(t, "High", fc.Features[0].Properties["tier"])
	assert.Equal(t, "#008000", fc.Features[0].Properties["fill"])
	assert.Equal(t, "warning", fc.Features[2].Properties["channel"])
}

func TestLeafletSink(t *testing.T) {
	m, err := MapView(testResult())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, LeafletSink{ElementID: "map"}.RenderMap(&buf, m))
	out := buf.String()

	assert.Contains(t, out, `<div id="map"`)
	assert.Contains(t, out, "leaflet.js")
	assert.Contains(t, out, "tile.openstreetmap.org")
	assert.Contains(t, out, `"FeatureCollection"`)
	assert.Contains(t, out, "San Francisco Boundary")
	assert.Contains(t, out, "#ffa500")
}

func TestLeafletSink_Projected(t *testing.T) {
	res := testResult()
	res.Region.Geometry = square(2, 0, 5, 32610)
	m, err := MapView(res)
	require.NoError(t, err)
	assert.False(t, m.Geographic())

	var buf bytes.Buffer
	require.NoError(t, LeafletSink{}.RenderMap(&buf, m))
	assert.Contains(t, buf.String(), `<div id="suitability-map"`)
	assert.Regexp(t, `var geographic = +false`, buf.String())
}
