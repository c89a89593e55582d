package present

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkt"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TableSink renders the table view.
type TableSink interface {
	RenderTable(w io.Writer, rows []TableRow) error
}

// Column headers shared by every table sink.
var tableHeader = []string{"Parcel ID", "Population Density", "Slope (°)", "Proximity Score", "Suitability Score", "Tier"}

var htmlTable = template.Must(template.New("table").Parse(`<table class="suitability-table">
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.ID}}</td><td>{{.Density}}</td><td>{{.Slope}}</td><td>{{.Proximity}}</td><td style="background-color: {{.Cell}}">{{.Score}}</td><td>{{.Tier}}</td></tr>
{{- end}}
</tbody>
</table>
`))

// HTMLTableSink renders a styled HTML table. Numbers are rounded to two
// decimals and grouped for the configured language.
type HTMLTableSink struct {
	Language language.Tag
}

type htmlRow struct {
	ID                                     int
	Density, Slope, Proximity, Score, Tier string
	Cell                                   template.CSS
}

// RenderTable implements TableSink.
func (s HTMLTableSink) RenderTable(w io.Writer, rows []TableRow) error {
	tag := s.Language
	if tag == language.Und {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	data := struct {
		Header []string
		Rows   []htmlRow
	}{Header: tableHeader}
	for _, r := range rows {
		data.Rows = append(data.Rows, htmlRow{
			ID:        r.ID,
			Density:   formatNumber(p, r.PopulationDensity),
			Slope:     formatNumber(p, r.Slope),
			Proximity: formatNumber(p, r.ProximityScore),
			Score:     formatNumber(p, r.Score),
			Tier:      r.Tier.String(),
			Cell:      template.CSS(StyleFor(r.Tier).Cell),
		})
	}
	if err := htmlTable.Execute(w, data); err != nil {
		return eris.Wrap(err, "present: render html table")
	}
	return nil
}

func formatNumber(p *message.Printer, v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return p.Sprintf("%.2f", v)
}

// CSVSink writes the table as CSV with the parcel geometry as WKT.
type CSVSink struct{}

// RenderTable implements TableSink.
func (CSVSink) RenderTable(w io.Writer, rows []TableRow) error {
	cw := csv.NewWriter(w)

	header := []string{"parcel_id", "pop_density", "slope", "proximity_score", "suitability_score", "tier", "channel", "wkt"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "present: write CSV header")
	}

	for _, r := range rows {
		geometry := ""
		if r.Geometry != nil {
			s, err := wkt.Marshal(r.Geometry)
			if err != nil {
				return eris.Wrapf(err, "present: parcel %d wkt", r.ID)
			}
			geometry = s
		}
		row := []string{
			strconv.Itoa(r.ID),
			formatFloat(r.PopulationDensity),
			formatFloat(r.Slope),
			formatFloat(r.ProximityScore),
			formatFloat(r.Score),
			r.Tier.String(),
			string(r.Channel),
			geometry,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "present: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "present: flush CSV")
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TextSink writes a fixed-width console table.
type TextSink struct{}

// RenderTable implements TableSink.
func (TextSink) RenderTable(w io.Writer, rows []TableRow) error {
	header := fmt.Sprintf("%-8s %12s %8s %10s %8s %-8s\n",
		"Parcel", "Pop Density", "Slope", "Proximity", "Score", "Tier")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "present: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 61)); err != nil {
		return eris.Wrap(err, "present: write table separator")
	}

	for _, r := range rows {
		line := fmt.Sprintf("%-8d %12.2f %8.2f %10.2f %8.2f %-8s\n",
			r.ID, r.PopulationDensity, r.Slope, r.ProximityScore, r.Score, r.Tier)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "present: write table row")
		}
	}
	return nil
}
