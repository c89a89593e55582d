package report

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/present"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

// DefaultTitle is the document title when none is configured.
const DefaultTitle = "Land Use Suitability Report"

// Views are the rendered fragments and metadata bound into a template.
type Views struct {
	Title       string
	Region      string
	GeneratedAt time.Time
	RunID       string
	Table       template.HTML
	Map         template.HTML
	Diagnostics []string
}

// Compose executes tmpl with views. The fragments are inserted verbatim.
func Compose(tmpl *template.Template, views Views) ([]byte, error) {
	if tmpl == nil {
		return nil, eris.Wrap(ErrTemplateMissing, "nil template")
	}
	data := map[string]interface{}{
		SlotTable:       views.Table,
		SlotMap:         views.Map,
		SlotTitle:       views.Title,
		SlotRegion:      views.Region,
		SlotGeneratedAt: views.GeneratedAt.UTC().Format(time.RFC3339),
		SlotRunID:       views.RunID,
		SlotDiagnostics: views.Diagnostics,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, eris.Wrapf(ErrTemplateRender, "execute %q: %v", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}

// Document is a composed report.
type Document struct {
	RunID       string
	GeneratedAt time.Time
	HTML        []byte
}

// Composer renders a scoring result through its sinks and template.
type Composer struct {
	Template *template.Template
	Title    string
	Table    present.TableSink
	Map      present.MapSink
	Clock    clockwork.Clock
}

// NewComposer returns a Composer with the HTML table and Leaflet map sinks
// and the real clock.
func NewComposer(tmpl *template.Template, title string) *Composer {
	if title == "" {
		title = DefaultTitle
	}
	return &Composer{
		Template: tmpl,
		Title:    title,
		Table:    present.HTMLTableSink{},
		Map:      present.LeafletSink{},
		Clock:    clockwork.NewRealClock(),
	}
}

// Compose renders res into a Document.
func (c *Composer) Compose(res *suitability.Result) (*Document, error) {
	var table bytes.Buffer
	if err := c.Table.RenderTable(&table, present.Rows(res)); err != nil {
		return nil, eris.Wrap(err, "report: table view")
	}

	view, err := present.MapView(res)
	if err != nil {
		return nil, eris.Wrap(err, "report: map view")
	}
	var m bytes.Buffer
	if err := c.Map.RenderMap(&m, view); err != nil {
		return nil, eris.Wrap(err, "report: map view")
	}

	diags := make([]string, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		diags = append(diags, d.String())
	}

	doc := &Document{
		RunID:       uuid.NewString(),
		GeneratedAt: c.Clock.Now(),
	}
	html, err := Compose(c.Template, Views{
		Title:       c.Title,
		Region:      res.Region.Name,
		GeneratedAt: doc.GeneratedAt,
		RunID:       doc.RunID,
		Table:       template.HTML(table.String()),
		Map:         template.HTML(m.String()),
		Diagnostics: diags,
	})
	if err != nil {
		return nil, err
	}
	doc.HTML = html
	return doc, nil
}

// WriteFile writes data to path atomically: the content goes to a temporary
// file in the same directory which is then renamed over path. On failure
// path is left untouched.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "report: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "report: write %s", tmpName)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "report: chmod %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "report: rename to %s", path)
	}

	zap.L().Info("report written", zap.String("component", "report"), zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
