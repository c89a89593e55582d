package present

import (
	"io"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// DefaultSheetName is the worksheet written by XLSXSink.
const DefaultSheetName = "Suitability"

// XLSXSink writes the table view as an Excel workbook. The score cell of
// each row is filled with the tier's cell colour.
type XLSXSink struct {
	SheetName string
}

// RenderTable implements TableSink.
func (s XLSXSink) RenderTable(w io.Writer, rows []TableRow) error {
	f, err := s.Workbook(rows)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

// Workbook builds the workbook without serialising it.
func (s XLSXSink) Workbook(rows []TableRow) (*xlsx.File, error) {
	name := s.SheetName
	if name == "" {
		name = DefaultSheetName
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %q", name)
	}

	header := sheet.AddRow()
	bold := centered()
	bold.Font.Bold = true
	bold.ApplyFont = true
	for _, h := range tableHeader {
		cell := header.AddCell()
		cell.SetString(h)
		cell.SetStyle(bold)
	}

	plain := centered()
	for _, r := range rows {
		row := sheet.AddRow()

		id := row.AddCell()
		id.SetInt(r.ID)
		id.SetStyle(plain)

		for _, v := range []float64{r.PopulationDensity, r.Slope, r.ProximityScore} {
			setNumber(row.AddCell(), v, plain)
		}

		score := centered()
		color := argb(StyleFor(r.Tier).Cell)
		score.Fill = *xlsx.NewFill("solid", color, color)
		score.ApplyFill = true
		setNumber(row.AddCell(), r.Score, score)

		tier := row.AddCell()
		tier.SetString(r.Tier.String())
		tier.SetStyle(plain)
	}
	return f, nil
}

func setNumber(cell *xlsx.Cell, v float64, style *xlsx.Style) {
	if math.IsNaN(v) {
		cell.SetString("")
	} else {
		cell.SetFloatWithFormat(v, "0.00")
	}
	cell.SetStyle(style)
}

func centered() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Alignment.Horizontal = "center"
	s.ApplyAlignment = true
	return s
}

// argb converts "#rrggbb" to the opaque "FFRRGGBB" form Excel expects.
func argb(hex string) string {
	return "FF" + strings.ToUpper(strings.TrimPrefix(hex, "#"))
}
