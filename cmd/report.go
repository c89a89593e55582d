package main

import (
	"bytes"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/BlueGIS760404/UrbanPlanning/internal/config"
	"github.com/BlueGIS760404/UrbanPlanning/internal/present"
	"github.com/BlueGIS760404/UrbanPlanning/internal/report"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Score parcels and write the HTML suitability report",
	Long: `Runs the suitability pipeline and writes a self-contained HTML document
with the styled score table and an interactive Leaflet map. Optionally
exports the table as XLSX and the parcels as GeoJSON.

Examples:
  # Report on the built-in San Francisco sample
  report

  # Report on a dataset with a custom template and extra exports
  report --dataset parcels.yaml --template my_report.html.tmpl \
    --xlsx scores.xlsx --geojson parcels.geojson`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.String("dataset", "", "YAML dataset path (overrides config)")
	f.Float64("radius", -1, "transit buffer radius (overrides config)")
	f.String("output", "", "HTML output path (overrides config)")
	f.String("template", "", "report template path (default: built-in)")
	f.String("title", "", "report title (overrides config)")
	f.String("xlsx", "", "also write the table as XLSX to this path")
	f.String("geojson", "", "also write the scored parcels as GeoJSON to this path")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyInputOverrides(cmd)
	applyReportOverrides(cmd, &cfg.Report)
	log := zap.L().With(zap.String("command", "report"))

	env, err := initScoring(ctx, cfg, "report", nil)
	if err != nil {
		return err
	}

	// Template errors abort before scoring.
	composer, err := newComposer(cfg.Report)
	if err != nil {
		return err
	}

	res, err := env.Pipeline.Run(ctx, env.Store)
	if err != nil {
		log.Error("scoring failed", zap.Error(err))
		return eris.Wrap(err, "report: run")
	}

	doc, err := composer.Compose(res)
	if err != nil {
		return err
	}
	if err := report.WriteFile(cfg.Report.Output, doc.HTML); err != nil {
		return err
	}
	if err := writeExports(res, cfg.Report); err != nil {
		return err
	}

	log.Info("report complete",
		zap.String("run_id", doc.RunID),
		zap.String("output", cfg.Report.Output),
	)
	printScoreSummary(os.Stdout, res)
	return nil
}

func applyReportOverrides(cmd *cobra.Command, rc *config.ReportConfig) {
	for flag, dst := range map[string]*string{
		"output":   &rc.Output,
		"template": &rc.Template,
		"title":    &rc.Title,
		"xlsx":     &rc.XLSX,
		"geojson":  &rc.GeoJSON,
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*dst = v
		}
	}
}

// newComposer loads the report template and wires the table sink to the
// configured language.
func newComposer(rc config.ReportConfig) (*report.Composer, error) {
	tmpl, err := report.LoadTemplate(rc.Template)
	if err != nil {
		return nil, err
	}
	c := report.NewComposer(tmpl, rc.Title)
	tag, err := language.Parse(rc.Language)
	if err != nil {
		zap.L().Warn("unknown report language, using English",
			zap.String("language", rc.Language),
			zap.Error(err),
		)
		tag = language.English
	}
	c.Table = present.HTMLTableSink{Language: tag}
	return c, nil
}

// writeExports writes the optional XLSX table and GeoJSON parcels.
func writeExports(res *suitability.Result, rc config.ReportConfig) error {
	if rc.XLSX != "" {
		var buf bytes.Buffer
		if err := (present.XLSXSink{}).RenderTable(&buf, present.Rows(res)); err != nil {
			return eris.Wrap(err, "report: xlsx export")
		}
		if err := report.WriteFile(rc.XLSX, buf.Bytes()); err != nil {
			return err
		}
	}

	if rc.GeoJSON != "" {
		view, err := present.MapView(res)
		if err != nil {
			return eris.Wrap(err, "report: geojson export")
		}
		data, err := present.GeoJSON(view)
		if err != nil {
			return eris.Wrap(err, "report: geojson export")
		}
		if err := report.WriteFile(rc.GeoJSON, data); err != nil {
			return err
		}
	}
	return nil
}
