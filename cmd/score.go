package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/present"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score parcels and print the suitability table",
	Long: `Runs the suitability pipeline over the configured dataset and prints one
row per parcel with its raw inputs, composite score and tier.

Examples:
  # Score the built-in San Francisco sample
  score

  # Score a YAML dataset with a 400 m buffer in a projected CRS
  score --dataset parcels.yaml --radius 400

  # Export CSV (with WKT geometry) to a file
  score --format csv --output scores.csv`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("dataset", "", "YAML dataset path (overrides config)")
	f.Float64("radius", -1, "transit buffer radius (overrides config)")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "table", "output format: table or csv")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	if format != "table" && format != "csv" {
		return eris.Errorf("score: --format must be table or csv (got %q)", format)
	}
	applyInputOverrides(cmd)

	env, err := initScoring(ctx, cfg, "score", nil)
	if err != nil {
		return err
	}

	res, err := env.Pipeline.Run(ctx, env.Store)
	if err != nil {
		zap.L().Error("scoring failed", zap.String("command", "score"), zap.Error(err))
		return eris.Wrap(err, "score: run")
	}

	if err := outputScoreResults(res, format, outputPath); err != nil {
		return err
	}
	if format == "table" {
		printScoreSummary(os.Stdout, res)
	}
	return nil
}

// applyInputOverrides copies the --dataset and --radius flags into cfg.
func applyInputOverrides(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("dataset"); v != "" {
		cfg.Input.Dataset = v
	}
	if cmd.Flags().Changed("radius") {
		cfg.Suitability.Radius, _ = cmd.Flags().GetFloat64("radius")
	}
}

func outputScoreResults(res *suitability.Result, format, outputPath string) error {
	var w io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	var sink present.TableSink
	switch format {
	case "csv":
		sink = present.CSVSink{}
	case "table":
		sink = present.TextSink{}
	default:
		return eris.Errorf("score: unsupported format %q", format)
	}
	return sink.RenderTable(w, present.Rows(res))
}

func printScoreSummary(w io.Writer, res *suitability.Result) {
	if len(res.Parcels) == 0 {
		fmt.Fprintln(w, "No parcels scored.")
		return
	}
	minScore, maxScore := math.Inf(1), math.Inf(-1)
	var sum float64
	for _, p := range res.Parcels {
		sum += p.Score
		minScore = math.Min(minScore, p.Score)
		maxScore = math.Max(maxScore, p.Score)
	}
	total := len(res.Parcels)
	counts := res.TierCounts()

	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Region:        %s\n", present.RegionTooltip(res.Region))
	fmt.Fprintf(w, "Total scored:  %d\n", total)
	if res.UsedFallback {
		fmt.Fprintf(w, "Fallback:      no parcels inside the region, scored the fallback set\n")
	}
	if res.Excluded > 0 {
		fmt.Fprintf(w, "Excluded:      %d outside the region\n", res.Excluded)
	}
	for _, t := range []feature.Tier{feature.TierHigh, feature.TierMedium, feature.TierLow} {
		fmt.Fprintf(w, "%-14s %d (%.1f%%)\n", t.String()+":", counts[t], float64(counts[t])/float64(total)*100)
	}
	fmt.Fprintf(w, "Score range:   %.2f - %.2f\n", minScore, maxScore)
	fmt.Fprintf(w, "Average score: %.2f\n", sum/float64(total))
	for _, d := range res.Diagnostics {
		fmt.Fprintf(w, "Diagnostic:    %s\n", d)
	}
}
