package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/dataset"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write the built-in San Francisco sample dataset as YAML",
	Long: `Writes the San Francisco sample (land boundary, four downtown BART
stations and four buffered parcels) in the YAML dataset format. Use it as
a starting point for your own dataset.`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().String("output", "", "output file path (default: stdout)")
	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate("sample"); err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")
	return writeDocument(dataset.SanFrancisco(), outputPath, cmd.OutOrStdout())
}

// writeDocument encodes doc to path, or to stdout when path is empty.
func writeDocument(doc *dataset.Document, path string, stdout io.Writer) error {
	if path == "" {
		return doc.Encode(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := doc.Encode(f); err != nil {
		return err
	}
	zap.L().Info("dataset written", zap.String("path", path))
	return nil
}
