package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "suitability",
	Short: "Land-use suitability scoring for urban planning",
	Long: `Scores parcels inside a study region by population density, terrain slope
and proximity to transit anchors, classifies them into Low/Medium/High tiers
and renders an HTML report with a styled table and an interactive map.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
