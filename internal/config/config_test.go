package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.005, cfg.Suitability.Radius, 1e-12)
	assert.Equal(t, "planar", cfg.Suitability.Metric)
	assert.Equal(t, 64, cfg.Suitability.Segments)
	assert.InDelta(t, 0.4, cfg.Suitability.Weights.PopulationDensity, 0.001)
	assert.InDelta(t, 0.3, cfg.Suitability.Weights.Slope, 0.001)
	assert.InDelta(t, 0.3, cfg.Suitability.Weights.Proximity, 0.001)
	assert.Empty(t, cfg.Input.Dataset)
	assert.Equal(t, "ID", cfg.Input.Shapefile.ParcelIDField)
	assert.Equal(t, 4326, cfg.Input.Shapefile.SRID)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Input.Overpass.Endpoint)
	assert.Equal(t, 60, cfg.Input.Overpass.TimeoutSecs)
	assert.Equal(t, "suitability_report.html", cfg.Report.Output)
	assert.Equal(t, "Land Use Suitability Report", cfg.Report.Title)
	assert.Equal(t, "en", cfg.Report.Language)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
suitability:
  radius: 250
  metric: geodesic
  weights:
    population_density: 0.5
    slope: 0.25
    proximity: 0.25
input:
  dataset: parcels.yaml
  shapefile:
    attribute_fields:
      pop_density: DENSITY
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 250, cfg.Suitability.Radius, 1e-9)
	assert.Equal(t, "geodesic", cfg.Suitability.Metric)
	assert.InDelta(t, 0.5, cfg.Suitability.Weights.PopulationDensity, 0.001)
	assert.InDelta(t, 0.25, cfg.Suitability.Weights.Slope, 0.001)
	assert.Equal(t, "parcels.yaml", cfg.Input.Dataset)
	assert.Equal(t, "DENSITY", cfg.Input.Shapefile.AttributeFields["pop_density"])
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 64, cfg.Suitability.Segments)
	assert.Equal(t, "suitability_report.html", cfg.Report.Output)
	assert.NoError(t, cfg.Validate("report"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
report:
  output: from-file.html
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SUITABILITY_REPORT_OUTPUT", "from-env.html")
	t.Setenv("SUITABILITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "from-env.html", cfg.Report.Output)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SUITABILITY_SERVER_PORT", "3000")
	t.Setenv("SUITABILITY_SUITABILITY_RADIUS", "0.01")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 0.01, cfg.Suitability.Radius, 1e-12)
}

func TestLoadGeodesicDefaultRadius(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("suitability:\n  metric: geodesic\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "geodesic", cfg.Suitability.Metric)
	assert.InDelta(t, suitability.DefaultGeodesicRadius, cfg.Suitability.Radius, 1e-9)
}

func TestLoadGeodesicRadiusFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SUITABILITY_SUITABILITY_METRIC", "geodesic")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, suitability.DefaultGeodesicRadius, cfg.Suitability.Radius, 1e-9)

	t.Setenv("SUITABILITY_SUITABILITY_RADIUS", "750")
	cfg, err = Load()
	require.NoError(t, err)
	assert.InDelta(t, 750, cfg.Suitability.Radius, 1e-9)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("suitability: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Suitability.Radius = suitability.DefaultRadius
	cfg.Suitability.Metric = "planar"
	cfg.Suitability.Segments = 64
	cfg.Suitability.Weights = suitability.DefaultWeights()
	cfg.Input.Overpass.TimeoutSecs = 60
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"report", "score", "serve", "anchors", "sample"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters when serving.
	assert.NoError(t, cfg.Validate("report"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateSuitability(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative radius", func(c *Config) { c.Suitability.Radius = -1 }, "suitability.radius must be >= 0"},
		{"unknown metric", func(c *Config) { c.Suitability.Metric = "manhattan" }, `suitability.metric "manhattan"`},
		{"too few segments", func(c *Config) { c.Suitability.Segments = 3 }, "suitability.segments must be >= 4"},
		{"weights off by a lot", func(c *Config) { c.Suitability.Weights.Slope = 0.5 }, "weights must sum to 1"},
		{"negative weight", func(c *Config) {
			c.Suitability.Weights = suitability.Weights{PopulationDensity: 1.2, Slope: -0.2, Proximity: 0}
		}, "slope must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("score")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_WeightsErrorIs(t *testing.T) {
	cfg := validDefaults()
	cfg.Suitability.Weights.Slope = 0.5

	err := cfg.Validate("report")
	require.Error(t, err)
	assert.True(t, errors.Is(err, suitability.ErrWeightConfiguration))

	cfg.Suitability.Radius = -1
	err = cfg.Validate("score")
	require.Error(t, err)
	assert.True(t, errors.Is(err, suitability.ErrWeightConfiguration))
	assert.Contains(t, err.Error(), "suitability.radius must be >= 0")

	// Weights are not checked outside the scoring commands.
	assert.NoError(t, cfg.Validate("sample"))
}

func TestValidate_ZeroRadiusAllowed(t *testing.T) {
	cfg := validDefaults()
	cfg.Suitability.Radius = 0
	assert.NoError(t, cfg.Validate("report"))
}

func TestValidateAnchors_Timeout(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.Overpass.TimeoutSecs = 0

	err := cfg.Validate("anchors")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout_secs must be > 0")
}
