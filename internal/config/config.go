package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BlueGIS760404/UrbanPlanning/internal/dataset"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

// Config holds the full application configuration.
type Config struct {
	Suitability SuitabilityConfig `yaml:"suitability" mapstructure:"suitability"`
	Input       InputConfig       `yaml:"input" mapstructure:"input"`
	Report      ReportConfig      `yaml:"report" mapstructure:"report"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// SuitabilityConfig configures the scoring pipeline.
type SuitabilityConfig struct {
	// Radius is the transit buffer radius: CRS units for the planar metric,
	// metres for the geodesic one.
	Radius   float64             `yaml:"radius" mapstructure:"radius"`
	Metric   string              `yaml:"metric" mapstructure:"metric"`
	Segments int                 `yaml:"segments" mapstructure:"segments"`
	Weights  suitability.Weights `yaml:"weights" mapstructure:"weights"`
}

// InputConfig selects the dataset. Dataset takes precedence over
// shapefiles; with neither set the built-in sample is used.
type InputConfig struct {
	Dataset   string                  `yaml:"dataset" mapstructure:"dataset"`
	Shapefile dataset.ShapefileSource `yaml:"shapefile" mapstructure:"shapefile"`
	Overpass  OverpassConfig          `yaml:"overpass" mapstructure:"overpass"`
}

// OverpassConfig configures the OpenStreetMap station lookup.
type OverpassConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReportConfig configures the HTML report and its optional exports.
type ReportConfig struct {
	Template string `yaml:"template" mapstructure:"template"`
	Output   string `yaml:"output" mapstructure:"output"`
	Title    string `yaml:"title" mapstructure:"title"`
	XLSX     string `yaml:"xlsx" mapstructure:"xlsx"`
	GeoJSON  string `yaml:"geojson" mapstructure:"geojson"`
	Language string `yaml:"language" mapstructure:"language"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUITABILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	w := suitability.DefaultWeights()
	v.SetDefault("suitability.radius", suitability.DefaultRadius)
	v.SetDefault("suitability.metric", spatial.MetricPlanar)
	v.SetDefault("suitability.segments", spatial.DefaultSegments)
	v.SetDefault("suitability.weights.population_density", w.PopulationDensity)
	v.SetDefault("suitability.weights.slope", w.Slope)
	v.SetDefault("suitability.weights.proximity", w.Proximity)
	v.SetDefault("input.shapefile.region_name_field", "NAME")
	v.SetDefault("input.shapefile.anchor_name_field", "NAME")
	v.SetDefault("input.shapefile.parcel_id_field", "ID")
	v.SetDefault("input.shapefile.srid", 4326)
	v.SetDefault("input.overpass.endpoint", dataset.DefaultOverpassEndpoint)
	v.SetDefault("input.overpass.timeout_secs", 60)
	v.SetDefault("report.output", "suitability_report.html")
	v.SetDefault("report.title", "Land Use Suitability Report")
	v.SetDefault("report.language", "en")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// The planar default is in degrees; geodesic distances are in metres.
	_, radiusEnv := os.LookupEnv("SUITABILITY_SUITABILITY_RADIUS")
	if cfg.Suitability.Metric == spatial.MetricGeodesic && !radiusEnv && !v.InConfig("suitability.radius") {
		cfg.Suitability.Radius = suitability.DefaultGeodesicRadius
	}

	return &cfg, nil
}

// Validate checks the settings the given command depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "report", "score", "serve":
		errs = append(errs, c.validateSuitability()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "anchors":
		if c.Input.Overpass.TimeoutSecs <= 0 {
			errs = append(errs, "input.overpass.timeout_secs must be > 0")
		}
	case "sample":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if err := c.weightsError(mode); err != nil {
		if len(errs) == 0 {
			return eris.Wrap(err, "config: suitability.weights")
		}
		return eris.Wrapf(err, "config: %s; suitability.weights", strings.Join(errs, "; "))
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// weightsError returns the weight validation error for the scoring modes.
func (c *Config) weightsError(mode string) error {
	switch mode {
	case "report", "score", "serve":
		return c.Suitability.Weights.Validate()
	}
	return nil
}

func (c *Config) validateSuitability() []string {
	var errs []string
	s := c.Suitability
	if s.Radius < 0 || math.IsNaN(s.Radius) {
		errs = append(errs, "suitability.radius must be >= 0")
	}
	if _, err := spatial.ForMetric(s.Metric, s.Segments); err != nil {
		errs = append(errs, fmt.Sprintf("suitability.metric %q is not planar or geodesic", s.Metric))
	}
	if s.Segments < 4 {
		errs = append(errs, "suitability.segments must be >= 4")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
