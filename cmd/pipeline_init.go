package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/config"
	"github.com/BlueGIS760404/UrbanPlanning/internal/dataset"
	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/observability"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
	"github.com/BlueGIS760404/UrbanPlanning/internal/suitability"
)

// scoringEnv holds the loaded store and the configured pipeline needed by
// the report/score/serve commands.
type scoringEnv struct {
	Store    *feature.Store
	Pipeline *suitability.Pipeline
	Metrics  *observability.Metrics
}

// initScoring validates the config for mode, loads the configured dataset
// and builds the Pipeline. Metrics are registered with reg when it is
// non-nil.
func initScoring(ctx context.Context, c *config.Config, mode string, reg prometheus.Registerer) (*scoringEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	gm, err := spatial.ForMetric(c.Suitability.Metric, c.Suitability.Segments)
	if err != nil {
		return nil, eris.Wrap(err, "init geometry")
	}

	st, err := loadStore(ctx, c, gm)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if reg != nil {
		metrics = observability.NewMetrics(reg)
	}

	p, err := suitability.New(suitability.Options{
		Radius:   c.Suitability.Radius,
		Weights:  c.Suitability.Weights,
		Geometry: gm,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init pipeline")
	}

	return &scoringEnv{Store: st, Pipeline: p, Metrics: metrics}, nil
}

// loadStore builds the feature store from the configured input. A YAML
// dataset takes precedence over shapefiles; with neither the built-in San
// Francisco sample is used.
func loadStore(ctx context.Context, c *config.Config, gm spatial.Geometry) (*feature.Store, error) {
	log := zap.L().With(zap.String("component", "input"))
	in := c.Input

	switch {
	case in.Dataset != "":
		log.Info("loading dataset", zap.String("path", in.Dataset))
		doc, err := dataset.Load(in.Dataset)
		if err != nil {
			return nil, err
		}
		return doc.Store(gm, c.Suitability.Segments)

	case in.Shapefile.Parcels != "":
		log.Info("loading shapefiles",
			zap.String("region", in.Shapefile.Region),
			zap.String("anchors", in.Shapefile.Anchors),
			zap.String("parcels", in.Shapefile.Parcels),
		)
		client := &http.Client{Timeout: 5 * time.Minute}
		return in.Shapefile.Store(ctx, client, gm)

	default:
		log.Info("no input configured, using the San Francisco sample")
		return dataset.SanFrancisco().Store(gm, c.Suitability.Segments)
	}
}

// loadDocument returns the configured YAML dataset, or the sample when no
// dataset is configured.
func loadDocument(c *config.Config) (*dataset.Document, error) {
	if c.Input.Dataset == "" {
		return dataset.SanFrancisco(), nil
	}
	return dataset.Load(c.Input.Dataset)
}
