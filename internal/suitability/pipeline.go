package suitability

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/observability"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// ErrSchema is returned when a required raw attribute column is not declared
// by the input data.
var ErrSchema = eris.New("suitability: required attribute missing")

// DefaultRadius is the transit buffer radius in the units of the input CRS.
// For the bundled WGS84 sample it is about 550 m at San Francisco latitudes.
const DefaultRadius = 0.005

// DefaultGeodesicRadius is the default radius in metres for the geodesic
// metric.
const DefaultGeodesicRadius = 500.0

// Options configures a Pipeline. Zero fields take defaults: DefaultWeights,
// planar geometry, the real clock and no metrics.
type Options struct {
	Radius   float64
	Weights  Weights
	Geometry spatial.Geometry
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
}

// Pipeline runs the scoring stages over a Store.
type Pipeline struct {
	radius   float64
	weights  Weights
	geometry spatial.Geometry
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Radius < 0 {
		return nil, eris.Errorf("suitability: proximity radius must be >= 0 (got %g)", opts.Radius)
	}
	if opts.Geometry == nil {
		opts.Geometry = spatial.Planar{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		radius:   opts.Radius,
		weights:  opts.Weights,
		geometry: opts.Geometry,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}, nil
}

// Result is the outcome of one run.
type Result struct {
	Region  feature.Region
	Anchors []feature.AnchorPoint
	// Parcels are scored and classified, in input order.
	Parcels      []feature.Parcel
	Diagnostics  []Diagnostic
	UsedFallback bool
	Excluded     int
	Weights      Weights
	Radius       float64
	StartedAt    time.Time
	Elapsed      time.Duration
}

// TierCounts returns the number of parcels per tier.
func (r *Result) TierCounts() map[feature.Tier]int {
	counts := make(map[feature.Tier]int, 3)
	for _, p := range r.Parcels {
		counts[p.Tier]++
	}
	return counts
}

type column struct {
	raw  feature.Attribute
	norm feature.Attribute
	// invert marks columns where a lower raw value is more suitable.
	invert bool
}

var scoredColumns = []column{
	{raw: feature.PopulationDensity, norm: feature.PopulationDensityNorm},
	{raw: feature.Slope, norm: feature.SlopeNorm, invert: true},
	{raw: feature.ProximityScore, norm: feature.ProximityScoreNorm},
}

// Run scores every parcel of store. Structural errors abort the run; data
// anomalies are recovered and reported as diagnostics.
func (p *Pipeline) Run(ctx context.Context, store *feature.Store) (*Result, error) {
	if store == nil {
		return nil, eris.New("suitability: nil store")
	}
	if err := checkSchema(store.Columns()); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "suitability"))
	started := p.clock.Now()
	diags := &diagnostics{log: log, metrics: p.metrics}

	if store.UsedFallback() {
		diags.add(&Diagnostic{
			Kind:    DegenerateInput,
			Message: fmt.Sprintf("no parcels inside region %q, scored the fallback parcel set", store.Region().Name),
		})
	}

	parcels, err := ScoreProximity(store.Parcels(), store.Anchors(), p.radius, p.geometry)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "suitability: after proximity")
	}

	normalized, err := p.normalize(ctx, parcels, diags)
	if err != nil {
		return nil, err
	}

	rows := make([]Components, len(parcels))
	for i := range parcels {
		rows[i] = Components{
			PopulationDensity: normalized[0][i],
			Slope:             normalized[1][i],
			Proximity:         normalized[2][i],
		}
	}
	composite, d := FillMissing(Aggregate(rows, p.weights), feature.SuitabilityScore)
	diags.add(d)

	tiers := make(map[string]int, 3)
	for i := range parcels {
		if err := parcels[i].Derived.Set(feature.SuitabilityScore, composite[i]); err != nil {
			return nil, eris.Wrapf(err, "suitability: parcel %d", parcels[i].ID)
		}
		parcels[i].Score = composite[i]
		parcels[i].Scored = true
		parcels[i].Tier = Classify(composite[i])
		tiers[parcels[i].Tier.String()]++
	}

	elapsed := p.clock.Since(started)
	p.metrics.RecordRun(len(parcels), tiers, elapsed)
	log.Info("scoring complete",
		zap.Int("parcels", len(parcels)),
		zap.Int("excluded", store.Excluded()),
		zap.Bool("fallback", store.UsedFallback()),
		zap.Int("diagnostics", len(diags.list())),
		zap.Duration("elapsed", elapsed),
	)

	return &Result{
		Region:       store.Region(),
		Anchors:      store.Anchors(),
		Parcels:      parcels,
		Diagnostics:  diags.list(),
		UsedFallback: store.UsedFallback(),
		Excluded:     store.Excluded(),
		Weights:      p.weights,
		Radius:       p.radius,
		StartedAt:    started,
		Elapsed:      elapsed,
	}, nil
}

// normalize scales the scored columns concurrently, writes the *_norm
// attributes and applies the neutral fill. The returned slices are indexed
// like scoredColumns and contain no NaN.
func (p *Pipeline) normalize(ctx context.Context, parcels []feature.Parcel, diags *diagnostics) ([][]float64, error) {
	values := make([][]float64, len(scoredColumns))
	for c, col := range scoredColumns {
		values[c] = make([]float64, len(parcels))
		for i, pc := range parcels {
			if col.raw == feature.ProximityScore {
				values[c][i] = pc.Derived.Value(col.raw)
				continue
			}
			values[c][i] = pc.RawValue(col.raw)
		}
	}

	nonFinite := make([]*Diagnostic, len(scoredColumns))
	for c, col := range scoredColumns {
		values[c], nonFinite[c] = DropNonFinite(values[c], col.raw)
	}

	out := make([][]float64, len(scoredColumns))
	degenerate := make([]*Diagnostic, len(scoredColumns))
	g, gctx := errgroup.WithContext(ctx)
	for c, col := range scoredColumns {
		c, col := c, col
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			norm, d := Normalize(values[c], col.norm)
			if col.invert {
				norm = Invert(norm)
			}
			out[c] = norm
			degenerate[c] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "suitability: normalize")
	}

	// Diagnostics are recorded in column order so runs are reproducible.
	for c, col := range scoredColumns {
		diags.add(nonFinite[c])
		diags.add(degenerate[c])
		for i := range parcels {
			if err := parcels[i].Derived.Set(col.norm, out[c][i]); err != nil {
				return nil, eris.Wrapf(err, "suitability: parcel %d", parcels[i].ID)
			}
		}

		filled, d := FillMissing(out[c], col.norm)
		if d == nil {
			continue
		}
		diags.add(d)
		for i := range parcels {
			if err := parcels[i].Derived.Fill(col.norm, filled[i]); err != nil {
				return nil, eris.Wrapf(err, "suitability: parcel %d", parcels[i].ID)
			}
		}
		out[c] = filled
	}
	return out, nil
}

func checkSchema(cols []feature.Attribute) error {
	declared := make(map[feature.Attribute]bool, len(cols))
	for _, c := range cols {
		declared[c] = true
	}
	for _, spec := range feature.RawSchema {
		if spec.Required && !declared[spec.Name] {
			return eris.Wrapf(ErrSchema, "column %s", spec.Name)
		}
	}
	return nil
}
