package suitability

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// ErrWeightConfiguration is returned for weights that are negative or do not
// sum to 1. Invalid weights are rejected, never renormalised.
var ErrWeightConfiguration = eris.New("suitability: invalid weight configuration")

// weightTolerance absorbs floating-point error in configured weights.
const weightTolerance = 1e-9

// Weights are the fixed coefficients of the composite score.
type Weights struct {
	PopulationDensity float64 `yaml:"population_density" mapstructure:"population_density"`
	Slope             float64 `yaml:"slope" mapstructure:"slope"`
	Proximity         float64 `yaml:"proximity" mapstructure:"proximity"`
}

// DefaultWeights returns population density 0.4, inverted slope 0.3 and
// transit proximity 0.3.
func DefaultWeights() Weights {
	return Weights{PopulationDensity: 0.4, Slope: 0.3, Proximity: 0.3}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.PopulationDensity + w.Slope + w.Proximity
}

// Validate checks that every weight is non-negative and that they sum to 1.
func (w Weights) Validate() error {
	var errs []string
	for name, v := range map[string]float64{
		"population_density": w.PopulationDensity,
		"slope":              w.Slope,
		"proximity":          w.Proximity,
	} {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("weights must sum to 1, got %g", sum))
	}
	if len(errs) > 0 {
		// Map iteration order is random; keep the message stable.
		sort.Strings(errs)
		return eris.Wrap(ErrWeightConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

func (w Weights) vector() *mat.VecDense {
	return mat.NewVecDense(3, []float64{w.PopulationDensity, w.Slope, w.Proximity})
}

// Components are the three normalised, sign-corrected inputs of one parcel.
type Components struct {
	PopulationDensity float64
	Slope             float64
	Proximity         float64
}

// Aggregate returns the weighted linear composite of each row, clamped to
// [0,1]. NaN components yield a NaN composite, left for the fill pass.
func Aggregate(rows []Components, w Weights) []float64 {
	if len(rows) == 0 {
		return nil
	}

	data := make([]float64, 0, len(rows)*3)
	for _, c := range rows {
		data = append(data, c.PopulationDensity, c.Slope, c.Proximity)
	}
	m := mat.NewDense(len(rows), 3, data)

	var composite mat.VecDense
	composite.MulVec(m, w.vector())

	out := make([]float64, len(rows))
	for i := range out {
		out[i] = clamp01(composite.AtVec(i))
	}
	return out
}

// Composite scores a single parcel.
func Composite(c Components, w Weights) float64 {
	return Aggregate([]Components{c}, w)[0]
}
