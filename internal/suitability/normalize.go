package suitability

import (
	"fmt"
	"math"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
)

// NeutralScore replaces undefined scores and constant columns.
const NeutralScore = 0.5

// Normalize min-max scales values onto [0,1], index-aligned with the input.
// NaN and ±Inf inputs are ignored by the min/max reduction and are NaN in the
// output; they are filled once later by FillMissing. A column without
// variation normalises to NeutralScore everywhere and yields a
// DegenerateInput diagnostic.
func Normalize(values []float64, name feature.Attribute) ([]float64, *Diagnostic) {
	values, _ = DropNonFinite(values, name)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]float64, len(values))
	if lo > hi {
		// Nothing to scale; every element is missing.
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}

	if hi == lo {
		for i, v := range values {
			if math.IsNaN(v) {
				out[i] = math.NaN()
				continue
			}
			out[i] = NeutralScore
		}
		return out, &Diagnostic{
			Kind:    DegenerateInput,
			Column:  name,
			Message: fmt.Sprintf("column %s has no variation (all values are %g), using constant score %g", name, hi, NeutralScore),
		}
	}

	span := hi - lo
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = clamp01((v - lo) / span)
	}
	return out, nil
}

// DropNonFinite replaces ±Inf with NaN so the value is treated as missing,
// and reports how many were replaced.
func DropNonFinite(values []float64, name feature.Attribute) ([]float64, *Diagnostic) {
	var dropped int
	for _, v := range values {
		if math.IsInf(v, 0) {
			dropped++
		}
	}
	if dropped == 0 {
		return values, nil
	}

	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		out[i] = v
	}
	return out, &Diagnostic{
		Kind:    NonFiniteValue,
		Column:  name,
		Message: fmt.Sprintf("%d infinite value(s) in %s, treating as missing", dropped, name),
	}
}

// Invert maps each value v to 1-v, keeping NaN. Used for attributes where a
// lower raw value is more suitable.
func Invert(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = 1 - v
	}
	return out
}

// FillMissing is the single neutral fill pass for a column: NaN entries
// become NeutralScore and one MissingValue diagnostic is returned when any
// entry was replaced.
func FillMissing(values []float64, name feature.Attribute) ([]float64, *Diagnostic) {
	out := make([]float64, len(values))
	var filled int
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = NeutralScore
			filled++
			continue
		}
		out[i] = v
	}
	if filled == 0 {
		return out, nil
	}
	return out, &Diagnostic{
		Kind:    MissingValue,
		Column:  name,
		Message: fmt.Sprintf("%d NaN value(s) detected in %s, replacing with %g", filled, name, NeutralScore),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
