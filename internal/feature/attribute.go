// Package feature holds the input collections of a suitability run: the
// boundary region, transit anchor points and candidate parcels.
package feature

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Attribute names a raw or derived parcel attribute.
type Attribute string

// Raw attributes populated at ingestion.
const (
	PopulationDensity Attribute = "pop_density"
	Slope             Attribute = "slope"
)

// Derived attributes written by pipeline stages.
const (
	ProximityScore        Attribute = "proximity_score"
	PopulationDensityNorm Attribute = "pop_density_norm"
	SlopeNorm             Attribute = "slope_norm"
	ProximityScoreNorm    Attribute = "proximity_score_norm"
	SuitabilityScore      Attribute = "suitability_score"
)

// AttributeSpec describes one column of the fixed raw attribute schema.
type AttributeSpec struct {
	Name     Attribute
	Required bool
	Unit     string
}

// RawSchema lists the raw attributes the scoring stages read.
var RawSchema = []AttributeSpec{
	{Name: PopulationDensity, Required: true, Unit: "people/km²"},
	{Name: Slope, Required: true, Unit: "degrees"},
}

// ErrAttributeExists is returned when a stage tries to overwrite a derived
// attribute written by an earlier stage.
var ErrAttributeExists = eris.New("feature: derived attribute already set")

// ErrAttributeNotFillable is returned when the neutral fill pass targets a
// column it does not own.
var ErrAttributeNotFillable = eris.New("feature: attribute is not fillable")

// fillable are the stage-owned columns the neutral fill pass may replace.
var fillable = map[Attribute]bool{
	PopulationDensityNorm: true,
	SlopeNorm:             true,
	ProximityScoreNorm:    true,
	SuitabilityScore:      true,
}

// Fillable reports whether the neutral fill pass may replace name.
func Fillable(name Attribute) bool {
	return fillable[name]
}

// Derived is the append-only set of attributes accumulated by pipeline stages.
type Derived struct {
	values map[Attribute]float64
}

// Get returns the value of name and whether it has been written.
func (d Derived) Get(name Attribute) (float64, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Value returns the value of name, or NaN when it has not been written.
func (d Derived) Value(name Attribute) float64 {
	if v, ok := d.values[name]; ok {
		return v
	}
	return math.NaN()
}

// Set adds name. It fails if name was already written.
func (d *Derived) Set(name Attribute, v float64) error {
	if _, ok := d.values[name]; ok {
		return eris.Wrapf(ErrAttributeExists, "attribute %s", name)
	}
	if d.values == nil {
		d.values = make(map[Attribute]float64)
	}
	d.values[name] = v
	return nil
}

// Fill replaces a stage-owned column. Only attributes reported by Fillable
// may be replaced.
func (d *Derived) Fill(name Attribute, v float64) error {
	if !Fillable(name) {
		return eris.Wrapf(ErrAttributeNotFillable, "attribute %s", name)
	}
	if d.values == nil {
		d.values = make(map[Attribute]float64)
	}
	d.values[name] = v
	return nil
}

// Keys returns the written attribute names in sorted order.
func (d Derived) Keys() []Attribute {
	keys := make([]Attribute, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns an independent copy.
func (d Derived) Clone() Derived {
	if d.values == nil {
		return Derived{}
	}
	out := make(map[Attribute]float64, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return Derived{values: out}
}
