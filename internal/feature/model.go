package feature

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Tier is the qualitative suitability class of a parcel.
type Tier int

// Tiers, ordered from least to most suitable. TierUnknown marks a parcel
// that has not been classified yet.
const (
	TierUnknown Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "Low"
	case TierMedium:
		return "Medium"
	case TierHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Region is the study-area boundary.
type Region struct {
	Name     string
	Geometry geom.T
}

// AnchorPoint is a point feature such as a transit stop.
type AnchorPoint struct {
	Name  string
	Point *geom.Point
}

// Parcel is a candidate development site.
type Parcel struct {
	ID       int
	Geometry geom.T
	// Raw holds ingested attributes; a missing value is NaN.
	Raw     map[Attribute]float64
	Derived Derived
	// Score is the composite suitability score, valid when Scored is set.
	Score  float64
	Scored bool
	Tier   Tier
}

// NewParcel returns a parcel with a private copy of raw.
func NewParcel(id int, g geom.T, raw map[Attribute]float64) Parcel {
	p := Parcel{ID: id, Geometry: g, Raw: make(map[Attribute]float64, len(raw))}
	for k, v := range raw {
		p.Raw[k] = v
	}
	return p
}

// RawValue returns the raw attribute, or NaN when it is absent.
func (p Parcel) RawValue(name Attribute) float64 {
	if v, ok := p.Raw[name]; ok {
		return v
	}
	return math.NaN()
}

// Clone returns a copy whose attribute maps can be modified independently.
// Geometries are shared; they are never modified after ingestion.
func (p Parcel) Clone() Parcel {
	out := p
	out.Raw = make(map[Attribute]float64, len(p.Raw))
	for k, v := range p.Raw {
		out.Raw[k] = v
	}
	out.Derived = p.Derived.Clone()
	return out
}

// CloneParcels deep-copies a parcel slice.
func CloneParcels(in []Parcel) []Parcel {
	out := make([]Parcel, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
