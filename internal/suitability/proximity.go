package suitability

import (
	"github.com/rotisserie/eris"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/spatial"
)

// Proximity values. A parcel away from every anchor keeps partial credit.
const (
	NearScore = 1.0
	FarScore  = 0.5
)

// ScoreProximity returns a copy of parcels with proximity_score set on
// every parcel: NearScore when the parcel intersects the radius-buffer of at
// least one anchor, FarScore otherwise.
func ScoreProximity(parcels []feature.Parcel, anchors []feature.AnchorPoint, radius float64, gm spatial.Geometry) ([]feature.Parcel, error) {
	if radius < 0 {
		return nil, eris.Errorf("suitability: proximity radius must be >= 0 (got %g)", radius)
	}

	out := feature.CloneParcels(parcels)
	for i := range out {
		score := FarScore
		for _, a := range anchors {
			near, err := spatial.WithinDistance(gm, out[i].Geometry, a.Point.Coords(), radius)
			if err != nil {
				return nil, eris.Wrapf(err, "suitability: proximity of parcel %d to %q", out[i].ID, a.Name)
			}
			if near {
				score = NearScore
				break
			}
		}
		if err := out[i].Derived.Set(feature.ProximityScore, score); err != nil {
			return nil, eris.Wrapf(err, "suitability: parcel %d", out[i].ID)
		}
	}
	return out, nil
}
