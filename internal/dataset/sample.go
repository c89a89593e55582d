package dataset

import "github.com/BlueGIS760404/UrbanPlanning/internal/feature"

// SampleRadius is the transit buffer radius of the sample, in degrees
// (roughly 500 m).
const SampleRadius = 0.005

// SanFrancisco returns the built-in sample: a simplified San Francisco
// land boundary, four downtown BART stations and four hypothetical parcels
// buffered by SampleRadius.
func SanFrancisco() *Document {
	parcel := func(id int, x, y, density, slope float64) ParcelDoc {
		return ParcelDoc{
			ID: id, X: x, Y: y, Radius: SampleRadius,
			Attributes: map[string]*float64{
				string(feature.PopulationDensity): Float(density),
				string(feature.Slope):             Float(slope),
			},
		}
	}

	return &Document{
		SRID: feature.SRIDWGS84,
		Region: RegionDoc{
			Name: "San Francisco",
			Exterior: [][2]float64{
				{-122.5176, 37.8088},
				{-122.5176, 37.7047},
				{-122.3567, 37.7047},
				{-122.3567, 37.8088},
				{-122.5176, 37.8088},
			},
		},
		Anchors: []AnchorDoc{
			{Name: "Embarcadero", X: -122.3964, Y: 37.7929},
			{Name: "Montgomery", X: -122.4018, Y: 37.7894},
			{Name: "Powell", X: -122.4076, Y: 37.7858},
			{Name: "Civic Center", X: -122.4138, Y: 37.7793},
		},
		Parcels: []ParcelDoc{
			parcel(1, -122.4000, 37.7900, 5000, 5),
			parcel(2, -122.4100, 37.7800, 3000, 15),
			parcel(3, -122.4200, 37.7750, 2000, 25),
			parcel(4, -122.3900, 37.7950, 1000, 10),
		},
	}
}
