package suitability

import "github.com/BlueGIS760404/UrbanPlanning/internal/feature"

// Tier thresholds. Boundaries belong to the higher tier.
const (
	LowThreshold  = 0.3
	HighThreshold = 0.7
)

// Classify maps a composite score to its tier.
func Classify(score float64) feature.Tier {
	switch {
	case score < LowThreshold:
		return feature.TierLow
	case score < HighThreshold:
		return feature.TierMedium
	default:
		return feature.TierHigh
	}
}

// Channel is the presentation hint attached to a tier.
type Channel string

// Channels.
const (
	ChannelWarning Channel = "warning"
	ChannelCaution Channel = "caution"
	ChannelGo      Channel = "go"
)

// ChannelFor returns the presentation channel of a tier. Unclassified
// parcels are reported as warnings.
func ChannelFor(t feature.Tier) Channel {
	switch t {
	case feature.TierHigh:
		return ChannelGo
	case feature.TierMedium:
		return ChannelCaution
	default:
		return ChannelWarning
	}
}
