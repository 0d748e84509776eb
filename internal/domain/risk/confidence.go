package risk

import "strings"

// Source types recognised by the confidence model.
const (
	SourceCommercial = "commercial"
	SourceEphemeris  = "ephemeris"
	SourceTLE        = "tle"
)

// Confidence model bounds.
const (
	minAgeFactor       = 0.2
	minStabilityFactor = 0.3
	stabilityScaleKm   = 5.0
)

// IsHighFidelity reports whether the source type does not decay with age.
func IsHighFidelity(sourceType string) bool {
	switch strings.ToLower(strings.TrimSpace(sourceType)) {
	case SourceCommercial, SourceEphemeris:
		return true
	}
	return false
}

// AgeFactor is 1 for high-fidelity sources and otherwise decays linearly
// with age, floored at 0.2. A non-positive maxAgeHours pins it to 0.2.
func AgeFactor(sourceType string, ageHours, maxAgeHours float64) float64 {
	if IsHighFidelity(sourceType) {
		return 1.0
	}
	if maxAgeHours <= 0 {
		return minAgeFactor
	}
	return Clamp(1-ageHours/maxAgeHours, minAgeFactor, 1)
}

// StabilityFactor penalizes scatter of recent miss distances. Absent history
// leaves confidence unchanged.
func StabilityFactor(stdKm *float64) float64 {
	if stdKm == nil {
		return 1.0
	}
	return Clamp(1-*stdKm/stabilityScaleKm, minStabilityFactor, 1)
}

// Label maps a confidence score to A/B/C/D.
func Label(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "A"
	case confidence >= 0.6:
		return "B"
	case confidence >= 0.4:
		return "C"
	default:
		return "D"
	}
}
