package risk

import (
	"math"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Covariance6 is a 6x6 position/velocity covariance (km², km²/s, km²/s²).
type Covariance6 = [6][6]float64

const (
	highFidelityVariance = 0.1
	defaultVariance      = 1.0
	growthPerHour        = 0.05
	symmetryTolerance    = 1e-9
)

// DefaultCovariance returns a diagonal covariance sized by source quality.
func DefaultCovariance(sourceType string) Covariance6 {
	v := defaultVariance
	if IsHighFidelity(sourceType) {
		v = highFidelityVariance
	}
	var c Covariance6
	for i := 0; i < 6; i++ {
		c[i][i] = v
	}
	return c
}

// ValidCovariance reports whether c is finite and symmetric with a
// non-negative diagonal.
func ValidCovariance(c Covariance6) bool {
	for i := 0; i < 6; i++ {
		if c[i][i] < 0 {
			return false
		}
		for j := 0; j < 6; j++ {
			v := c[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
			if j > i && math.Abs(v-c[j][i]) > symmetryTolerance*math.Max(1, math.Abs(v)) {
				return false
			}
		}
	}
	return true
}

// GrowCovariance inflates the diagonal linearly with elapsed hours.
// Negative durations leave the covariance unchanged.
func GrowCovariance(c Covariance6, hours float64) Covariance6 {
	g := math.Max(0, hours) * growthPerHour
	for i := 0; i < 6; i++ {
		c[i][i] += g
	}
	return c
}

// PositionBlock extracts the upper-left 3x3 position covariance.
func PositionBlock(c Covariance6) orbit.Matrix3 {
	var m orbit.Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = c[i][j]
		}
	}
	return m
}

// CombinedPositionCovariance sums the two objects' position blocks, which is
// the covariance of the relative position for independent errors.
func CombinedPositionCovariance(primary, secondary Covariance6) orbit.Matrix3 {
	return PositionBlock(primary).Add(PositionBlock(secondary))
}
