package risk

import "math"

// Clamp bounds x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Clamp01 bounds x to [0, 1].
func Clamp01(x float64) float64 { return Clamp(x, 0, 1) }

// Stddev returns the sample standard deviation (n-1 denominator), or nil
// when fewer than two values are given.
func Stddev(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(values)-1))
	return &sd
}
