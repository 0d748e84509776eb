// Package orbit holds the vector and state primitives shared by the
// propagation, frame and screening code. Units are km and km/s throughout.
package orbit

import "math"

// Physical constants.
const (
	// MuEarth is Earth's gravitational parameter in km^3/s^2.
	MuEarth = 398600.4418
	// EarthRadiusKm is the mean Earth radius used for altitude estimates.
	EarthRadiusKm = 6371.0
)

// Vec3 is a Cartesian 3-vector.
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

// Scale returns k*v.
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v[0] * k, v[1] * k, v[2] * k} }

// Dot returns the scalar product.
func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

// Cross returns v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Unit returns v normalized, or fallback when v has (near) zero length.
func (v Vec3) Unit(fallback Vec3) Vec3 {
	n := v.Norm()
	if n <= 1e-12 {
		return fallback
	}
	return v.Scale(1 / n)
}

// IsFinite reports whether all components are finite.
func (v Vec3) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// State is a position/velocity 6-vector (x, y, z, vx, vy, vz).
type State [6]float64

// NewState packs a position and velocity.
func NewState(r, v Vec3) State {
	return State{r[0], r[1], r[2], v[0], v[1], v[2]}
}

// Position returns the first three components.
func (s State) Position() Vec3 { return Vec3{s[0], s[1], s[2]} }

// Velocity returns the last three components.
func (s State) Velocity() Vec3 { return Vec3{s[3], s[4], s[5]} }

// IsFinite reports whether every component is finite.
func (s State) IsFinite() bool {
	return s.Position().IsFinite() && s.Velocity().IsFinite()
}

// AltitudeKm estimates altitude above a spherical Earth, floored at zero.
func AltitudeKm(s State) float64 {
	return math.Max(0, s.Position().Norm()-EarthRadiusKm)
}
