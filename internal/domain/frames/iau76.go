package frames

import (
	"math"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Rotation supplies the TEME to GCRS rotation for an instant. Implementations
// must be pure functions of t.
type Rotation interface {
	TEMEToGCRS(t time.Time) orbit.Matrix3
}

// IAU76 is the IAU-76 precession with the four leading IAU-80 nutation
// terms and the equation of the equinoxes (Vallado's teme2eci reduction).
type IAU76 struct{}

// TEMEToGCRS returns M such that r_GCRS = M * r_TEME.
func (IAU76) TEMEToGCRS(t time.Time) orbit.Matrix3 {
	T := JulianCenturies(t)
	T2 := T * T
	T3 := T2 * T

	zeta := (2306.2181*T + 0.30188*T2 + 0.017998*T3) * arcsecToRad
	theta := (2004.3109*T - 0.42665*T2 - 0.041833*T3) * arcsecToRad
	z := (2306.2181*T + 1.09468*T2 + 0.018203*T3) * arcsecToRad
	prec := rot3(zeta).Mul(rot2(-theta)).Mul(rot3(z))

	dpsi, deps, meanEps := nutation(T)
	trueEps := meanEps + deps
	nut := rot1(-meanEps).Mul(rot3(dpsi)).Mul(rot1(trueEps))

	eqeq := dpsi * math.Cos(meanEps)
	return prec.Mul(nut).Mul(rot3(-eqeq))
}

// nutation returns Δψ, Δε and the mean obliquity, all in radians.
func nutation(T float64) (dpsi, deps, meanEps float64) {
	const deg = math.Pi / 180
	omega := (125.04452 - 1934.136261*T) * deg
	l := (280.4665 + 36000.7698*T) * deg
	lp := (218.3165 + 481267.8813*T) * deg

	dpsi = (-17.20*math.Sin(omega) - 1.32*math.Sin(2*l) - 0.23*math.Sin(2*lp) + 0.21*math.Sin(2*omega)) * arcsecToRad
	deps = (9.20*math.Cos(omega) + 0.57*math.Cos(2*l) + 0.10*math.Cos(2*lp) - 0.09*math.Cos(2*omega)) * arcsecToRad
	meanEps = (84381.448 - 46.8150*T - 0.00059*T*T + 0.001813*T*T*T) * arcsecToRad
	return dpsi, deps, meanEps
}

// Rotation matrices in Vallado's passive convention.

func rot1(a float64) orbit.Matrix3 {
	c, s := math.Cos(a), math.Sin(a)
	return orbit.Matrix3{{1, 0, 0}, {0, c, s}, {0, -s, c}}
}

func rot2(a float64) orbit.Matrix3 {
	c, s := math.Cos(a), math.Sin(a)
	return orbit.Matrix3{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
}

func rot3(a float64) orbit.Matrix3 {
	c, s := math.Cos(a), math.Sin(a)
	return orbit.Matrix3{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
}
