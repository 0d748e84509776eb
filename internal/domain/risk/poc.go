package risk

import (
	"errors"
	"math"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// PoC computation methods.
const (
	MethodEncounterPlane = "encounter_plane"
	MethodHeuristic      = "heuristic"
)

const (
	defaultPoCSlices = 180
	minPoCSlices     = 12
	regularization   = 1e-10
	retryRegularize  = 1e-6
	minMeanVariance  = 0.1
)

// ErrDegenerateEncounter is returned when the encounter plane or the
// projected covariance cannot be formed.
var ErrDegenerateEncounter = errors.New("degenerate encounter geometry")

// EncounterPlanePoC integrates the 2D Gaussian of the relative position,
// projected on the plane normal to the relative velocity, over a disk of
// radius hardBodyKm centred on the origin. The disk is split into angular
// slices with a closed-form radial integral in each.
func EncounterPlanePoC(rRel, vRel orbit.Vec3, cov orbit.Matrix3, hardBodyKm float64, slices int) (float64, error) {
	if slices <= 0 {
		slices = defaultPoCSlices
	}
	if slices < minPoCSlices {
		slices = minPoCSlices
	}
	if vRel.Norm() <= 1e-9 || hardBodyKm <= 0 {
		return 0, ErrDegenerateEncounter
	}

	u := vRel.Unit(orbit.Vec3{})
	ref := orbit.Vec3{0, 0, 1}
	if math.Abs(u[2]) >= 0.9 {
		ref = orbit.Vec3{1, 0, 0}
	}
	e1 := u.Cross(ref).Unit(orbit.Vec3{})
	e2 := u.Cross(e1)

	mx, my := rRel.Dot(e1), rRel.Dot(e2)

	ce1 := cov.Apply(e1)
	ce2 := cov.Apply(e2)
	s11 := e1.Dot(ce1)
	s22 := e2.Dot(ce2)
	s12 := 0.5 * (e1.Dot(ce2) + e2.Dot(ce1))

	det := (s11+regularization)*(s22+regularization) - s12*s12
	eps := regularization
	if det <= 0 {
		eps = retryRegularize
		det = (s11+eps)*(s22+eps) - s12*s12
		if det <= 0 {
			return 0, ErrDegenerateEncounter
		}
	}
	s11 += eps
	s22 += eps

	// Inverse of the 2x2 covariance.
	i11, i22, i12 := s22/det, s11/det, -s12/det
	c := mx*mx*i11 + 2*mx*my*i12 + my*my*i22

	dTheta := 2 * math.Pi / float64(slices)
	sum := 0.0
	for k := 0; k < slices; k++ {
		theta := (float64(k) + 0.5) * dTheta
		dx, dy := math.Cos(theta), math.Sin(theta)
		a := dx*dx*i11 + 2*dx*dy*i12 + dy*dy*i22
		if a <= 0 {
			continue
		}
		b := dx*mx*i11 + (dx*my+dy*mx)*i12 + dy*my*i22
		contrib := radialIntegral(a, b, c, hardBodyKm)
		if math.IsNaN(contrib) || math.IsInf(contrib, 0) {
			continue
		}
		sum += contrib * dTheta
	}

	return Clamp01(sum / (2 * math.Pi * math.Sqrt(det))), nil
}

// radialIntegral evaluates ∫₀ᴿ ρ·exp(-(aρ² - 2bρ + c)/2) dρ in closed form.
func radialIntegral(a, b, c, radius float64) float64 {
	mu := b / a
	k := math.Exp(-(c - b*b/a) / 2)
	sa := math.Sqrt(a / 2)

	gauss := (math.Exp(-c/2) - k*math.Exp(-a*(radius-mu)*(radius-mu)/2)) / a
	lin := mu * math.Sqrt(math.Pi/(2*a)) * k * (math.Erf((radius-mu)*sa) + math.Erf(mu*sa))
	return gauss + lin
}

// HeuristicPoC is exp(-(miss/σ)²) with σ taken from the mean position
// variance, floored at 0.1 km². Without a covariance σ is 1 km.
func HeuristicPoC(missKm float64, cov *orbit.Matrix3) float64 {
	sigma := 1.0
	if cov != nil {
		sigma = math.Sqrt(math.Max(minMeanVariance, cov.Trace()/3))
	}
	r := missKm / sigma
	return Clamp01(math.Exp(-r * r))
}
