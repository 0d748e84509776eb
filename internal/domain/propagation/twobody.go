package propagation

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Kepler solver limits.
const (
	keplerMaxIter   = 50
	keplerTolerance = 1e-8
	stumpffSeriesZ  = 1e-6
)

// TwoBody propagates a single state vector under point-mass gravity.
type TwoBody struct {
	state orbit.State
	epoch time.Time
}

// NewTwoBody creates a two-body propagator anchored at epoch.
func NewTwoBody(state orbit.State, epoch time.Time) *TwoBody {
	return &TwoBody{state: state, epoch: epoch}
}

// Propagate returns the state at t.
func (p *TwoBody) Propagate(t time.Time) (orbit.State, error) {
	dt := t.Sub(p.epoch).Seconds()
	out := PropagateTwoBody(p.state, dt)
	if !out.IsFinite() {
		return orbit.State{}, fmt.Errorf("%w: two-body produced non-finite state at %s", ErrPropagationFailed, t.UTC().Format(time.RFC3339))
	}
	return out, nil
}

// PropagateTwoBody advances state by dtSeconds with the universal-variable
// formulation. A zero position vector is returned unchanged. If Newton does
// not converge within the iteration cap the last iterate is used.
func PropagateTwoBody(state orbit.State, dtSeconds float64) orbit.State {
	r0v := state.Position()
	v0v := state.Velocity()
	r0 := r0v.Norm()
	if r0 == 0 {
		return state
	}
	if dtSeconds == 0 {
		return state
	}

	mu := orbit.MuEarth
	sqrtMu := math.Sqrt(mu)
	v0 := v0v.Norm()
	vr0 := r0v.Dot(v0v) / r0
	alpha := 2/r0 - v0*v0/mu

	chi := sqrtMu * math.Abs(alpha) * dtSeconds
	for i := 0; i < keplerMaxIter; i++ {
		z := alpha * chi * chi
		c, s := stumpff(z)
		f := r0*vr0/sqrtMu*chi*chi*c + (1-alpha*r0)*chi*chi*chi*s + r0*chi - sqrtMu*dtSeconds
		df := r0*vr0/sqrtMu*chi*(1-alpha*chi*chi*s) + (1-alpha*r0)*chi*chi*c + r0
		if df == 0 {
			break
		}
		step := f / df
		chi -= step
		if math.Abs(step) < keplerTolerance {
			break
		}
	}

	z := alpha * chi * chi
	c, s := stumpff(z)
	chi2 := chi * chi
	chi3 := chi2 * chi

	lf := 1 - chi2/r0*c
	lg := dtSeconds - chi3/sqrtMu*s
	r := r0v.Scale(lf).Add(v0v.Scale(lg))
	rn := r.Norm()
	if rn == 0 {
		return orbit.NewState(r, v0v)
	}

	fdot := sqrtMu / (rn * r0) * (alpha*chi3*s - chi)
	gdot := 1 - chi2/rn*c
	v := r0v.Scale(fdot).Add(v0v.Scale(gdot))
	return orbit.NewState(r, v)
}

// stumpff returns the Stumpff functions C(z) and S(z).
func stumpff(z float64) (c, s float64) {
	switch {
	case math.Abs(z) < stumpffSeriesZ:
		c = 0.5 - z/24 + z*z/720
		s = 1.0/6 - z/120 + z*z/5040
	case z > 0:
		sz := math.Sqrt(z)
		c = (1 - math.Cos(sz)) / z
		s = (sz - math.Sin(sz)) / (sz * sz * sz)
	default:
		sz := math.Sqrt(-z)
		c = (math.Cosh(sz) - 1) / -z
		s = (math.Sinh(sz) - sz) / (sz * sz * sz)
	}
	return c, s
}
