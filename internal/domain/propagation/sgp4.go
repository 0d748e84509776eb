package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Plausible SGP4 radius bounds in km.
const (
	minPlausibleRadiusKm = 6200.0
	maxPlausibleRadiusKm = 50000.0
	tleLineLength        = 69
)

// SGP4 wraps go-satellite for one TLE. Output is TEME, km and km/s.
//
// go-satellite only accepts whole seconds, so sub-second requests are
// answered with a cubic Hermite interpolation between the two bracketing
// whole-second samples using both position and velocity.
type SGP4 struct {
	sat satellite.Satellite
}

// NewSGP4 validates the TLE lines and initializes the model.
func NewSGP4(line1, line2 string) (*SGP4, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := ValidateTLELines(line1, line2); err != nil {
		return nil, err
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init code=%d %s", ErrInvalidTLE, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat}, nil
}

// ValidateTLELines rejects malformed lines before they reach go-satellite,
// which calls log.Fatal on parse errors.
func ValidateTLELines(line1, line2 string) error {
	if len(line1) != tleLineLength {
		return fmt.Errorf("%w: line1 length %d, expected %d", ErrInvalidTLE, len(line1), tleLineLength)
	}
	if len(line2) != tleLineLength {
		return fmt.Errorf("%w: line2 length %d, expected %d", ErrInvalidTLE, len(line2), tleLineLength)
	}
	if line1[0] != '1' {
		return fmt.Errorf("%w: line1 must start with '1', got '%c'", ErrInvalidTLE, line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("%w: line2 must start with '2', got '%c'", ErrInvalidTLE, line2[0])
	}
	return nil
}

// Propagate returns the TEME state at t.
func (p *SGP4) Propagate(t time.Time) (orbit.State, error) {
	t = t.UTC()
	base := t.Truncate(time.Second)
	s0, err := p.sample(base)
	if err != nil {
		return orbit.State{}, err
	}
	frac := t.Sub(base).Seconds()
	if frac == 0 {
		return s0, nil
	}
	s1, err := p.sample(base.Add(time.Second))
	if err != nil {
		return orbit.State{}, err
	}
	return hermite(s0, s1, frac, 1.0), nil
}

func (p *SGP4) sample(t time.Time) (orbit.State, error) {
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	st := orbit.State{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z}
	if !st.IsFinite() {
		return orbit.State{}, fmt.Errorf("%w: sgp4 output is NaN/Inf at %s", ErrPropagationFailed, t.Format(time.RFC3339))
	}
	mag := st.Position().Norm()
	if !plausibleRadius(mag) {
		return orbit.State{}, fmt.Errorf("%w: sgp4 position magnitude %.1f km", ErrPropagationFailed, mag)
	}
	return st, nil
}

// hermite interpolates between s0 at 0 and s1 at h seconds, evaluated at
// tau seconds after s0.
func hermite(s0, s1 orbit.State, tau, h float64) orbit.State {
	u := tau / h
	u2 := u * u
	u3 := u2 * u

	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2

	d00 := 6*u2 - 6*u
	d10 := 3*u2 - 4*u + 1
	d01 := -6*u2 + 6*u
	d11 := 3*u2 - 2*u

	p0, v0 := s0.Position(), s0.Velocity()
	p1, v1 := s1.Position(), s1.Velocity()

	r := p0.Scale(h00).Add(v0.Scale(h10 * h)).Add(p1.Scale(h01)).Add(v1.Scale(h11 * h))
	v := p0.Scale(d00 / h).Add(v0.Scale(d10)).Add(p1.Scale(d01 / h)).Add(v1.Scale(d11))
	return orbit.NewState(r, v)
}

// plausibleRadius reports whether r is a believable geocentric radius for an
// Earth-orbiting object.
func plausibleRadius(r float64) bool {
	return !math.IsNaN(r) && r >= minPlausibleRadiusKm && r <= maxPlausibleRadiusKm
}
