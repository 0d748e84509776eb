// Package frames converts state vectors between reference frames. GCRS is the
// canonical inertial frame used for all relative geometry.
package frames

import (
	"strings"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Canonical frame names.
const (
	GCRS = "GCRS"
	TEME = "TEME"
	ITRF = "ITRF"
)

// inertialAliases are treated as identical to GCRS at this precision.
var inertialAliases = map[string]struct{}{
	"GCRS":    {},
	"ECI":     {},
	"GCRF":    {},
	"EME2000": {},
	"J2000":   {},
}

var earthFixed = map[string]struct{}{
	"ITRF": {},
	"ITRS": {},
	"ECEF": {},
}

// Normalize trims, upper-cases and replaces '-' with '_'.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_")
}

// IsSupported reports whether name can be converted.
func IsSupported(name string) bool {
	n := Normalize(name)
	if _, ok := inertialAliases[n]; ok {
		return true
	}
	if _, ok := earthFixed[n]; ok {
		return true
	}
	return n == TEME
}

// Option configures a Converter.
type Option func(*Converter)

// WithRotation replaces the TEME rotation model.
func WithRotation(r Rotation) Option {
	return func(c *Converter) {
		if r != nil {
			c.rotation = r
		}
	}
}

// WithCache memoizes rotation matrices in cache.
func WithCache(cache *RotationCache) Option {
	return func(c *Converter) { c.cache = cache }
}

// Converter converts states between supported frames.
type Converter struct {
	rotation Rotation
	cache    *RotationCache
}

// NewConverter creates a converter using the IAU-76 model by default.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{rotation: IAU76{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert re-expresses state from frame `from` in frame `to` at instant t.
func (c *Converter) Convert(state orbit.State, from, to string, t time.Time) (orbit.State, error) {
	f, tt := Normalize(from), Normalize(to)
	if f == tt && IsSupported(f) {
		return state, nil
	}
	gcrs, err := c.ToGCRS(state, f, t)
	if err != nil {
		return orbit.State{}, err
	}
	return c.FromGCRS(gcrs, tt, t)
}

// ToGCRS re-expresses state in GCRS.
func (c *Converter) ToGCRS(state orbit.State, from string, t time.Time) (orbit.State, error) {
	n := Normalize(from)
	if _, ok := inertialAliases[n]; ok {
		return state, nil
	}
	switch {
	case n == TEME:
		return c.temeToGCRS(state, t), nil
	case isEarthFixed(n):
		return c.temeToGCRS(itrfToTEME(state, t), t), nil
	}
	return orbit.State{}, &UnsupportedFrameError{Name: from}
}

// FromGCRS re-expresses a GCRS state in frame `to`.
func (c *Converter) FromGCRS(state orbit.State, to string, t time.Time) (orbit.State, error) {
	n := Normalize(to)
	if _, ok := inertialAliases[n]; ok {
		return state, nil
	}
	switch {
	case n == TEME:
		return c.gcrsToTEME(state, t), nil
	case isEarthFixed(n):
		return temeToITRF(c.gcrsToTEME(state, t), t), nil
	}
	return orbit.State{}, &UnsupportedFrameError{Name: to}
}

func isEarthFixed(n string) bool {
	_, ok := earthFixed[n]
	return ok
}

func (c *Converter) matrix(t time.Time) orbit.Matrix3 {
	if c.cache != nil {
		return c.cache.Get(t, c.rotation.TEMEToGCRS)
	}
	return c.rotation.TEMEToGCRS(t)
}

func (c *Converter) temeToGCRS(s orbit.State, t time.Time) orbit.State {
	m := c.matrix(t)
	return orbit.NewState(m.Apply(s.Position()), m.Apply(s.Velocity()))
}

func (c *Converter) gcrsToTEME(s orbit.State, t time.Time) orbit.State {
	m := c.matrix(t).Transpose()
	return orbit.NewState(m.Apply(s.Position()), m.Apply(s.Velocity()))
}

// itrfToTEME applies r = R3(-θ) r_itrf and v = R3(-θ)(v_itrf + ω×r_itrf).
func itrfToTEME(s orbit.State, t time.Time) orbit.State {
	r := s.Position()
	omega := orbit.Vec3{0, 0, OmegaEarth}
	v := s.Velocity().Add(omega.Cross(r))
	m := rot3(-GMST(t))
	return orbit.NewState(m.Apply(r), m.Apply(v))
}

// temeToITRF applies r = R3(θ) r_teme and v = R3(θ) v_teme - ω×r.
func temeToITRF(s orbit.State, t time.Time) orbit.State {
	m := rot3(GMST(t))
	r := m.Apply(s.Position())
	omega := orbit.Vec3{0, 0, OmegaEarth}
	v := m.Apply(s.Velocity()).Sub(omega.Cross(r))
	return orbit.NewState(r, v)
}
