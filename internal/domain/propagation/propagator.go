// Package propagation maps a trajectory source to a state at an arbitrary
// time. Two implementations are provided: a two-body Kepler propagator and an
// SGP4 wrapper around github.com/joshuaferrara/go-satellite.
package propagation

import (
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Propagator returns the state at time t in the frame of its source.
// A failure must wrap ErrPropagationFailed so callers can treat it as
// "no result for this probe time".
type Propagator interface {
	Propagate(t time.Time) (orbit.State, error)
}

// Func adapts a plain function to the Propagator interface.
type Func func(t time.Time) (orbit.State, error)

// Propagate calls f(t).
func (f Func) Propagate(t time.Time) (orbit.State, error) { return f(t) }

// Kind names the propagator backing an estimate.
type Kind string

const (
	KindTwoBody Kind = "two_body"
	KindSGP4    Kind = "sgp4"
)

// Estimate is a trajectory estimate for one object, built fresh per
// screening pass. It is not mutated after construction.
type Estimate struct {
	OrbitStateID string
	TleRecordID  string
	Epoch        time.Time
	Frame        string
	SourceName   string
	SourceType   string
	Confidence   float64
	ValidFrom    *time.Time
	ValidTo      *time.Time

	// Covariance is the 6x6 state covariance at Epoch, when one was supplied.
	Covariance *[6][6]float64
	Kind       Kind
	Propagator Propagator
}

// Propagate delegates to the underlying propagator.
func (e *Estimate) Propagate(t time.Time) (orbit.State, error) {
	return e.Propagator.Propagate(t)
}

// FrameName returns the frame the propagator emits.
func (e *Estimate) FrameName() string { return e.Frame }

// AgeHours returns how old the estimate's epoch is at now.
func (e *Estimate) AgeHours(now time.Time) float64 {
	return now.Sub(e.Epoch).Hours()
}

// Seed is the catalog data an estimate is built from.
type Seed struct {
	OrbitStateID string
	Epoch        time.Time
	Frame        string
	State        orbit.State
	Covariance   *[6][6]float64
	SourceName   string
	SourceType   string
	Confidence   float64
	ValidFrom    *time.Time
	ValidTo      *time.Time

	// Optional linked TLE. When present and SGP4 initializes, the estimate
	// uses SGP4 and reports frame TEME.
	TleRecordID string
	TleLine1    string
	TleLine2    string
}

// Build creates an Estimate from a seed. A TLE that fails to initialize
// degrades to two-body propagation of the seed's own state vector.
func Build(seed Seed) (*Estimate, error) {
	est := &Estimate{
		OrbitStateID: seed.OrbitStateID,
		TleRecordID:  seed.TleRecordID,
		Epoch:        seed.Epoch,
		Frame:        seed.Frame,
		SourceName:   seed.SourceName,
		SourceType:   seed.SourceType,
		Confidence:   seed.Confidence,
		ValidFrom:    seed.ValidFrom,
		ValidTo:      seed.ValidTo,
		Covariance:   seed.Covariance,
	}

	if seed.TleLine1 != "" && seed.TleLine2 != "" {
		if sgp, err := NewSGP4(seed.TleLine1, seed.TleLine2); err == nil {
			est.Kind = KindSGP4
			est.Frame = FrameTEME
			est.Propagator = sgp
			return est, nil
		}
	}

	if !seed.State.IsFinite() {
		return nil, ErrInvalidState
	}
	est.Kind = KindTwoBody
	est.Propagator = NewTwoBody(seed.State, seed.Epoch)
	return est, nil
}
