// Package conjunction finds the time of closest approach between two
// independently propagated objects.
package conjunction

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/conjunct/internal/domain/frames"
	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/propagation"
)

const (
	zeroSpeedSq      = 1e-12
	refineToleranceS = 0.1
)

// Target is anything that yields a state in a named frame.
type Target interface {
	Propagate(t time.Time) (orbit.State, error)
	FrameName() string
}

// FrameConverter re-expresses a state in GCRS.
type FrameConverter interface {
	ToGCRS(state orbit.State, from string, t time.Time) (orbit.State, error)
}

// Params tunes the search.
type Params struct {
	ScreeningVolumeKm        float64
	AnchorStep               time.Duration
	RefineCandidates         int
	RefineMaxIters           int
	RefineMaxStep            time.Duration
	PredictedMissPrefilterKm float64
}

// DefaultParams returns the standard search settings.
func DefaultParams() Params {
	return Params{
		ScreeningVolumeKm:        10,
		AnchorStep:               12 * time.Hour,
		RefineCandidates:         2,
		RefineMaxIters:           10,
		RefineMaxStep:            1800 * time.Second,
		PredictedMissPrefilterKm: 200,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.ScreeningVolumeKm <= 0 {
		p.ScreeningVolumeKm = d.ScreeningVolumeKm
	}
	if p.AnchorStep <= 0 {
		p.AnchorStep = d.AnchorStep
	}
	if p.RefineCandidates < 1 {
		p.RefineCandidates = 1
	}
	if p.RefineMaxIters < 0 {
		p.RefineMaxIters = 0
	}
	if p.RefineMaxStep <= 0 {
		p.RefineMaxStep = d.RefineMaxStep
	}
	if p.PredictedMissPrefilterKm <= 0 {
		p.PredictedMissPrefilterKm = d.PredictedMissPrefilterKm
	}
	return p
}

// Encounter is the geometry at the time of closest approach, in GCRS.
// MissDistanceKm is |RRel| and RelativeVelocityKmS is |VRel| exactly.
type Encounter struct {
	TCA                 time.Time
	MissDistanceKm      float64
	RelativeVelocityKmS float64
	RRel                orbit.Vec3
	VRel                orbit.Vec3
}

// NewEncounter derives the norms from the relative vectors.
func NewEncounter(tca time.Time, rRel, vRel orbit.Vec3) Encounter {
	return Encounter{
		TCA:                 tca,
		MissDistanceKm:      rRel.Norm(),
		RelativeVelocityKmS: vRel.Norm(),
		RRel:                rRel,
		VRel:                vRel,
	}
}

// Solver runs the anchor-and-refine close-approach search.
type Solver struct {
	frames FrameConverter
}

// NewSolver creates a solver that normalizes states through conv.
func NewSolver(conv FrameConverter) *Solver {
	if conv == nil {
		conv = frames.NewConverter()
	}
	return &Solver{frames: conv}
}

type guess struct {
	at        time.Time
	predicted float64
}

// FindCloseApproach searches [start, end] for the closest approach of
// secondary to primary. It returns false when nothing falls inside the
// screening volume. Propagation failures at a probe time are skipped; frame
// errors are returned.
func (s *Solver) FindCloseApproach(primary, secondary Target, start, end time.Time, params Params) (Encounter, bool, error) {
	params = params.withDefaults()
	if end.Before(start) {
		return Encounter{}, false, nil
	}

	halfStep := params.AnchorStep.Seconds() / 2
	var guesses []guess
	for a := start; !a.After(end); a = a.Add(params.AnchorStep) {
		r, v, err := s.relativeState(primary, secondary, a)
		if err != nil {
			if errors.Is(err, propagation.ErrPropagationFailed) {
				continue
			}
			return Encounter{}, false, err
		}
		dt := 0.0
		if v2 := v.Dot(v); v2 > zeroSpeedSq {
			dt = clampFloat(-r.Dot(v)/v2, -halfStep, halfStep)
		}
		guesses = append(guesses, guess{
			at:        clampTime(a.Add(seconds(dt)), start, end),
			predicted: r.Add(v.Scale(dt)).Norm(),
		})
	}
	if len(guesses) == 0 {
		return Encounter{}, false, nil
	}

	sort.SliceStable(guesses, func(i, j int) bool { return guesses[i].predicted < guesses[j].predicted })
	if guesses[0].predicted > params.PredictedMissPrefilterKm {
		return Encounter{}, false, nil
	}
	if len(guesses) > params.RefineCandidates {
		guesses = guesses[:params.RefineCandidates]
	}

	var best Encounter
	found := false
	for _, g := range guesses {
		enc, ok, err := s.refine(primary, secondary, g.at, start, end, params)
		if err != nil {
			return Encounter{}, false, err
		}
		if !ok {
			continue
		}
		if !found || enc.MissDistanceKm < best.MissDistanceKm {
			best = enc
			found = true
		}
	}
	if !found || best.MissDistanceKm > params.ScreeningVolumeKm {
		return Encounter{}, false, nil
	}
	return best, true, nil
}

// refine Newton-iterates on d/dt(r·r) = 0 using the linearized relative
// motion, pinned to the window.
func (s *Solver) refine(primary, secondary Target, t, start, end time.Time, params Params) (Encounter, bool, error) {
	r, v, err := s.relativeState(primary, secondary, t)
	if err != nil {
		if errors.Is(err, propagation.ErrPropagationFailed) {
			return Encounter{}, false, nil
		}
		return Encounter{}, false, err
	}

	maxStep := params.RefineMaxStep.Seconds()
	for i := 0; i < params.RefineMaxIters; i++ {
		v2 := v.Dot(v)
		if v2 <= zeroSpeedSq {
			break
		}
		dt := clampFloat(-r.Dot(v)/v2, -maxStep, maxStep)
		if math.Abs(dt) < refineToleranceS {
			break
		}
		next := clampTime(t.Add(seconds(dt)), start, end)
		if next.Equal(t) {
			break
		}
		nr, nv, err := s.relativeState(primary, secondary, next)
		if err != nil {
			if errors.Is(err, propagation.ErrPropagationFailed) {
				break
			}
			return Encounter{}, false, err
		}
		t, r, v = next, nr, nv
	}
	return NewEncounter(t, r, v), true, nil
}

// relativeState returns secondary minus primary in GCRS at t.
func (s *Solver) relativeState(primary, secondary Target, t time.Time) (orbit.Vec3, orbit.Vec3, error) {
	p, err := s.stateGCRS(primary, t)
	if err != nil {
		return orbit.Vec3{}, orbit.Vec3{}, err
	}
	q, err := s.stateGCRS(secondary, t)
	if err != nil {
		return orbit.Vec3{}, orbit.Vec3{}, err
	}
	return q.Position().Sub(p.Position()), q.Velocity().Sub(p.Velocity()), nil
}

func (s *Solver) stateGCRS(target Target, t time.Time) (orbit.State, error) {
	st, err := target.Propagate(t)
	if err != nil {
		if errors.Is(err, propagation.ErrPropagationFailed) {
			return orbit.State{}, err
		}
		return orbit.State{}, fmt.Errorf("%w: %w", propagation.ErrPropagationFailed, err)
	}
	return s.frames.ToGCRS(st, target.FrameName(), t)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clampFloat(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func clampTime(t, lo, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}
