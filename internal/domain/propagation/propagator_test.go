package propagation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// ISS elements with an April 2024 epoch.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func circularState(radius float64) orbit.State {
	v := math.Sqrt(orbit.MuEarth / radius)
	return orbit.State{radius, 0, 0, 0, v, 0}
}

func TestPropagateTwoBodyCircularPeriod(t *testing.T) {
	const radius = 7000.0
	s0 := circularState(radius)
	period := 2 * math.Pi * math.Sqrt(radius*radius*radius/orbit.MuEarth)

	got := PropagateTwoBody(s0, period)
	for i := range got {
		if math.Abs(got[i]-s0[i]) > 1e-6 {
			t.Fatalf("after one period component %d = %.12f, want %.12f (state %v)", i, got[i], s0[i], got)
		}
	}
}

func TestPropagateTwoBodyQuarterPeriod(t *testing.T) {
	const radius = 7000.0
	s0 := circularState(radius)
	period := 2 * math.Pi * math.Sqrt(radius*radius*radius/orbit.MuEarth)

	got := PropagateTwoBody(s0, period/4)
	if math.Abs(got[0]) > 1e-6 || math.Abs(got[1]-radius) > 1e-6 {
		t.Errorf("quarter period position = (%.9f, %.9f), want (0, %v)", got[0], got[1], radius)
	}
	if r := got.Position().Norm(); math.Abs(r-radius) > 1e-6 {
		t.Errorf("radius drifted to %.9f", r)
	}
}

func TestPropagateTwoBodyBackwards(t *testing.T) {
	s0 := orbit.State{6800, 100, -50, 0.5, 7.4, 1.2}
	fwd := PropagateTwoBody(s0, 3600)
	back := PropagateTwoBody(fwd, -3600)
	for i := range back {
		if math.Abs(back[i]-s0[i]) > 1e-6 {
			t.Fatalf("round trip component %d = %.12f, want %.12f", i, back[i], s0[i])
		}
	}
}

func TestPropagateTwoBodyZeroPosition(t *testing.T) {
	s0 := orbit.State{0, 0, 0, 1, 2, 3}
	if got := PropagateTwoBody(s0, 100); got != s0 {
		t.Errorf("zero position propagated to %v, want input unchanged", got)
	}
}

func TestTwoBodyPropagatorUsesEpoch(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s0 := circularState(7000)
	p := NewTwoBody(s0, epoch)

	got, err := p.Propagate(epoch)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if got != s0 {
		t.Errorf("state at epoch = %v, want %v", got, s0)
	}
}

func TestStumpffContinuity(t *testing.T) {
	// The series branch and closed forms must agree near the switch point.
	for _, z := range []float64{2e-6, -2e-6} {
		cSeries := 0.5 - z/24 + z*z/720
		sSeries := 1.0/6 - z/120 + z*z/5040
		c, s := stumpff(z)
		if math.Abs(c-cSeries) > 1e-9 || math.Abs(s-sSeries) > 1e-9 {
			t.Errorf("stumpff(%g) = (%v, %v), series = (%v, %v)", z, c, s, cSeries, sSeries)
		}
	}
}

func TestValidateTLELines(t *testing.T) {
	tests := []struct {
		name    string
		line1   string
		line2   string
		wantErr bool
	}{
		{"valid", issLine1, issLine2, false},
		{"short line1", issLine1[:60], issLine2, true},
		{"swapped lines", issLine2, issLine1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTLELines(tt.line1, tt.line2)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTLELines error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTLE) {
				t.Errorf("error %v does not wrap ErrInvalidTLE", err)
			}
		})
	}
}

func TestSGP4Propagate(t *testing.T) {
	p, err := NewSGP4(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4 failed: %v", err)
	}

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	st, err := p.Propagate(target)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	// ISS sits roughly 420 km up.
	if mag := st.Position().Norm(); mag < 6500 || mag > 7000 {
		t.Errorf("TEME radius = %.1f km, want ~6791", mag)
	}
	if speed := st.Velocity().Norm(); speed < 7.0 || speed > 8.0 {
		t.Errorf("speed = %.3f km/s, want ~7.66", speed)
	}
}

func TestSGP4SubSecondInterpolation(t *testing.T) {
	p, err := NewSGP4(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4 failed: %v", err)
	}

	base := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	s0, err := p.Propagate(base)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	mid, err := p.Propagate(base.Add(500 * time.Millisecond))
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	// Second-order point-mass prediction from s0; J2 and drag contribute
	// well under a centimetre over half a second.
	r := s0.Position()
	rn := r.Norm()
	acc := r.Scale(-orbit.MuEarth / (rn * rn * rn))
	pred := r.Add(s0.Velocity().Scale(0.5)).Add(acc.Scale(0.5 * 0.25))
	if d := pred.Sub(mid.Position()).Norm(); d > 1e-4 {
		t.Errorf("interpolated point off linear prediction by %.6f km", d)
	}
}

func TestHermiteEndpoints(t *testing.T) {
	s0 := orbit.State{1, 2, 3, 0.1, 0.2, 0.3}
	s1 := orbit.State{1.1, 2.2, 3.3, 0.1, 0.2, 0.3}
	if got := hermite(s0, s1, 0, 1); got != s0 {
		t.Errorf("hermite at 0 = %v, want %v", got, s0)
	}
	got := hermite(s0, s1, 1, 1)
	for i := range got {
		if math.Abs(got[i]-s1[i]) > 1e-12 {
			t.Fatalf("hermite at h = %v, want %v", got, s1)
		}
	}
}

func TestBuild(t *testing.T) {
	epoch := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	t.Run("tle selects sgp4 in TEME", func(t *testing.T) {
		est, err := Build(Seed{Epoch: epoch, Frame: "GCRS", State: circularState(6800), TleLine1: issLine1, TleLine2: issLine2})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if est.Kind != KindSGP4 || est.FrameName() != FrameTEME {
			t.Errorf("kind=%s frame=%s, want sgp4/TEME", est.Kind, est.FrameName())
		}
	})

	t.Run("bad tle degrades to two-body", func(t *testing.T) {
		est, err := Build(Seed{Epoch: epoch, Frame: "GCRS", State: circularState(6800), TleLine1: "1 bad", TleLine2: "2 bad"})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if est.Kind != KindTwoBody || est.FrameName() != "GCRS" {
			t.Errorf("kind=%s frame=%s, want two_body/GCRS", est.Kind, est.FrameName())
		}
	})

	t.Run("non-finite state is rejected", func(t *testing.T) {
		_, err := Build(Seed{Epoch: epoch, State: orbit.State{math.NaN()}})
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("error = %v, want ErrInvalidState", err)
		}
	})
}
