package conjunction_test

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/frames"
	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/propagation"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func circular(radius float64) orbit.State {
	v := math.Sqrt(orbit.MuEarth / radius)
	return orbit.State{radius, 0, 0, 0, v, 0}
}

func estimate(state orbit.State, at time.Time, frame string) *propagation.Estimate {
	est, err := propagation.Build(propagation.Seed{Epoch: at, Frame: frame, State: state})
	if err != nil {
		panic(err)
	}
	return est
}

type failing struct{ frame string }

func (f failing) Propagate(time.Time) (orbit.State, error) {
	return orbit.State{}, propagation.ErrPropagationFailed
}
func (f failing) FrameName() string { return f.frame }

func TestFindCloseApproach(t *testing.T) {
	Convey("Given a close-approach solver", t, func() {
		solver := conjunction.NewSolver(frames.NewConverter())
		params := conjunction.DefaultParams()

		Convey("When two objects share a circular orbit 20 m apart along track", func() {
			primaryState := circular(7000)
			speed := primaryState.Velocity().Norm()
			secondaryState := propagation.PropagateTwoBody(primaryState, 0.020/speed)

			primary := estimate(primaryState, epoch, "GCRS")
			secondary := estimate(secondaryState, epoch, "GCRS")

			enc, ok, err := solver.FindCloseApproach(primary, secondary, epoch, epoch.Add(24*time.Hour), params)

			Convey("Then one encounter of about 0.02 km is reported", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(enc.MissDistanceKm, ShouldAlmostEqual, 0.020, 1e-6)
				So(enc.TCA, ShouldHappenOnOrBetween, epoch, epoch.Add(24*time.Hour))
			})

			Convey("And the miss distance is the norm of the relative position", func() {
				So(enc.MissDistanceKm, ShouldEqual, enc.RRel.Norm())
				So(enc.RelativeVelocityKmS, ShouldEqual, enc.VRel.Norm())
			})
		})

		Convey("When two circular orbits are 20 m apart radially", func() {
			primary := estimate(circular(7000), epoch, "GCRS")
			secondary := estimate(circular(7000.020), epoch, "GCRS")

			p := params
			p.AnchorStep = 30 * time.Minute
			enc, ok, err := solver.FindCloseApproach(primary, secondary, epoch, epoch.Add(2*time.Hour), p)

			Convey("Then one encounter of about 0.02 km is reported", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(enc.MissDistanceKm, ShouldAlmostEqual, 0.020, 1e-4)
			})

			Convey("And the offset is almost entirely radial", func() {
				st, err := primary.Propagate(enc.TCA)
				So(err, ShouldBeNil)
				rtn := conjunction.RTNBasis(st.Position(), st.Velocity()).Project(enc.RRel)
				So(math.Abs(rtn[0]), ShouldAlmostEqual, 0.020, 1e-4)
				So(math.Abs(rtn[1]), ShouldBeLessThan, 0.005)
				So(math.Abs(rtn[2]), ShouldBeLessThan, 1e-9)
			})
		})

		Convey("When an equatorial and a polar orbit cross at a known instant", func() {
			const radius = 7000.0
			v := math.Sqrt(orbit.MuEarth / radius)
			tc := epoch.Add(2 * time.Hour)
			primary := estimate(orbit.State{radius, 0, 0, 0, v, 0}, tc, "GCRS")
			secondary := estimate(orbit.State{radius, 0, 0, 0, 0, v}, tc, "GCRS")

			p := params
			p.AnchorStep = 5 * time.Minute
			enc, ok, err := solver.FindCloseApproach(primary, secondary, tc.Add(-30*time.Minute), tc.Add(30*time.Minute), p)

			Convey("Then the TCA and near-zero miss are recovered", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(math.Abs(enc.TCA.Sub(tc).Seconds()), ShouldBeLessThan, 1.0)
				So(enc.MissDistanceKm, ShouldBeLessThan, 0.01)
				So(enc.RelativeVelocityKmS, ShouldAlmostEqual, v*math.Sqrt2, 1e-3)
			})
		})

		Convey("When the objects never come within the screening volume", func() {
			primary := estimate(circular(7000), epoch, "GCRS")
			secondary := estimate(circular(7500), epoch, "GCRS")

			_, ok, err := solver.FindCloseApproach(primary, secondary, epoch, epoch.Add(24*time.Hour), params)

			Convey("Then no encounter is found and no error is raised", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When every probe fails to propagate", func() {
			primary := estimate(circular(7000), epoch, "GCRS")

			_, ok, err := solver.FindCloseApproach(primary, failing{frame: "GCRS"}, epoch, epoch.Add(24*time.Hour), params)

			Convey("Then the failures are skipped", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a target reports an unknown frame", func() {
			primary := estimate(circular(7000), epoch, "GCRS")
			secondary := estimate(circular(7000), epoch, "LVLH")

			_, _, err := solver.FindCloseApproach(primary, secondary, epoch, epoch.Add(time.Hour), params)

			Convey("Then the frame error is surfaced", func() {
				So(errors.Is(err, frames.ErrUnsupportedFrame), ShouldBeTrue)
			})
		})

		Convey("When the window is inverted", func() {
			primary := estimate(circular(7000), epoch, "GCRS")
			_, ok, err := solver.FindCloseApproach(primary, primary, epoch, epoch.Add(-time.Hour), params)

			Convey("Then nothing is searched", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestRTNBasis(t *testing.T) {
	Convey("Given a circular equatorial reference orbit", t, func() {
		ref := circular(7000)
		b := conjunction.RTNBasis(ref.Position(), ref.Velocity())

		Convey("Then the basis is radial, along-track and orbit normal", func() {
			So(b.R, ShouldResemble, orbit.Vec3{1, 0, 0})
			So(b.T[1], ShouldAlmostEqual, 1.0, 1e-12)
			So(b.N[2], ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Then Project and Matrix agree", func() {
			vec := orbit.Vec3{0.3, -1.2, 2.5}
			p := b.Project(vec)
			m := b.Matrix().Apply(vec)
			for i := range p {
				So(p[i], ShouldAlmostEqual, m[i], 1e-12)
			}
		})

		Convey("Then a diagonal RTN covariance keeps its trace in ECI", func() {
			rtn := orbit.Matrix3{{0.04, 0, 0}, {0, 0.25, 0}, {0, 0, 0.01}}
			eci := b.RotateCovarianceToECI(rtn)
			So(eci.Trace(), ShouldAlmostEqual, rtn.Trace(), 1e-12)
		})
	})

	Convey("Given a degenerate reference with zero velocity", t, func() {
		b := conjunction.RTNBasis(orbit.Vec3{7000, 0, 0}, orbit.Vec3{})

		Convey("Then the fallback normal is used", func() {
			So(b.N, ShouldResemble, orbit.Vec3{0, 0, 1})
			So(b.T.Norm(), ShouldAlmostEqual, 1.0, 1e-12)
		})
	})
}
