package maneuver_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/conjunct/internal/domain/maneuver"
	"github.com/okian/conjunct/internal/domain/model"
)

func TestOptions(t *testing.T) {
	Convey("Given an event with a moderate risk score", t, func() {
		tca := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		opts := maneuver.Options(model.ConjunctionEvent{TCA: tca, RiskScore: 0.5})

		Convey("Then three windows surround TCA", func() {
			So(opts, ShouldHaveLength, 3)
			So(opts[0].WindowStart, ShouldEqual, tca.Add(-2*time.Hour))
			So(opts[1].WindowEnd, ShouldEqual, tca)
			So(opts[2].WindowEnd, ShouldEqual, tca.Add(time.Hour))
		})

		Convey("Then Δv, fuel and residual risk grow with the window index", func() {
			So(opts[0].DeltaVKmS, ShouldAlmostEqual, 0.05, 1e-12)
			So(opts[2].DeltaVKmS, ShouldAlmostEqual, 0.09, 1e-12)
			So(opts[1].FuelCost, ShouldAlmostEqual, 0.7, 1e-12)
			So(opts[0].RiskAfter, ShouldAlmostEqual, 0.35, 1e-12)
			So(opts[2].RiskAfter, ShouldAlmostEqual, 0.25, 1e-12)
		})

		Convey("Then only the first is recommended", func() {
			So(opts[0].IsRecommended, ShouldBeTrue)
			So(opts[1].IsRecommended, ShouldBeFalse)
			So(opts[2].IsRecommended, ShouldBeFalse)
		})
	})

	Convey("Given a low-risk event", t, func() {
		opts := maneuver.Options(model.ConjunctionEvent{RiskScore: 0.1})

		Convey("Then residual risk never goes negative", func() {
			for _, o := range opts {
				So(o.RiskAfter, ShouldEqual, 0)
			}
		})
	})
}
