package risk_test

import (
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/risk"
)

func encounter(missKm, speedKmS float64) conjunction.Encounter {
	return conjunction.NewEncounter(time.Time{}, orbit.Vec3{missKm, 0, 0}, orbit.Vec3{0, speedKmS, 0})
}

func input(missKm float64) risk.Input {
	return risk.Input{
		Encounter:         encounter(missKm, 10),
		ScreeningVolumeKm: 10,
		DtHours:           24,
		Primary:           risk.Side{Confidence: 0.9, SourceType: "tle", AgeHours: 6},
		Secondary:         risk.Side{Confidence: 0.9, SourceType: "tle", AgeHours: 6},
	}
}

var tierRank = map[risk.Tier]int{risk.TierLow: 0, risk.TierWatch: 1, risk.TierHigh: 2}

func TestEngineAssess(t *testing.T) {
	Convey("Given a risk engine with default thresholds", t, func() {
		engine := risk.NewEngine(risk.DefaultThresholds())

		Convey("When the miss distance shrinks with everything else fixed", func() {
			var prevScore float64
			prevTier := -1
			monotonic := true
			for miss := 10.0; miss >= 0; miss -= 0.25 {
				res := engine.Assess(input(miss))
				if res.Score < prevScore || tierRank[res.Tier] < prevTier {
					monotonic = false
				}
				prevScore = res.Score
				prevTier = tierRank[res.Tier]
			}

			Convey("Then score and tier never decrease", func() {
				So(monotonic, ShouldBeTrue)
			})
		})

		Convey("When the miss distance is inside the high-miss threshold", func() {
			res := engine.Assess(input(0.5))

			Convey("Then the tier is high regardless of score", func() {
				So(res.Tier, ShouldEqual, risk.TierHigh)
			})
		})

		Convey("When the encounter is far, slow and distant in time", func() {
			in := input(9.9)
			in.Encounter = encounter(9.9, 0.1)
			in.DtHours = 100
			res := engine.Assess(in)

			Convey("Then the tier is low", func() {
				So(res.Tier, ShouldEqual, risk.TierLow)
				So(res.Details.Components.TimeToTCA, ShouldEqual, 0)
			})
		})

		Convey("When the score is computed", func() {
			res := engine.Assess(input(5))

			Convey("Then it follows the weighted components", func() {
				want := 0.6*0.5 + 0.25*(48.0/72.0) + 0.15*(10.0/15.0)
				So(res.Score, ShouldAlmostEqual, want, 1e-12)
				So(res.Details.Components.MinSeparation, ShouldAlmostEqual, 0.5, 1e-12)
				So(res.Details.MissDistanceKm, ShouldEqual, 5)
			})
		})

		Convey("When a TLE-sourced estimate ages", func() {
			young := input(5)
			young.Primary.AgeHours, young.Secondary.AgeHours = 6, 6
			old := input(5)
			old.Primary.AgeHours, old.Secondary.AgeHours = 48, 48

			Convey("Then confidence is lower for the older estimate", func() {
				So(engine.Assess(old).Confidence, ShouldBeLessThan, engine.Assess(young).Confidence)
			})
		})

		Convey("When both sides are commercial", func() {
			young := input(5)
			young.Primary.SourceType, young.Secondary.SourceType = "Commercial", "ephemeris"
			old := young
			old.Primary.AgeHours, old.Secondary.AgeHours = 60, 60

			Convey("Then age does not decay confidence", func() {
				So(engine.Assess(old).Confidence, ShouldEqual, engine.Assess(young).Confidence)
				So(engine.Assess(old).Confidence, ShouldAlmostEqual, 0.9, 1e-12)
			})
		})

		Convey("When recent updates scatter widely", func() {
			in := input(5)
			in.Primary.SourceType, in.Secondary.SourceType = "commercial", "commercial"
			std := 2.5
			in.StabilityStdKm = &std
			res := engine.Assess(in)

			Convey("Then confidence is scaled by the stability factor", func() {
				So(res.Confidence, ShouldAlmostEqual, 0.9*0.5, 1e-12)
				So(res.Label, ShouldEqual, "C")
				So(res.Details.ConfidenceInputs.StabilityFactor, ShouldAlmostEqual, 0.5, 1e-12)
			})
		})

		Convey("When no covariance is supplied", func() {
			res := engine.Assess(input(0.5))

			Convey("Then the heuristic PoC with unit sigma is used", func() {
				So(res.Details.PoC.Method, ShouldEqual, risk.MethodHeuristic)
				So(res.Details.PoC.Value, ShouldAlmostEqual, math.Exp(-0.25), 1e-12)
			})

			Convey("Then the drivers are the top three legacy components", func() {
				So(res.Drivers, ShouldHaveLength, 3)
				So(res.Drivers[0], ShouldEqual, "poc")
			})
		})

		Convey("When a covariance is supplied", func() {
			in := input(0.05)
			cov := orbit.Matrix3{{0.01, 0, 0}, {0, 0.01, 0}, {0, 0, 0.01}}
			in.Covariance = &cov
			res := engine.Assess(in)

			Convey("Then the encounter-plane method is used", func() {
				So(res.Details.PoC.Method, ShouldEqual, risk.MethodEncounterPlane)
				So(res.Details.PoC.Value, ShouldBeGreaterThan, 0)
				So(res.Details.PoC.Value, ShouldBeLessThanOrEqualTo, 1)
			})
		})
	})
}

func TestAgeFactor(t *testing.T) {
	Convey("Given the age factor", t, func() {
		So(risk.AgeFactor("tle", 0, 72), ShouldEqual, 1.0)
		So(risk.AgeFactor("tle", 36, 72), ShouldAlmostEqual, 0.5, 1e-12)
		So(risk.AgeFactor("tle", 1000, 72), ShouldEqual, 0.2)
		So(risk.AgeFactor("tle", 10, 0), ShouldEqual, 0.2)
		So(risk.AgeFactor("EPHEMERIS", 1000, 72), ShouldEqual, 1.0)
	})
}

func TestLabel(t *testing.T) {
	Convey("Given confidence labels", t, func() {
		So(risk.Label(0.8), ShouldEqual, "A")
		So(risk.Label(0.79), ShouldEqual, "B")
		So(risk.Label(0.6), ShouldEqual, "B")
		So(risk.Label(0.4), ShouldEqual, "C")
		So(risk.Label(0.39), ShouldEqual, "D")
	})
}

func TestStddev(t *testing.T) {
	Convey("Given sample standard deviation", t, func() {
		So(risk.Stddev(nil), ShouldBeNil)
		So(risk.Stddev([]float64{1}), ShouldBeNil)
		sd := risk.Stddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
		So(sd, ShouldNotBeNil)
		So(*sd, ShouldAlmostEqual, math.Sqrt(32.0/7.0), 1e-12)
	})
}

func TestEncounterPlanePoC(t *testing.T) {
	Convey("Given an isotropic covariance centred on the hard body", t, func() {
		const sigma = 0.1
		const radius = 0.02
		cov := orbit.Matrix3{{sigma * sigma, 0, 0}, {0, sigma * sigma, 0}, {0, 0, sigma * sigma}}

		poc, err := risk.EncounterPlanePoC(orbit.Vec3{}, orbit.Vec3{0, 7, 0}, cov, radius, 180)

		Convey("Then the closed-form Rayleigh result is reproduced", func() {
			So(err, ShouldBeNil)
			want := 1 - math.Exp(-radius*radius/(2*sigma*sigma))
			So(poc, ShouldAlmostEqual, want, 1e-6)
		})
	})

	Convey("Given an offset miss and anisotropic covariance", t, func() {
		cov := orbit.Matrix3{{0.04, 0.01, 0}, {0.01, 0.09, 0}, {0, 0, 0.01}}
		near, err1 := risk.EncounterPlanePoC(orbit.Vec3{0.05, 0, 0}, orbit.Vec3{0, 0, 7}, cov, 0.02, 180)
		far, err2 := risk.EncounterPlanePoC(orbit.Vec3{0.5, 0, 0}, orbit.Vec3{0, 0, 7}, cov, 0.02, 180)

		Convey("Then PoC falls with miss distance", func() {
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(far, ShouldBeLessThan, near)
		})
	})

	Convey("Given zero relative velocity", t, func() {
		_, err := risk.EncounterPlanePoC(orbit.Vec3{1, 0, 0}, orbit.Vec3{}, orbit.Identity3(), 0.02, 180)

		Convey("Then the geometry is rejected", func() {
			So(err, ShouldEqual, risk.ErrDegenerateEncounter)
		})
	})

	Convey("Given a singular covariance", t, func() {
		_, err := risk.EncounterPlanePoC(orbit.Vec3{0.1, 0, 0}, orbit.Vec3{0, 7, 0}, orbit.Matrix3{}, 0.02, 180)

		Convey("Then regularization keeps it computable", func() {
			So(err, ShouldBeNil)
		})
	})
}

func TestCovarianceHelpers(t *testing.T) {
	Convey("Given default covariances", t, func() {
		high := risk.DefaultCovariance("commercial")
		low := risk.DefaultCovariance("tle")
		So(high[0][0], ShouldEqual, 0.1)
		So(low[5][5], ShouldEqual, 1.0)

		Convey("When grown by 10 hours", func() {
			grown := risk.GrowCovariance(low, 10)
			So(grown[0][0], ShouldAlmostEqual, 1.5, 1e-12)
			So(grown[0][1], ShouldEqual, 0)
			So(risk.GrowCovariance(low, -5), ShouldResemble, low)
		})

		Convey("When combined", func() {
			c := risk.CombinedPositionCovariance(high, low)
			So(c[1][1], ShouldAlmostEqual, 1.1, 1e-12)
		})

		Convey("When checked for validity", func() {
			So(risk.ValidCovariance(high), ShouldBeTrue)

			negative := low
			negative[2][2] = -0.5
			So(risk.ValidCovariance(negative), ShouldBeFalse)

			skewed := low
			skewed[0][1] = 0.3
			So(risk.ValidCovariance(skewed), ShouldBeFalse)
			skewed[1][0] = 0.3
			So(risk.ValidCovariance(skewed), ShouldBeTrue)

			nan := low
			nan[4][4] = math.NaN()
			So(risk.ValidCovariance(nan), ShouldBeFalse)
		})
	})
}
