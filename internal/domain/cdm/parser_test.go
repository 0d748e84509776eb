package cdm_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/conjunct/internal/domain/cdm"
)

func minimalCDM() []string {
	return []string{
		"CCSDS_CDM_VERS = 1.0",
		"CREATION_DATE = 2026-03-01T10:00:00",
		"ORIGINATOR = TEST",
		"TCA = 2026-03-02T12:30:00Z",
		"REF_FRAME = gcrs",
		"MISS_DISTANCE = 20.0 [m]",
		"RELATIVE_SPEED = 10.0 [m/s]",
		"COMMENT screening run 42",
		"OBJECT = OBJECT1",
		"NORAD_CAT_ID = 10000",
		"OBJECT_NAME = ALPHA",
		"X = 7000.0 [km]",
		"Y = 0.0 [km]",
		"Z = 0.0 [km]",
		"X_DOT = 0.0 [km/s]",
		"Y_DOT = 7.5 [km/s]",
		"Z_DOT = 0.0 [km/s]",
		"OBJECT = OBJECT2",
		"NORAD_CAT_ID = 12345",
		"OBJECT_NAME = CATALOG-DELTA",
		"X = 7000.02 [km]",
		"Y = 0.0 [km]",
		"Z = 0.0 [km]",
		"X_DOT = 0.0 [km/s]",
		"Y_DOT = 7.51 [km/s]",
		"Z_DOT = 0.0 [km/s]",
		"CR_R = 100.0 [m^2]",
		"CT_R = 0.0 [m^2]",
		"CT_T = 100.0 [m^2]",
		"CN_R = 0.0 [m^2]",
		"CN_T = 0.0 [m^2]",
		"CN_N = 100.0 [m^2]",
		"",
	}
}

func without(lines []string, prefix string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

func replace(lines []string, prefix, with string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			l = with
		}
		out[i] = l
	}
	return out
}

func problems(err error) []string {
	var pe *cdm.ParseError
	if errors.As(err, &pe) {
		return pe.Problems
	}
	return nil
}

func TestParse(t *testing.T) {
	Convey("Given a minimal valid CDM", t, func() {
		msg, err := cdm.Parse(strings.Join(minimalCDM(), "\n"))

		Convey("Then the header is parsed", func() {
			So(err, ShouldBeNil)
			So(msg.Version, ShouldEqual, "1.0")
			So(msg.Originator, ShouldEqual, "TEST")
			So(msg.RefFrame, ShouldEqual, "GCRS")
			So(msg.TCA, ShouldEqual, time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC))
			So(msg.CreationDate.Location(), ShouldEqual, time.UTC)
		})

		Convey("Then metres are converted to kilometres", func() {
			So(msg.MissDistanceKm, ShouldEqual, 0.02)
			So(msg.RelativeSpeedKmS, ShouldNotBeNil)
			So(*msg.RelativeSpeedKmS, ShouldEqual, 0.01)
		})

		Convey("Then both objects are parsed", func() {
			So(*msg.Object1.NoradCatID, ShouldEqual, 10000)
			So(*msg.Object2.NoradCatID, ShouldEqual, 12345)
			So(msg.Object1.Name, ShouldEqual, "ALPHA")
			So(msg.Object2.Name, ShouldEqual, "CATALOG-DELTA")
			So(msg.Object2.State[0], ShouldEqual, 7000.02)
			So(msg.Object1.State[4], ShouldEqual, 7.5)
		})

		Convey("Then the covariance is converted to km²", func() {
			So(msg.CovarianceRTN, ShouldNotBeNil)
			So(msg.CovarianceRTN[0][0], ShouldAlmostEqual, 0.0001, 1e-12)
			So(msg.CovarianceRTN[2][2], ShouldAlmostEqual, 0.0001, 1e-12)
		})

		Convey("Then forced-global keys never land in an object block", func() {
			So(msg.KVN.Object2, ShouldNotContainKey, "CR_R")
			So(msg.KVN.Global, ShouldContainKey, "CN_N")
			So(msg.KVN.Global, ShouldNotContainKey, "COMMENT")
		})
	})

	Convey("Given a CDM missing state fields", t, func() {
		lines := without(without(minimalCDM(), "X_DOT"), "Y_DOT")
		_, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then exactly the missing fields are listed per object", func() {
			So(errors.Is(err, cdm.ErrInvalidCDM), ShouldBeTrue)
			So(problems(err), ShouldResemble, []string{
				"OBJECT1 missing state fields: X_DOT, Y_DOT",
				"OBJECT2 missing state fields: X_DOT, Y_DOT",
			})
		})
	})

	Convey("Given a CDM with several independent problems", t, func() {
		lines := without(minimalCDM(), "ORIGINATOR")
		lines = replace(lines, "MISS_DISTANCE", "MISS_DISTANCE = 20.0")
		lines = replace(lines, "RELATIVE_SPEED", "RELATIVE_SPEED = 10 [furlong/fortnight]")
		lines = without(lines, "CN_N")
		_, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then all problems are reported together", func() {
			So(problems(err), ShouldResemble, []string{
				"Missing ORIGINATOR",
				"Missing units for MISS_DISTANCE (expected bracket units like [km] or [m])",
				"Unsupported units for RELATIVE_SPEED: 'furlong/fortnight'",
				"Covariance missing fields: CN_N",
			})
		})
	})

	Convey("Given malformed values", t, func() {
		lines := replace(minimalCDM(), "TCA", "TCA = tomorrow")
		lines = replace(lines, "NORAD_CAT_ID = 10000", "NORAD_CAT_ID = ten")
		lines = replace(lines, "X = 7000.0", "X = seven [km]")
		_, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then each is reported with its raw text", func() {
			p := problems(err)
			So(p, ShouldContain, "Invalid TCA: 'tomorrow'")
			So(p, ShouldContain, "Invalid OBJECT1.NORAD_CAT_ID: 'ten'")
			So(p, ShouldContain, "Invalid OBJECT1.X: 'seven'")
		})
	})

	Convey("Given a covariance with a negative variance", t, func() {
		lines := replace(minimalCDM(), "CN_N", "CN_N = -100.0 [m^2]")
		_, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then it is rejected", func() {
			So(errors.Is(err, cdm.ErrInvalidCDM), ShouldBeTrue)
			So(problems(err), ShouldResemble, []string{"Covariance diagonal must be non-negative"})
		})
	})

	Convey("Given non-finite and hex numbers", t, func() {
		lines := replace(minimalCDM(), "MISS_DISTANCE", "MISS_DISTANCE = NaN [m]")
		lines = replace(lines, "RELATIVE_SPEED", "RELATIVE_SPEED = +Inf [m/s]")
		lines = replace(lines, "CR_R", "CR_R = 0x1p4 [m^2]")
		_, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then each is an invalid number", func() {
			p := problems(err)
			So(p, ShouldContain, "Invalid MISS_DISTANCE: 'NaN'")
			So(p, ShouldContain, "Invalid RELATIVE_SPEED: '+Inf'")
			So(p, ShouldContain, "Invalid CR_R: '0x1p4'")
		})
	})

	Convey("Given Fortran exponents and a day-of-year TCA", t, func() {
		lines := replace(minimalCDM(), "MISS_DISTANCE", "MISS_DISTANCE = 2.0D1 [m]")
		lines = replace(lines, "TCA", "TCA = 2026-061T12:30:00.000")
		msg, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then both are accepted", func() {
			So(err, ShouldBeNil)
			So(msg.MissDistanceKm, ShouldEqual, 0.02)
			So(msg.TCA, ShouldEqual, time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC))
		})
	})

	Convey("Given REF_FRAME only inside an object block", t, func() {
		lines := without(minimalCDM(), "REF_FRAME")
		lines = replace(lines, "OBJECT_NAME = ALPHA", "OBJECT_NAME = ALPHA\nREF_FRAME = itrf")
		msg, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then it is still read as a header key", func() {
			So(err, ShouldBeNil)
			So(msg.RefFrame, ShouldEqual, "ITRF")
		})
	})

	Convey("Given empty text", t, func() {
		_, err := cdm.Parse("  \n\t ")

		Convey("Then a single problem is reported", func() {
			So(problems(err), ShouldResemble, []string{"Empty CDM text"})
		})
	})

	Convey("Given a CDM without covariance", t, func() {
		lines := minimalCDM()
		for _, k := range []string{"CR_R", "CT_R", "CT_T", "CN_R", "CN_T", "CN_N"} {
			lines = without(lines, k)
		}
		msg, err := cdm.Parse(strings.Join(lines, "\n"))

		Convey("Then the covariance is absent, not an error", func() {
			So(err, ShouldBeNil)
			So(msg.CovarianceRTN, ShouldBeNil)
		})
	})
}
