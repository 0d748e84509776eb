package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/conjunct/internal/app"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/logger"
)

// warnRecorder keeps warn messages and the fields logged with them.
type warnRecorder struct {
	mu    sync.Mutex
	warns []map[string]any
}

func (r *warnRecorder) Info(context.Context, string, ...logger.Field)  {}
func (r *warnRecorder) Error(context.Context, string, ...logger.Field) {}
func (r *warnRecorder) Debug(context.Context, string, ...logger.Field) {}
func (r *warnRecorder) Fatal(context.Context, string, ...logger.Field) {}
func (r *warnRecorder) Named(string) logger.Logger                     { return r }
func (r *warnRecorder) With(...logger.Field) logger.Logger             { return r }

func (r *warnRecorder) Warn(_ context.Context, msg string, fields ...logger.Field) {
	entry := map[string]any{"msg": msg}
	for _, f := range fields {
		entry[f.Key] = f.Value
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, entry)
}

func TestScreen(t *testing.T) {
	Convey("Given a satellite with a debris object 20 m behind it", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFixture(ctx)
		defer func() { _ = f.store.Close() }()

		// The satellite's own catalog entry must never be screened against it.
		must(f.store.PutOrbitState(ctx, model.OrbitState{
			ID: "alpha-catalog", SpaceObjectID: "obj-sat-alpha",
			Epoch: now, Frame: "GCRS", State: circular(7000), SourceType: "tle", Confidence: 0.4,
		}))
		f.addObject(ctx, "obj-far", "FAR", 30000, circular(7500))

		Convey("When the satellite is screened", func() {
			res, err := f.svc.Screen(ctx, "sat-alpha", 0)
			So(err, ShouldBeNil)

			Convey("Then one event is opened for the debris", func() {
				So(res.HorizonDays, ShouldEqual, 1)
				So(res.Candidates, ShouldEqual, 1)
				So(res.EventsCreated, ShouldEqual, 1)
				So(res.EventsUpdated, ShouldEqual, 0)
				So(res.UpdatesCreated, ShouldEqual, 1)
				So(res.Skipped, ShouldBeEmpty)

				events, err := f.store.EventsForSatellite(ctx, "sat-alpha")
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				ev := events[0]
				So(ev.SpaceObjectID, ShouldEqual, "obj-debris")
				So(ev.IsActive, ShouldBeTrue)
				So(ev.MissDistanceKm, ShouldAlmostEqual, 0.020, 1e-5)
				So(ev.RiskTier, ShouldEqual, risk.TierHigh)
				So(ev.ScreeningVolumeKm, ShouldEqual, 10.0)
			})

			Convey("Then the update records its provenance", func() {
				events, _ := f.store.EventsForSatellite(ctx, "sat-alpha")
				updates, err := f.store.Updates(ctx, events[0].ID, 0)
				So(err, ShouldBeNil)
				So(updates, ShouldHaveLength, 1)
				u := updates[0]
				So(events[0].CurrentUpdateID, ShouldEqual, u.ID)
				So(u.Source, ShouldEqual, model.SourceScreening)
				So(u.PrimaryOrbitStateID, ShouldEqual, "sat-alpha-state")
				So(u.SecondaryOrbitStateID, ShouldEqual, "obj-debris-state")
				So(u.MissDistanceKm, ShouldEqual, u.RRelECI.Norm())
				So(u.RRelRTN.Norm(), ShouldAlmostEqual, u.RRelECI.Norm(), 1e-9)
				So(u.Details.PoC.Method, ShouldNotBeEmpty)
				So(u.Details.CDM, ShouldBeNil)
			})

			Convey("Then the first sighting is reported as a change", func() {
				So(res.Changes, ShouldHaveLength, 1)
				So(res.Changes[0].RiskTierFrom, ShouldEqual, "unknown")
				So(res.Changes[0].RiskTierTo, ShouldEqual, string(risk.TierHigh))
				So(res.Changes[0].MissDistanceFromKm, ShouldBeNil)
				So(f.changes, ShouldHaveLength, 1)
			})

			Convey("And the satellite is screened again", func() {
				again, err := f.svc.Screen(ctx, "sat-alpha", 0)
				So(err, ShouldBeNil)

				Convey("Then the existing event gets a second update", func() {
					So(again.EventsCreated, ShouldEqual, 0)
					So(again.EventsUpdated, ShouldEqual, 1)
					So(again.UpdatesCreated, ShouldEqual, 1)

					events, _ := f.store.EventsForSatellite(ctx, "sat-alpha")
					So(events, ShouldHaveLength, 1)
					updates, _ := f.store.Updates(ctx, events[0].ID, 0)
					So(updates, ShouldHaveLength, 2)
					So(events[0].CurrentUpdateID, ShouldEqual, updates[0].ID)
				})
			})

			Convey("And the debris moves away before the next pass", func() {
				f.moveObject(ctx, "obj-debris", circular(7500))
				again, err := f.svc.Screen(ctx, "sat-alpha", 0)
				So(err, ShouldBeNil)

				Convey("Then the event is marked inactive but kept", func() {
					So(again.EventsRetired, ShouldEqual, 1)
					So(again.UpdatesCreated, ShouldEqual, 0)

					events, _ := f.store.EventsForSatellite(ctx, "sat-alpha")
					So(events, ShouldHaveLength, 1)
					So(events[0].IsActive, ShouldBeFalse)
					updates, _ := f.store.Updates(ctx, events[0].ID, 0)
					So(updates, ShouldHaveLength, 1)
				})
			})
		})

		Convey("When a catalog object uses an unknown frame", func() {
			must(f.store.PutSpaceObject(ctx, model.SpaceObject{ID: "obj-odd", Name: "ODD"}))
			must(f.store.PutOrbitState(ctx, model.OrbitState{
				ID: "odd-state", SpaceObjectID: "obj-odd",
				Epoch: now, Frame: "LVLH", State: circular(7001), SourceType: "tle", Confidence: 0.4,
			}))
			res, err := f.svc.Screen(ctx, "sat-alpha", 0)

			Convey("Then it is skipped and the rest of the pass completes", func() {
				So(err, ShouldBeNil)
				So(res.Skipped, ShouldHaveLength, 1)
				So(res.Skipped[0].SpaceObjectID, ShouldEqual, "obj-odd")
				So(res.EventsCreated, ShouldEqual, 1)
			})
		})

		Convey("When the horizon is out of range", func() {
			res, err := f.svc.Screen(ctx, "sat-alpha", 30)

			Convey("Then it is clamped to 14 days", func() {
				So(err, ShouldBeNil)
				So(res.HorizonDays, ShouldEqual, 14)
			})
		})

		Convey("When an unknown satellite is screened", func() {
			_, err := f.svc.Screen(ctx, "sat-missing", 0)

			Convey("Then ErrSatelliteNotFound is returned", func() {
				So(errors.Is(err, service.ErrSatelliteNotFound), ShouldBeTrue)
			})
		})

		Convey("When a satellite has no valid orbit state", func() {
			must(f.store.PutSatellite(ctx, model.Satellite{ID: "sat-bare", Name: "BARE"}))
			res, err := f.svc.Screen(ctx, "sat-bare", 0)

			Convey("Then the pass is empty", func() {
				So(err, ShouldBeNil)
				So(res.EventsCreated, ShouldEqual, 0)
				So(res.UpdatesCreated, ShouldEqual, 0)
			})
		})
	})
}

func TestScreenAll(t *testing.T) {
	Convey("Given two operator satellites", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFixture(ctx, service.WithConcurrency(2))
		defer func() { _ = f.store.Close() }()
		f.addSatellite(ctx, "sat-bravo", "BRAVO", 20000, circular(7600))

		Convey("When all satellites are screened", func() {
			results, err := f.svc.ScreenAll(ctx)

			Convey("Then each gets a result in id order", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].SatelliteID, ShouldEqual, "sat-alpha")
				So(results[0].EventsCreated, ShouldEqual, 1)
				So(results[1].SatelliteID, ShouldEqual, "sat-bravo")
				So(results[1].EventsCreated, ShouldEqual, 0)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, ccancel := context.WithCancel(ctx)
			ccancel()
			_, err := f.svc.ScreenAll(cctx)

			Convey("Then the failures are reported", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestScreenUnsupportedFrame(t *testing.T) {
	Convey("Given a catalog object stored in an unknown frame", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		rec := &warnRecorder{}
		f := newFixture(ctx, service.WithLogger(rec))
		defer func() { _ = f.store.Close() }()

		must(f.store.PutSpaceObject(ctx, model.SpaceObject{ID: "obj-odd", Name: "ODD"}))
		must(f.store.PutOrbitState(ctx, model.OrbitState{
			ID: "odd-state", SpaceObjectID: "obj-odd",
			Epoch: now, Frame: "LVLH", State: circular(7001), SourceType: "tle", Confidence: 0.4,
		}))

		Convey("When the satellite is screened", func() {
			res, err := f.svc.Screen(ctx, "sat-alpha", 0)

			Convey("Then the skip is logged at warn with the frame", func() {
				So(err, ShouldBeNil)
				So(res.Skipped, ShouldHaveLength, 1)

				rec.mu.Lock()
				defer rec.mu.Unlock()
				So(rec.warns, ShouldHaveLength, 1)
				So(rec.warns[0]["frame"], ShouldEqual, "LVLH")
				So(rec.warns[0]["space_object_id"], ShouldEqual, "obj-odd")
				So(rec.warns[0]["orbit_state_id"], ShouldEqual, "odd-state")
			})
		})
	})
}
