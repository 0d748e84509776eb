package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/conjunct/internal/adapters/repository"
	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/frames"
	"github.com/okian/conjunct/internal/domain/lifecycle"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/propagation"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/logger"
	"github.com/okian/conjunct/pkg/metrics"
)

// Skipped explains why a catalog object was left out of a pass.
type Skipped struct {
	SpaceObjectID string `json:"space_object_id"`
	OrbitStateID  string `json:"orbit_state_id"`
	Reason        string `json:"reason"`
}

// ScreeningResult summarizes one pass for one satellite.
type ScreeningResult struct {
	SatelliteID    string         `json:"satellite_id"`
	ScreenedAt     time.Time      `json:"screened_at"`
	HorizonDays    int            `json:"horizon_days"`
	Candidates     int            `json:"candidates"`
	EventsCreated  int            `json:"events_created"`
	EventsUpdated  int            `json:"events_updated"`
	UpdatesCreated int            `json:"updates_created"`
	EventsRetired  int            `json:"events_retired"`
	Changes        []model.Change `json:"changes,omitempty"`
	Skipped        []Skipped      `json:"skipped,omitempty"`
}

// Screen searches the satellite's trajectory against every catalog object
// over the next horizonDays (clamped to [1,14]; 0 uses the default) and
// records the resulting events in one batch.
func (s *Service) Screen(ctx context.Context, satelliteID string, horizonDays int) (ScreeningResult, error) {
	start := time.Now()
	res, err := s.screen(ctx, satelliteID, horizonDays)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordScreeningPass(outcome, float64(time.Since(start).Milliseconds()))
	return res, err
}

func (s *Service) screen(ctx context.Context, satelliteID string, horizonDays int) (ScreeningResult, error) {
	sat, err := s.store.Satellite(ctx, satelliteID)
	if err != nil {
		if isNotFound(err) {
			return ScreeningResult{}, fmt.Errorf("%w: %s", ErrSatelliteNotFound, satelliteID)
		}
		return ScreeningResult{}, err
	}

	unlock := s.lockSatellite(sat.ID)
	defer unlock()

	if horizonDays <= 0 {
		horizonDays = s.horizonDays
	}
	now := s.now().UTC()
	res := ScreeningResult{
		SatelliteID: sat.ID,
		ScreenedAt:  now,
		HorizonDays: clampHorizon(horizonDays),
	}
	end := now.Add(time.Duration(res.HorizonDays) * 24 * time.Hour)
	log := s.logger.With(logger.String("satellite_id", sat.ID))

	primaryState, err := s.store.PrimaryState(ctx, sat.ID, now)
	if err != nil {
		if isNotFound(err) {
			log.Info(ctx, "no valid orbit state, nothing to screen")
			return res, nil
		}
		return res, err
	}
	primary, err := s.estimate(ctx, primaryState)
	if err != nil {
		return res, fmt.Errorf("primary state %s: %w", primaryState.ID, err)
	}

	params := conjunction.DefaultParams()
	params.ScreeningVolumeKm = s.volumeKm
	params.PredictedMissPrefilterKm = s.volumeKm * prefilterFactor

	primaryAlt := 0.0
	if st, err := primary.Propagate(now); err == nil {
		primaryAlt = orbit.AltitudeKm(st)
	} else {
		metrics.RecordPropagationFailure(string(primary.Kind))
	}
	primaryAge := primary.AgeHours(now)
	primaryCov := s.covariance(primary, primaryAge)

	secondaries, err := s.store.SecondaryStates(ctx, now)
	if err != nil {
		return res, err
	}
	events, err := s.store.EventsForSatellite(ctx, sat.ID)
	if err != nil {
		return res, err
	}

	var batch repository.Batch
	seen := make(map[string]struct{})

	for _, secState := range secondaries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if secState.SpaceObjectID == "" || secState.SpaceObjectID == sat.SpaceObjectID {
			continue
		}
		secondary, err := s.estimate(ctx, secState)
		if err != nil {
			res.Skipped = append(res.Skipped, skip(secState, err))
			continue
		}

		st, err := secondary.Propagate(now)
		if err != nil {
			metrics.RecordPropagationFailure(string(secondary.Kind))
			continue
		}
		if math.Abs(primaryAlt-orbit.AltitudeKm(st)) > s.altitudeWindowKm {
			continue
		}
		res.Candidates++
		metrics.RecordScreeningCandidate()

		enc, ok, err := s.solver.FindCloseApproach(primary, secondary, now, end, params)
		if err != nil {
			s.recordSolverError(ctx, log, secState, err)
			res.Skipped = append(res.Skipped, skip(secState, err))
			continue
		}
		if !ok {
			continue
		}
		metrics.RecordEncounter(enc.MissDistanceKm)

		primaryAtTCA, err := s.stateGCRS(primary, enc.TCA)
		if err != nil {
			s.recordSolverError(ctx, log, secState, err)
			res.Skipped = append(res.Skipped, skip(secState, err))
			continue
		}

		sc := lifecycle.NewScoringContext(model.SourceScreening, now, enc, primaryAtTCA, s.volumeKm)

		ev, found := lifecycle.Match(events, sat.ID, secState.SpaceObjectID, enc.TCA, s.matchWindow)
		var stability *float64
		if found {
			recent, err := s.store.Updates(ctx, ev.ID, 3)
			if err != nil {
				return res, err
			}
			stability = lifecycle.Stability(recent)
		}

		secondaryAge := secondary.AgeHours(now)
		cov := risk.CombinedPositionCovariance(primaryCov, s.covariance(secondary, secondaryAge))
		sc.Risk = s.engine.Assess(risk.Input{
			Encounter:         enc,
			ScreeningVolumeKm: s.volumeKm,
			DtHours:           sc.DtHours(),
			Primary:           risk.Side{Confidence: primary.Confidence, SourceType: primary.SourceType, AgeHours: primaryAge},
			Secondary:         risk.Side{Confidence: secondary.Confidence, SourceType: secondary.SourceType, AgeHours: secondaryAge},
			StabilityStdKm:    stability,
			Covariance:        &cov,
		})
		metrics.RecordPoC(sc.Risk.Details.PoC.Method)
		sc.Provenance = lifecycle.Provenance{
			PrimaryOrbitStateID:   primary.OrbitStateID,
			SecondaryOrbitStateID: secondary.OrbitStateID,
			PrimaryTleRecordID:    primary.TleRecordID,
			SecondaryTleRecordID:  secondary.TleRecordID,
		}

		if found {
			res.EventsUpdated++
		} else {
			ev = lifecycle.NewEvent(sat.ID, secState.SpaceObjectID, sc)
			events = append(events, ev)
			res.EventsCreated++
		}

		u := lifecycle.NewUpdate(ev.ID, sc)
		if change, ok := lifecycle.ApplySnapshot(&ev, u); ok {
			batch.Changes = append(batch.Changes, change)
		}
		replaceEvent(events, ev)
		seen[ev.ID] = struct{}{}

		batch.Events = append(batch.Events, ev)
		batch.Updates = append(batch.Updates, u)
		res.UpdatesCreated++
	}

	for _, id := range lifecycle.Retire(events, sat.ID, seen, now) {
		for i := range events {
			if events[i].ID != id {
				continue
			}
			events[i].IsActive = false
			events[i].UpdatedAt = now
			batch.Events = append(batch.Events, events[i])
			res.EventsRetired++
		}
	}

	if err := s.commit(ctx, batch); err != nil {
		return ScreeningResult{SatelliteID: sat.ID, ScreenedAt: now, HorizonDays: res.HorizonDays}, err
	}
	res.Changes = batch.Changes

	for i := 0; i < res.EventsCreated; i++ {
		metrics.RecordEventCreated()
	}
	for i := 0; i < res.EventsUpdated; i++ {
		metrics.RecordEventUpdated()
	}
	for i := 0; i < res.UpdatesCreated; i++ {
		metrics.RecordUpdateCreated()
	}
	metrics.RecordEventsRetired(res.EventsRetired)
	s.publish(ctx, batch.Changes)

	log.Info(ctx, "screening pass done",
		logger.Int("horizon_days", res.HorizonDays),
		logger.Int("candidates", res.Candidates),
		logger.Int("created", res.EventsCreated),
		logger.Int("updated", res.EventsUpdated),
		logger.Int("retired", res.EventsRetired),
		logger.Int("changes", len(res.Changes)),
		logger.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// ScreenAll screens every operator satellite, at most concurrency at a time.
// A failing satellite does not stop the others; their errors are joined.
func (s *Service) ScreenAll(ctx context.Context) ([]ScreeningResult, error) {
	sats, err := s.store.Satellites(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make([]ScreeningResult, 0, len(sats))
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sat := range sats {
		g.Go(func() error {
			r, err := s.Screen(gctx, sat.ID, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error(gctx, "screening failed", logger.String("satellite_id", sat.ID), logger.Error(err))
				errs = append(errs, fmt.Errorf("satellite %s: %w", sat.ID, err))
				return nil
			}
			results = append(results, r)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].SatelliteID < results[j].SatelliteID })
	return results, errors.Join(errs...)
}

// estimate builds a fresh propagator for a catalog state. The linked TLE
// is used when there is one; a TEME state without a link takes its
// object's latest TLE.
func (s *Service) estimate(ctx context.Context, st model.OrbitState) (*propagation.Estimate, error) {
	seed := propagation.Seed{
		OrbitStateID: st.ID,
		Epoch:        st.Epoch,
		Frame:        st.Frame,
		State:        st.State,
		Covariance:   st.Covariance,
		SourceName:   st.SourceName,
		SourceType:   st.SourceType,
		Confidence:   st.Confidence,
		ValidFrom:    st.ValidFrom,
		ValidTo:      st.ValidTo,
	}
	rec, err := s.tleFor(ctx, st)
	switch {
	case err == nil:
		seed.TleRecordID = rec.ID
		seed.TleLine1, seed.TleLine2 = rec.Line1, rec.Line2
	case !isNotFound(err):
		return nil, err
	}
	return propagation.Build(seed)
}

func (s *Service) tleFor(ctx context.Context, st model.OrbitState) (model.TleRecord, error) {
	if st.TleRecordID != "" {
		rec, err := s.store.TleRecord(ctx, st.TleRecordID)
		if err == nil || !isNotFound(err) {
			return rec, err
		}
	}
	if !strings.EqualFold(strings.TrimSpace(st.Frame), propagation.FrameTEME) || st.SpaceObjectID == "" {
		return model.TleRecord{}, repository.ErrNotFound
	}
	return s.store.LatestTleRecord(ctx, st.SpaceObjectID, st.Epoch)
}

// covariance is the estimate's own covariance when it is usable, or the
// default for its source type, grown by the data age.
func (s *Service) covariance(est *propagation.Estimate, ageHours float64) risk.Covariance6 {
	c := risk.DefaultCovariance(est.SourceType)
	if est.Covariance != nil && risk.ValidCovariance(*est.Covariance) {
		c = *est.Covariance
	}
	return risk.GrowCovariance(c, ageHours)
}

func (s *Service) stateGCRS(est *propagation.Estimate, t time.Time) (orbit.State, error) {
	st, err := est.Propagate(t)
	if err != nil {
		return orbit.State{}, err
	}
	return s.converter.ToGCRS(st, est.FrameName(), t)
}

// recordSolverError counts a per-candidate failure. Unknown frames are
// configuration problems and are logged at warn.
func (s *Service) recordSolverError(ctx context.Context, log logger.Logger, st model.OrbitState, err error) {
	var fe *frames.UnsupportedFrameError
	switch {
	case errors.As(err, &fe):
		metrics.RecordFrameError(fe.Name)
		log.Warn(ctx, "unsupported frame, candidate skipped",
			logger.String("space_object_id", st.SpaceObjectID),
			logger.String("orbit_state_id", st.ID),
			logger.String("frame", fe.Name))
	case errors.Is(err, propagation.ErrPropagationFailed):
		metrics.RecordPropagationFailure("solver")
		log.Debug(ctx, "propagation failed, candidate skipped",
			logger.String("space_object_id", st.SpaceObjectID), logger.Error(err))
	default:
		metrics.RecordErrorByComponent("service", "solver")
		log.Debug(ctx, "candidate skipped",
			logger.String("space_object_id", st.SpaceObjectID), logger.Error(err))
	}
}

func skip(st model.OrbitState, err error) Skipped {
	return Skipped{SpaceObjectID: st.SpaceObjectID, OrbitStateID: st.ID, Reason: err.Error()}
}

func replaceEvent(events []model.ConjunctionEvent, ev model.ConjunctionEvent) { //nolint:gocritic // hugeParam
	for i := range events {
		if events[i].ID == ev.ID {
			events[i] = ev
			return
		}
	}
}
