package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/conjunct/internal/adapters/repository"
	"github.com/okian/conjunct/internal/domain/cdm"
	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/dedupe"
	"github.com/okian/conjunct/internal/domain/frames"
	"github.com/okian/conjunct/internal/domain/lifecycle"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/logger"
	"github.com/okian/conjunct/pkg/metrics"
)

const (
	cdmConfidenceWithCovariance = 0.85
	cdmConfidence               = 0.70
	unknownObjectType           = "UNKNOWN"
)

// AttachOptions tunes how a CDM is mapped onto an event.
type AttachOptions struct {
	// OverrideSecondary accepts a CDM whose objects do not match the
	// event's secondary; OBJECT1 is then taken as the primary.
	OverrideSecondary bool

	// PrimarySatelliteID nominates the operator satellite when no event is
	// given. Without it the satellite is discovered from the CDM objects.
	PrimarySatelliteID string
}

// AttachResult describes what an attached CDM produced.
type AttachResult struct {
	EventID           string        `json:"event_id"`
	UpdateID          string        `json:"update_id"`
	CdmRecordID       string        `json:"cdm_record_id"`
	EventCreated      bool          `json:"event_created"`
	PrimaryObject     string        `json:"primary_object"`
	TCA               time.Time     `json:"tca"`
	Originator        string        `json:"originator"`
	RefFrame          string        `json:"ref_frame"`
	CovariancePresent bool          `json:"covariance_present"`
	Change            *model.Change `json:"change,omitempty"`
}

// attachment is a CDM resolved onto a (satellite, secondary, event) triple.
type attachment struct {
	event     model.ConjunctionEvent
	created   bool
	primary   cdm.Object
	secondary cdm.Object
	primaryAs string
	newObject *model.SpaceObject
}

// AttachCDM parses raw KVN and records it against an event. With an
// eventID the CDM refines that event; without one the operator satellite
// and the secondary are resolved from the message and the event is matched
// or created.
func (s *Service) AttachCDM(ctx context.Context, raw, eventID string, opts AttachOptions) (AttachResult, error) {
	msg, err := cdm.Parse(raw)
	if err != nil {
		metrics.RecordCDMRejected("parse")
		return AttachResult{}, err
	}

	var (
		att    attachment
		unlock func()
	)
	if eventID != "" {
		att, unlock, err = s.resolveEvent(ctx, msg, eventID, opts)
	} else {
		att, unlock, err = s.resolveInbox(ctx, msg, opts)
	}
	if err != nil {
		metrics.RecordCDMRejected(rejectReason(err))
		return AttachResult{}, err
	}
	defer unlock()

	res, err := s.attach(ctx, raw, msg, att)
	if err != nil {
		metrics.RecordCDMRejected(rejectReason(err))
		return AttachResult{}, err
	}
	metrics.RecordCDMIngested()
	return res, nil
}

// IngestCDM is the worker entry point. Repeated deliveries of the same
// content are dropped; a failed attachment may be retried.
func (s *Service) IngestCDM(ctx context.Context, job model.CdmJob) error { //nolint:gocritic // hugeParam: matches worker.Ingester
	id := job.ID
	if id == "" {
		id = dedupe.Digest(job.Raw)
	}
	if s.deduper.SeenAndRecord(ctx, id) {
		metrics.RecordCDMDuplicate()
		s.logger.Debug(ctx, "duplicate cdm skipped", logger.String("digest", id), logger.String("origin", job.Origin))
		return nil
	}

	res, err := s.AttachCDM(ctx, job.Raw, job.EventID, AttachOptions{PrimarySatelliteID: job.PrimarySatelliteID})
	if err != nil {
		s.deduper.Unrecord(ctx, id)
		return fmt.Errorf("ingest cdm from %q: %w", job.Origin, err)
	}
	s.logger.Info(ctx, "cdm attached",
		logger.String("origin", job.Origin),
		logger.String("event_id", res.EventID),
		logger.String("update_id", res.UpdateID),
		logger.Bool("event_created", res.EventCreated),
		logger.String("originator", res.Originator),
	)
	return nil
}

// resolveEvent maps the CDM onto an existing event's secondary.
func (s *Service) resolveEvent(ctx context.Context, msg *cdm.Message, eventID string, opts AttachOptions) (attachment, func(), error) {
	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		if isNotFound(err) {
			return attachment{}, nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return attachment{}, nil, err
	}
	unlock := s.lockSatellite(ev.SatelliteID)
	fail := func(err error) (attachment, func(), error) {
		unlock()
		return attachment{}, nil, err
	}

	// Re-read under the lock so a concurrent pass is not overwritten.
	if ev, err = s.store.Event(ctx, eventID); err != nil {
		return fail(err)
	}

	att := attachment{event: ev, primary: msg.Object1, secondary: msg.Object2, primaryAs: cdm.Object1}

	var secondary *model.SpaceObject
	if ev.SpaceObjectID != "" {
		obj, err := s.store.SpaceObject(ctx, ev.SpaceObjectID)
		switch {
		case err == nil:
			secondary = &obj
		case !isNotFound(err):
			return fail(err)
		}
	}
	if secondary == nil {
		if !opts.OverrideSecondary {
			return fail(fmt.Errorf("%w: event %s", ErrSecondaryUnknown, ev.ID))
		}
		return att, unlock, nil
	}

	m1 := objectMatches(msg.Object1, *secondary)
	m2 := objectMatches(msg.Object2, *secondary)
	switch {
	case m1 && m2:
		return fail(ambiguous("both CDM objects match the event secondary", secondary.ID))
	case m1:
		att.primary, att.secondary, att.primaryAs = msg.Object2, msg.Object1, cdm.Object2
	case m2:
	case !opts.OverrideSecondary:
		return fail(ambiguous("neither CDM object matches the event secondary", secondary.ID))
	}
	return att, unlock, nil
}

// resolveInbox finds the operator satellite and secondary for a CDM that
// arrived without an event.
func (s *Service) resolveInbox(ctx context.Context, msg *cdm.Message, opts AttachOptions) (attachment, func(), error) {
	sats, err := s.store.Satellites(ctx)
	if err != nil {
		return attachment{}, nil, err
	}
	objects := make(map[string]model.SpaceObject, len(sats))
	for _, sat := range sats {
		if sat.SpaceObjectID == "" {
			continue
		}
		obj, err := s.store.SpaceObject(ctx, sat.SpaceObjectID)
		switch {
		case err == nil:
			objects[sat.ID] = obj
		case !isNotFound(err):
			return attachment{}, nil, err
		}
	}

	var sat model.Satellite
	if opts.PrimarySatelliteID != "" {
		sat, err = s.store.Satellite(ctx, opts.PrimarySatelliteID)
		if err != nil {
			if isNotFound(err) {
				return attachment{}, nil, fmt.Errorf("%w: %s", ErrSatelliteNotFound, opts.PrimarySatelliteID)
			}
			return attachment{}, nil, err
		}
	} else {
		sat1, ok1 := findOperatorSatellite(sats, objects, msg.Object1)
		sat2, ok2 := findOperatorSatellite(sats, objects, msg.Object2)
		switch {
		case ok1 && ok2 && sat1.ID != sat2.ID:
			return attachment{}, nil, ambiguous("both CDM objects match operator satellites", sat1.ID, sat2.ID)
		case ok1:
			sat = sat1
		case ok2:
			sat = sat2
		default:
			return attachment{}, nil, ambiguous("no CDM object matches an operator satellite")
		}
	}

	var satObj *model.SpaceObject
	if obj, ok := objects[sat.ID]; ok {
		satObj = &obj
	}
	att := attachment{}
	m1 := satelliteMatches(sat, satObj, msg.Object1)
	m2 := satelliteMatches(sat, satObj, msg.Object2)
	switch {
	case m1 && m2:
		return attachment{}, nil, ambiguous("satellite matches both CDM objects", sat.ID)
	case m1:
		att.primary, att.secondary, att.primaryAs = msg.Object1, msg.Object2, cdm.Object1
	case m2:
		att.primary, att.secondary, att.primaryAs = msg.Object2, msg.Object1, cdm.Object2
	default:
		return attachment{}, nil, ambiguous("satellite matches neither CDM object", sat.ID)
	}

	unlock := s.lockSatellite(sat.ID)
	fail := func(err error) (attachment, func(), error) {
		unlock()
		return attachment{}, nil, err
	}

	now := s.now().UTC()
	secondary, err := s.store.FindSpaceObject(ctx, att.secondary.NoradCatID, att.secondary.Name)
	switch {
	case err == nil:
	case isNotFound(err):
		secondary = newSpaceObject(att.secondary, now)
		att.newObject = &secondary
	default:
		return fail(err)
	}

	events, err := s.store.EventsForSatellite(ctx, sat.ID)
	if err != nil {
		return fail(err)
	}
	if ev, ok := lifecycle.Match(events, sat.ID, secondary.ID, msg.TCA, s.matchWindow); ok {
		att.event = ev
	} else {
		att.created = true
		att.event = model.ConjunctionEvent{SatelliteID: sat.ID, SpaceObjectID: secondary.ID}
	}
	return att, unlock, nil
}

// attach scores the CDM geometry and commits event, update and audit
// record together.
func (s *Service) attach(ctx context.Context, raw string, msg *cdm.Message, att attachment) (AttachResult, error) {
	p, err := s.converter.ToGCRS(att.primary.State, msg.RefFrame, msg.TCA)
	if err != nil {
		return AttachResult{}, frameErr(err)
	}
	q, err := s.converter.ToGCRS(att.secondary.State, msg.RefFrame, msg.TCA)
	if err != nil {
		return AttachResult{}, frameErr(err)
	}
	enc := conjunction.NewEncounter(msg.TCA, q.Position().Sub(p.Position()), q.Velocity().Sub(p.Velocity()))

	now := s.now().UTC()
	volume := att.event.ScreeningVolumeKm
	if att.created || volume <= 0 {
		volume = s.volumeKm
	}
	sc := lifecycle.NewScoringContext(model.SourceCDM, now, enc, p, volume)

	base := cdmConfidence
	var cov *orbit.Matrix3
	if msg.CovarianceRTN != nil {
		base = cdmConfidenceWithCovariance
		eci := conjunction.RTNBasis(p.Position(), p.Velocity()).RotateCovarianceToECI(*msg.CovarianceRTN)
		cov = &eci
	}
	side := risk.Side{Confidence: base, SourceType: risk.SourceCommercial}
	sc.Risk = s.engine.Assess(risk.Input{
		Encounter:         enc,
		ScreeningVolumeKm: volume,
		DtHours:           sc.DtHours(),
		Primary:           side,
		Secondary:         side,
		Covariance:        cov,
	})
	metrics.RecordPoC(sc.Risk.Details.PoC.Method)
	sc.Risk.Details.CDM = &risk.CDMDetails{
		Originator:             msg.Originator,
		CreationDate:           msg.CreationDate.UTC().Format(time.RFC3339Nano),
		RefFrame:               msg.RefFrame,
		ReportedMissDistanceKm: msg.MissDistanceKm,
		ReportedRelSpeedKmS:    msg.RelativeSpeedKmS,
		CovariancePresent:      msg.CovarianceRTN != nil,
	}

	record := model.CdmRecord{
		ID:                       uuid.NewString(),
		Format:                   model.CdmFormatKVN,
		Version:                  msg.Version,
		Originator:               msg.Originator,
		CreationDate:             msg.CreationDate,
		RefFrame:                 msg.RefFrame,
		TCA:                      msg.TCA,
		Object1NoradCatID:        msg.Object1.NoradCatID,
		Object2NoradCatID:        msg.Object2.NoradCatID,
		ReportedMissDistanceKm:   msg.MissDistanceKm,
		ReportedRelativeSpeedKmS: msg.RelativeSpeedKmS,
		CovarianceRTN:            msg.CovarianceRTN,
		PrimaryObject:            att.primaryAs,
		Digest:                   dedupe.Digest(raw),
		KVN:                      raw,
		Global:                   msg.KVN.Global,
		Object1:                  msg.KVN.Object1,
		Object2:                  msg.KVN.Object2,
		ReceivedAt:               now,
	}
	sc.Provenance.CdmRecordID = record.ID

	ev := att.event
	if att.created {
		ev = lifecycle.NewEvent(ev.SatelliteID, ev.SpaceObjectID, sc)
	}
	record.EventID = ev.ID

	u := lifecycle.NewUpdate(ev.ID, sc)
	change, changed := lifecycle.ApplySnapshot(&ev, u)

	batch := repository.Batch{
		Events:     []model.ConjunctionEvent{ev},
		Updates:    []model.EventUpdate{u},
		CdmRecords: []model.CdmRecord{record},
	}
	if att.newObject != nil {
		batch.SpaceObjects = append(batch.SpaceObjects, *att.newObject)
	}
	if changed {
		batch.Changes = append(batch.Changes, change)
	}
	if err := s.commit(ctx, batch); err != nil {
		return AttachResult{}, err
	}

	if att.created {
		metrics.RecordEventCreated()
	} else {
		metrics.RecordEventUpdated()
	}
	metrics.RecordUpdateCreated()
	s.publish(ctx, batch.Changes)

	res := AttachResult{
		EventID:           ev.ID,
		UpdateID:          u.ID,
		CdmRecordID:       record.ID,
		EventCreated:      att.created,
		PrimaryObject:     att.primaryAs,
		TCA:               msg.TCA,
		Originator:        msg.Originator,
		RefFrame:          msg.RefFrame,
		CovariancePresent: msg.CovarianceRTN != nil,
	}
	if changed {
		res.Change = &change
	}
	return res, nil
}

// objectMatches compares by NORAD id when both sides have one, otherwise
// by name.
func objectMatches(o cdm.Object, so model.SpaceObject) bool { //nolint:gocritic // hugeParam
	if o.NoradCatID != nil && so.NoradCatID != nil {
		return *o.NoradCatID == *so.NoradCatID
	}
	return model.MatchesName(o.Name, so.Name)
}

// satelliteMatches tries the satellite's space object first, then the
// satellite's own identifiers.
func satelliteMatches(sat model.Satellite, obj *model.SpaceObject, o cdm.Object) bool { //nolint:gocritic // hugeParam
	if obj != nil {
		if obj.NoradCatID != nil && o.NoradCatID != nil {
			return *obj.NoradCatID == *o.NoradCatID
		}
		if obj.Name != "" && o.Name != "" {
			return model.MatchesName(obj.Name, o.Name)
		}
	}
	if model.MatchesNorad(sat.NoradCatID, o.NoradCatID) {
		return true
	}
	return model.MatchesName(sat.Name, o.Name)
}

// findOperatorSatellite looks up by NORAD id, then by satellite name, then
// by the satellite's space object name. sats is in id order.
func findOperatorSatellite(sats []model.Satellite, objects map[string]model.SpaceObject, o cdm.Object) (model.Satellite, bool) { //nolint:gocritic // hugeParam
	if o.NoradCatID != nil {
		for _, sat := range sats {
			obj, ok := objects[sat.ID]
			if (ok && model.MatchesNorad(obj.NoradCatID, o.NoradCatID)) || model.MatchesNorad(sat.NoradCatID, o.NoradCatID) {
				return sat, true
			}
		}
	}
	if o.Name == "" {
		return model.Satellite{}, false
	}
	for _, sat := range sats {
		if model.MatchesName(sat.Name, o.Name) {
			return sat, true
		}
	}
	for _, sat := range sats {
		if obj, ok := objects[sat.ID]; ok && model.MatchesName(obj.Name, o.Name) {
			return sat, true
		}
	}
	return model.Satellite{}, false
}

func newSpaceObject(o cdm.Object, now time.Time) model.SpaceObject { //nolint:gocritic // hugeParam
	name := o.Name
	switch {
	case name != "":
	case o.NoradCatID != nil:
		name = "NORAD " + strconv.Itoa(*o.NoradCatID)
	default:
		name = "Unknown"
	}
	return model.SpaceObject{
		ID:         uuid.NewString(),
		NoradCatID: o.NoradCatID,
		Name:       name,
		ObjectType: unknownObjectType,
		CreatedAt:  now,
	}
}

func frameErr(err error) error {
	var fe *frames.UnsupportedFrameError
	if errors.As(err, &fe) {
		metrics.RecordFrameError(fe.Name)
	}
	return fmt.Errorf("cdm frame conversion: %w", err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, cdm.ErrInvalidCDM):
		return "parse"
	case errors.Is(err, ErrAmbiguousPrimaryMatch):
		return "ambiguous"
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrSatelliteNotFound):
		return "not_found"
	case errors.Is(err, ErrSecondaryUnknown):
		return "secondary_unknown"
	case errors.Is(err, frames.ErrUnsupportedFrame):
		return "frame"
	default:
		return "store"
	}
}
