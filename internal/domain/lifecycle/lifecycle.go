// Package lifecycle holds the rules that turn scored encounters into
// conjunction events and their update history.
package lifecycle

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/risk"
)

const (
	// DefaultMatchWindow is how far apart two TCAs may be and still be the
	// same encounter.
	DefaultMatchWindow = 6 * time.Hour

	stabilityHistory = 3

	unknownTier  = "unknown"
	unknownLabel = "D"
)

// Provenance links an update to the inputs it was computed from.
type Provenance struct {
	PrimaryOrbitStateID   string
	SecondaryOrbitStateID string
	PrimaryTleRecordID    string
	SecondaryTleRecordID  string
	CdmRecordID           string
}

// ScoringContext carries one encounter from the solver (or a CDM) through
// risk scoring into an update record.
type ScoringContext struct {
	ComputedAt        time.Time
	Source            string
	Encounter         conjunction.Encounter
	ScreeningVolumeKm float64

	// PrimaryAtTCA is the primary's GCRS state at TCA; it defines the RTN basis.
	PrimaryAtTCA orbit.State
	RRelRTN      orbit.Vec3
	VRelRTN      orbit.Vec3
	Risk         risk.Result
	Provenance   Provenance
}

// NewScoringContext projects the relative state onto the primary's RTN frame.
func NewScoringContext(source string, now time.Time, enc conjunction.Encounter, primaryAtTCA orbit.State, volumeKm float64) ScoringContext {
	b := conjunction.RTNBasis(primaryAtTCA.Position(), primaryAtTCA.Velocity())
	return ScoringContext{
		ComputedAt:        now,
		Source:            source,
		Encounter:         enc,
		ScreeningVolumeKm: volumeKm,
		PrimaryAtTCA:      primaryAtTCA,
		RRelRTN:           b.Project(enc.RRel),
		VRelRTN:           b.Project(enc.VRel),
	}
}

// DtHours is the time from ComputedAt to TCA.
func (sc ScoringContext) DtHours() float64 {
	return sc.Encounter.TCA.Sub(sc.ComputedAt).Hours()
}

// Match returns the event for the pair whose TCA is closest to tca, among
// those within window. Ties go to the earlier event in the slice.
func Match(events []model.ConjunctionEvent, satelliteID, spaceObjectID string, tca time.Time, window time.Duration) (model.ConjunctionEvent, bool) {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	best := -1
	var bestGap time.Duration
	for i, ev := range events {
		if ev.SatelliteID != satelliteID || ev.SpaceObjectID != spaceObjectID {
			continue
		}
		gap := ev.TCA.Sub(tca)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	if best < 0 {
		return model.ConjunctionEvent{}, false
	}
	return events[best], true
}

// Stability is the sample stddev of the most recent miss distances.
// Nil when fewer than two usable updates exist.
func Stability(updates []model.EventUpdate) *float64 {
	recent := make([]model.EventUpdate, 0, len(updates))
	for _, u := range updates {
		if !math.IsNaN(u.MissDistanceKm) && !math.IsInf(u.MissDistanceKm, 0) {
			recent = append(recent, u)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].ComputedAt.After(recent[j].ComputedAt)
	})
	if len(recent) > stabilityHistory {
		recent = recent[:stabilityHistory]
	}
	miss := make([]float64, len(recent))
	for i, u := range recent {
		miss[i] = u.MissDistanceKm
	}
	return risk.Stddev(miss)
}

// NewEvent opens an event for a first sighting of an encounter.
func NewEvent(satelliteID, spaceObjectID string, sc ScoringContext) model.ConjunctionEvent {
	return model.ConjunctionEvent{
		ID:                  uuid.NewString(),
		SatelliteID:         satelliteID,
		SpaceObjectID:       spaceObjectID,
		TCA:                 sc.Encounter.TCA,
		MissDistanceKm:      sc.Encounter.MissDistanceKm,
		RelativeVelocityKmS: sc.Encounter.RelativeVelocityKmS,
		ScreeningVolumeKm:   sc.ScreeningVolumeKm,
		IsActive:            true,
		Status:              model.EventStatusOpen,
		LastSeenAt:          sc.ComputedAt,
		CreatedAt:           sc.ComputedAt,
		UpdatedAt:           sc.ComputedAt,
	}
}

// NewUpdate builds the immutable update record for eventID.
func NewUpdate(eventID string, sc ScoringContext) model.EventUpdate {
	drivers := append([]string(nil), sc.Risk.Drivers...)
	return model.EventUpdate{
		ID:                    uuid.NewString(),
		EventID:               eventID,
		ComputedAt:            sc.ComputedAt,
		Source:                sc.Source,
		TCA:                   sc.Encounter.TCA,
		MissDistanceKm:        sc.Encounter.MissDistanceKm,
		RelativeVelocityKmS:   sc.Encounter.RelativeVelocityKmS,
		ScreeningVolumeKm:     sc.ScreeningVolumeKm,
		RRelECI:               sc.Encounter.RRel,
		VRelECI:               sc.Encounter.VRel,
		RRelRTN:               sc.RRelRTN,
		VRelRTN:               sc.VRelRTN,
		RiskTier:              sc.Risk.Tier,
		RiskScore:             sc.Risk.Score,
		ConfidenceScore:       sc.Risk.Confidence,
		ConfidenceLabel:       sc.Risk.Label,
		Drivers:               drivers,
		Details:               sc.Risk.Details,
		PrimaryOrbitStateID:   sc.Provenance.PrimaryOrbitStateID,
		SecondaryOrbitStateID: sc.Provenance.SecondaryOrbitStateID,
		PrimaryTleRecordID:    sc.Provenance.PrimaryTleRecordID,
		SecondaryTleRecordID:  sc.Provenance.SecondaryTleRecordID,
		CdmRecordID:           sc.Provenance.CdmRecordID,
	}
}

// ApplySnapshot copies u onto ev, makes it the current update and
// reactivates the event. It returns the transition, if any.
func ApplySnapshot(ev *model.ConjunctionEvent, u model.EventUpdate) (model.Change, bool) {
	prev := *ev

	ev.TCA = u.TCA
	ev.MissDistanceKm = u.MissDistanceKm
	ev.RelativeVelocityKmS = u.RelativeVelocityKmS
	ev.ScreeningVolumeKm = u.ScreeningVolumeKm
	ev.RiskTier = u.RiskTier
	ev.RiskScore = u.RiskScore
	ev.ConfidenceScore = u.ConfidenceScore
	ev.ConfidenceLabel = u.ConfidenceLabel
	ev.CurrentUpdateID = u.ID
	ev.LastSeenAt = u.ComputedAt
	ev.UpdatedAt = u.ComputedAt
	ev.IsActive = true

	return DetectChange(prev, *ev, u)
}

// DetectChange reports a tier or confidence-label transition between two
// snapshots of one event. Missing tiers read as "unknown" and missing
// labels as "D".
func DetectChange(prev, next model.ConjunctionEvent, u model.EventUpdate) (model.Change, bool) {
	tierFrom := orDefault(string(prev.RiskTier), unknownTier)
	tierTo := orDefault(string(next.RiskTier), unknownTier)
	confFrom := orDefault(prev.ConfidenceLabel, unknownLabel)
	confTo := orDefault(next.ConfidenceLabel, unknownLabel)
	if tierFrom == tierTo && confFrom == confTo {
		return model.Change{}, false
	}

	c := model.Change{
		EventID:        next.ID,
		SatelliteID:    next.SatelliteID,
		SpaceObjectID:  next.SpaceObjectID,
		UpdateID:       u.ID,
		TCA:            next.TCA,
		MissDistanceKm: next.MissDistanceKm,
		RiskTierFrom:   tierFrom,
		RiskTierTo:     tierTo,
		ConfidenceFrom: confFrom,
		ConfidenceTo:   confTo,
		Source:         u.Source,
		DetectedAt:     u.ComputedAt,
	}
	if prev.CurrentUpdateID != "" {
		m := prev.MissDistanceKm
		c.MissDistanceFromKm = &m
	}
	return c, true
}

// Retire returns the ids of the satellite's active future events that were
// not seen in the latest pass. They are marked inactive, never deleted.
func Retire(events []model.ConjunctionEvent, satelliteID string, seen map[string]struct{}, now time.Time) []string {
	var out []string
	for _, ev := range events {
		if ev.SatelliteID != satelliteID || !ev.IsActive || ev.TCA.Before(now) {
			continue
		}
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		out = append(out, ev.ID)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
