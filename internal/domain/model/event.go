package model

import (
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
	"github.com/okian/conjunct/internal/domain/risk"
)

// Event status values.
const (
	EventStatusOpen = "open"
)

// Update and change sources.
const (
	SourceScreening = "screening"
	SourceCDM       = "cdm"
)

// ConjunctionEvent is one predicted close approach between a satellite and
// a space object. The snapshot fields mirror the current update. Events are
// never deleted; stale ones are marked inactive.
type ConjunctionEvent struct {
	ID                  string
	SatelliteID         string
	SpaceObjectID       string
	TCA                 time.Time
	MissDistanceKm      float64
	RelativeVelocityKmS float64
	ScreeningVolumeKm   float64
	RiskTier            risk.Tier
	RiskScore           float64
	ConfidenceScore     float64
	ConfidenceLabel     string
	IsActive            bool
	Status              string
	CurrentUpdateID     string
	LastSeenAt          time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EventUpdate is an append-only record of one scoring pass.
type EventUpdate struct {
	ID                  string
	EventID             string
	ComputedAt          time.Time
	Source              string
	TCA                 time.Time
	MissDistanceKm      float64
	RelativeVelocityKmS float64
	ScreeningVolumeKm   float64
	RRelECI             orbit.Vec3
	VRelECI             orbit.Vec3
	RRelRTN             orbit.Vec3
	VRelRTN             orbit.Vec3
	RiskTier            risk.Tier
	RiskScore           float64
	ConfidenceScore     float64
	ConfidenceLabel     string
	Drivers             []string
	Details             risk.Details

	PrimaryOrbitStateID   string
	SecondaryOrbitStateID string
	PrimaryTleRecordID    string
	SecondaryTleRecordID  string
	CdmRecordID           string
}

// Change records a tier or confidence-label transition of an event.
type Change struct {
	EventID            string
	SatelliteID        string
	SpaceObjectID      string
	UpdateID           string
	TCA                time.Time
	MissDistanceKm     float64
	MissDistanceFromKm *float64
	RiskTierFrom       string
	RiskTierTo         string
	ConfidenceFrom     string
	ConfidenceTo       string
	Source             string
	DetectedAt         time.Time
}
