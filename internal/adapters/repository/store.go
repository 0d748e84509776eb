// Package repository defines the catalog and event store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/conjunct/internal/domain/model"
)

// Batch is one screening pass or CDM attachment. Apply commits it whole or
// not at all.
type Batch struct {
	// SpaceObjects registered while resolving a CDM secondary.
	SpaceObjects []model.SpaceObject

	// Events are upserted by id.
	Events []model.ConjunctionEvent

	// Updates are appended; an id may only be written once.
	Updates    []model.EventUpdate
	CdmRecords []model.CdmRecord
	Changes    []model.Change
}

// Empty reports whether the batch would write nothing.
func (b Batch) Empty() bool {
	return len(b.SpaceObjects) == 0 && len(b.Events) == 0 && len(b.Updates) == 0 &&
		len(b.CdmRecords) == 0 && len(b.Changes) == 0
}

// Stats summarizes the store contents.
type Stats struct {
	Sources      int            `json:"sources"`
	Satellites   int            `json:"satellites"`
	SpaceObjects int            `json:"space_objects"`
	OrbitStates  int            `json:"orbit_states"`
	TleRecords   int            `json:"tle_records"`
	Events       int            `json:"events"`
	ActiveEvents map[string]int `json:"active_events"`
	Updates      int            `json:"updates"`
	CdmRecords   int            `json:"cdm_records"`
	Changes      int            `json:"changes"`
}

// CleanupResult counts what a retention sweep removed.
type CleanupResult struct {
	OrbitStates int
	TleRecords  int
}

// Catalog is read/write access to the objects being screened.
type Catalog interface {
	PutSource(ctx context.Context, src model.Source) error
	PutSatellite(ctx context.Context, sat model.Satellite) error
	PutSpaceObject(ctx context.Context, obj model.SpaceObject) error
	PutOrbitState(ctx context.Context, st model.OrbitState) error
	PutTleRecord(ctx context.Context, rec model.TleRecord) error

	// Satellite returns ErrNotFound for an unknown id.
	Satellite(ctx context.Context, id string) (model.Satellite, error)
	Satellites(ctx context.Context) ([]model.Satellite, error)
	SpaceObject(ctx context.Context, id string) (model.SpaceObject, error)
	TleRecord(ctx context.Context, id string) (model.TleRecord, error)

	// LatestTleRecord is the object's newest TLE with an epoch at or
	// before at, falling back to its newest TLE overall.
	LatestTleRecord(ctx context.Context, spaceObjectID string, at time.Time) (model.TleRecord, error)

	// FindSpaceObject looks up by NORAD id first, then by name.
	FindSpaceObject(ctx context.Context, noradCatID *int, name string) (model.SpaceObject, error)

	// PrimaryState is the satellite's highest-confidence state valid at
	// now; ties go to the newest epoch.
	PrimaryState(ctx context.Context, satelliteID string, now time.Time) (model.OrbitState, error)

	// SecondaryStates is the newest valid state of every catalog-only
	// space object.
	SecondaryStates(ctx context.Context, now time.Time) ([]model.OrbitState, error)

	// Cleanup drops orbit states and TLE records with epochs before the
	// given cutoffs.
	Cleanup(ctx context.Context, orbitStatesBefore, tleRecordsBefore time.Time) (CleanupResult, error)
}

// Events is read/write access to conjunction events and their history.
type Events interface {
	Event(ctx context.Context, id string) (model.ConjunctionEvent, error)

	// EventsForSatellite returns every event of the satellite, active or not.
	EventsForSatellite(ctx context.Context, satelliteID string) ([]model.ConjunctionEvent, error)

	// ActiveEvents returns active events ordered by TCA.
	ActiveEvents(ctx context.Context) ([]model.ConjunctionEvent, error)

	// Updates returns the event's updates, newest first, at most limit
	// when limit > 0.
	Updates(ctx context.Context, eventID string, limit int) ([]model.EventUpdate, error)
	CdmRecord(ctx context.Context, id string) (model.CdmRecord, error)
	Changes(ctx context.Context, since time.Time) ([]model.Change, error)

	Apply(ctx context.Context, b Batch) error
}

// Store provides the full storage port used by the service.
type Store interface {
	Catalog
	Events

	Stats(ctx context.Context) Stats
	Close() error
}
