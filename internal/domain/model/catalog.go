// Package model contains the records passed between the catalog, the
// screening core and the event store.
package model

import (
	"strings"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

// Source is a provider of orbit data.
type Source struct {
	ID   string
	Name string
	// Type is tle, commercial, ephemeris or another provider class.
	Type string
}

// SpaceObject is any catalogued object that can be a conjunction secondary.
type SpaceObject struct {
	ID         string
	NoradCatID *int
	Name       string
	ObjectType string
	CreatedAt  time.Time
}

// Satellite is an operator-owned object screened as a primary.
type Satellite struct {
	ID            string
	Name          string
	NoradCatID    *int
	SpaceObjectID string
	CreatedAt     time.Time
}

// MatchesNorad reports whether both ids are known and equal.
func MatchesNorad(a, b *int) bool {
	return a != nil && b != nil && *a == *b
}

// MatchesName compares names case-insensitively, ignoring blanks.
func MatchesName(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// TleRecord is a stored two-line element set.
type TleRecord struct {
	ID            string
	SpaceObjectID string
	NoradCatID    int
	Name          string
	Line1         string
	Line2         string
	Epoch         time.Time
	Source        string
	IngestedAt    time.Time
}

// OrbitState is one stored trajectory estimate. Operator satellites have
// SatelliteID set; catalog-only objects leave it empty.
type OrbitState struct {
	ID            string
	SatelliteID   string
	SpaceObjectID string
	Epoch         time.Time
	Frame         string
	ValidFrom     *time.Time
	ValidTo       *time.Time
	State         orbit.State
	Covariance    *[6][6]float64
	TleRecordID   string
	SourceID      string
	SourceName    string
	SourceType    string
	Confidence    float64
	CreatedAt     time.Time
}

// ValidAt reports whether the state has not expired at now.
func (s OrbitState) ValidAt(now time.Time) bool {
	return s.ValidTo == nil || !s.ValidTo.Before(now)
}
