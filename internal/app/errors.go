package service

import (
	"errors"
	"strings"
)

var (
	// ErrSatelliteNotFound is returned for an unknown operator satellite.
	ErrSatelliteNotFound = errors.New("satellite not found")
	// ErrEventNotFound is returned when a CDM names an unknown event.
	ErrEventNotFound = errors.New("conjunction event not found")
	// ErrSecondaryUnknown means the event has no secondary object to map a
	// CDM onto and no override was given.
	ErrSecondaryUnknown = errors.New("event has no secondary object")
	// ErrAmbiguousPrimaryMatch is matched by every AmbiguousPrimaryMatchError.
	ErrAmbiguousPrimaryMatch = errors.New("ambiguous primary match")
)

// AmbiguousPrimaryMatchError reports that the CDM objects could not be
// mapped onto (primary, secondary) unambiguously.
type AmbiguousPrimaryMatchError struct {
	Reason string

	// Candidates lists the satellites involved, if any.
	Candidates []string
}

func (e *AmbiguousPrimaryMatchError) Error() string {
	if len(e.Candidates) == 0 {
		return ErrAmbiguousPrimaryMatch.Error() + ": " + e.Reason
	}
	return ErrAmbiguousPrimaryMatch.Error() + ": " + e.Reason + " (" + strings.Join(e.Candidates, ", ") + ")"
}

// Is makes errors.Is(err, ErrAmbiguousPrimaryMatch) succeed.
func (e *AmbiguousPrimaryMatchError) Is(target error) bool {
	return target == ErrAmbiguousPrimaryMatch
}

func ambiguous(reason string, candidates ...string) error {
	return &AmbiguousPrimaryMatchError{Reason: reason, Candidates: candidates}
}
