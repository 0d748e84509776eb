package service

import (
	"context"
	"fmt"

	"github.com/okian/conjunct/internal/domain/maneuver"
	"github.com/okian/conjunct/internal/domain/model"
)

// EventDetail is an event with its recent history and avoidance options.
type EventDetail struct {
	Event     model.ConjunctionEvent `json:"event"`
	Updates   []model.EventUpdate    `json:"updates"`
	Maneuvers []maneuver.Option      `json:"maneuvers,omitempty"`
}

// EventDetail loads an event with at most updateLimit updates, newest
// first (0 means all). Maneuver options are proposed for active events only.
func (s *Service) EventDetail(ctx context.Context, eventID string, updateLimit int) (EventDetail, error) {
	ev, err := s.store.Event(ctx, eventID)
	if err != nil {
		if isNotFound(err) {
			return EventDetail{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return EventDetail{}, err
	}
	updates, err := s.store.Updates(ctx, eventID, updateLimit)
	if err != nil {
		return EventDetail{}, err
	}
	d := EventDetail{Event: ev, Updates: updates}
	if ev.IsActive {
		d.Maneuvers = maneuver.Options(ev)
	}
	return d, nil
}

// ActiveEvents lists the satellite's open events ordered by TCA.
func (s *Service) ActiveEvents(ctx context.Context, satelliteID string) ([]model.ConjunctionEvent, error) {
	if _, err := s.store.Satellite(ctx, satelliteID); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSatelliteNotFound, satelliteID)
		}
		return nil, err
	}
	events, err := s.store.EventsForSatellite(ctx, satelliteID)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if ev.IsActive {
			out = append(out, ev)
		}
	}
	return out, nil
}
