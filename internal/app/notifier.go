package service

import (
	"context"

	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/pkg/logger"
)

// Notifier receives tier and confidence transitions after they are stored.
type Notifier interface {
	Notify(ctx context.Context, changes []model.Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, changes []model.Change)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, changes []model.Change) { f(ctx, changes) }

// LogNotifier writes each change as a structured log line.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier returns a notifier that logs through l.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{log: l}
}

// Notify logs every change.
func (n *LogNotifier) Notify(ctx context.Context, changes []model.Change) {
	for _, c := range changes {
		fields := []logger.Field{
			logger.String("event_id", c.EventID),
			logger.String("satellite_id", c.SatelliteID),
			logger.String("space_object_id", c.SpaceObjectID),
			logger.String("source", c.Source),
			logger.Time("tca", c.TCA),
			logger.Float64("miss_distance_km", c.MissDistanceKm),
			logger.String("tier_from", c.RiskTierFrom),
			logger.String("tier_to", c.RiskTierTo),
			logger.String("confidence_from", c.ConfidenceFrom),
			logger.String("confidence_to", c.ConfidenceTo),
		}
		if c.MissDistanceFromKm != nil {
			fields = append(fields, logger.Float64("miss_distance_from_km", *c.MissDistanceFromKm))
		}
		n.log.Info(ctx, "conjunction changed", fields...)
	}
}
