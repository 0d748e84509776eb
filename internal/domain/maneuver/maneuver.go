// Package maneuver proposes avoidance burn options for a conjunction event.
package maneuver

import (
	"time"

	"github.com/okian/conjunct/internal/domain/model"
)

// Option is one candidate burn.
type Option struct {
	DeltaVKmS     float64   `json:"delta_v"`
	WindowStart   time.Time `json:"time_window_start"`
	WindowEnd     time.Time `json:"time_window_end"`
	RiskAfter     float64   `json:"risk_after"`
	FuelCost      float64   `json:"fuel_cost"`
	IsRecommended bool      `json:"is_recommended"`
}

const (
	baseDeltaV    = 0.05
	stepDeltaV    = 0.02
	baseReduction = 0.15
	stepReduction = 0.05
	fuelPerDeltaV = 10.0
)

// Options returns three one-hour windows around TCA: two before and one
// after. Later windows cost more Δv and cut more risk; the earliest is
// recommended.
func Options(ev model.ConjunctionEvent) []Option {
	windows := [][2]time.Time{
		{ev.TCA.Add(-2 * time.Hour), ev.TCA.Add(-time.Hour)},
		{ev.TCA.Add(-time.Hour), ev.TCA},
		{ev.TCA, ev.TCA.Add(time.Hour)},
	}
	out := make([]Option, 0, len(windows))
	for i, w := range windows {
		dv := baseDeltaV + float64(i)*stepDeltaV
		out = append(out, Option{
			DeltaVKmS:     dv,
			WindowStart:   w[0],
			WindowEnd:     w[1],
			RiskAfter:     max(0, ev.RiskScore-(baseReduction+float64(i)*stepReduction)),
			FuelCost:      dv * fuelPerDeltaV,
			IsRecommended: i == 0,
		})
	}
	return out
}
