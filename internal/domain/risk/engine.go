// Package risk turns encounter geometry and source quality into a risk
// score, a tier, a confidence score and a probability of collision.
package risk

import (
	"sort"

	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/orbit"
)

// Tier is the discrete risk category.
type Tier string

const (
	TierLow   Tier = "low"
	TierWatch Tier = "watch"
	TierHigh  Tier = "high"
)

// Score weights and scales.
const (
	weightSeparation = 0.60
	weightTime       = 0.25
	weightSpeed      = 0.15
	speedScaleKmS    = 15.0

	weightLegacyPoC        = 0.5
	weightLegacyMission    = 0.2
	weightLegacyFuel       = 0.2
	weightLegacyRegulatory = 0.1
	maxDrivers             = 3
)

// Thresholds configures the engine.
type Thresholds struct {
	TimeCriticalHours float64 `json:"time_critical_hours"`
	HighScore         float64 `json:"high_score"`
	WatchScore        float64 `json:"watch_score"`
	HighMissKm        float64 `json:"high_miss_km"`
	WatchMissKm       float64 `json:"watch_miss_km"`
	MaxAgeHours       float64 `json:"max_age_hours"`
	HardBodyRadiusKm  float64 `json:"hard_body_radius_km"`
	PoCAlertThreshold float64 `json:"poc_alert_threshold"`
	PoCSlices         int     `json:"poc_slices"`
}

// DefaultThresholds returns the standard operating thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TimeCriticalHours: 72,
		HighScore:         0.7,
		WatchScore:        0.4,
		HighMissKm:        1.0,
		WatchMissKm:       5.0,
		MaxAgeHours:       72,
		HardBodyRadiusKm:  0.02,
		PoCAlertThreshold: 1e-4,
		PoCSlices:         defaultPoCSlices,
	}
}

// Side describes the quality of one object's estimate.
type Side struct {
	Confidence float64
	SourceType string
	AgeHours   float64
}

// Input is everything one assessment needs.
type Input struct {
	Encounter         conjunction.Encounter
	ScreeningVolumeKm float64
	DtHours           float64
	Primary           Side
	Secondary         Side

	// StabilityStdKm is the scatter of recent miss distances, if known.
	StabilityStdKm *float64

	// Covariance is the combined relative position covariance in GCRS.
	Covariance *orbit.Matrix3
}

// Components are the normalized explanatory factors of a result.
type Components struct {
	MinSeparation float64 `json:"min_separation"`
	TimeToTCA     float64 `json:"time_to_tca"`
	RelativeSpeed float64 `json:"relative_speed"`
	DataAge       float64 `json:"data_age"`
	Stability     float64 `json:"stability"`
}

// SideConfidence records how one side's confidence was adjusted.
type SideConfidence struct {
	Base       float64 `json:"base"`
	SourceType string  `json:"source_type"`
	AgeHours   float64 `json:"age_hours"`
	AgeFactor  float64 `json:"age_factor"`
	Adjusted   float64 `json:"adjusted"`
}

// ConfidenceInputs explains the confidence score.
type ConfidenceInputs struct {
	Primary         SideConfidence `json:"primary"`
	Secondary       SideConfidence `json:"secondary"`
	StabilityStdKm  *float64       `json:"stability_std_km,omitempty"`
	StabilityFactor float64        `json:"stability_factor"`
}

// PoC is the probability of collision and how it was obtained.
type PoC struct {
	Value            float64 `json:"value"`
	Method           string  `json:"method"`
	HardBodyRadiusKm float64 `json:"hard_body_radius_km"`
}

// LegacyComponents is the weighted composite kept for compatibility.
type LegacyComponents struct {
	PoCNormalized float64 `json:"poc_normalized"`
	MissionImpact float64 `json:"mission_impact"`
	FuelProxy     float64 `json:"fuel_proxy"`
	Regulatory    float64 `json:"regulatory"`
	Score         float64 `json:"score"`
}

// CDMDetails is filled in when a result came from an attached CDM.
type CDMDetails struct {
	Originator             string   `json:"originator"`
	CreationDate           string   `json:"creation_date"`
	RefFrame               string   `json:"ref_frame"`
	ReportedMissDistanceKm float64  `json:"reported_miss_distance_km"`
	ReportedRelSpeedKmS    *float64 `json:"reported_relative_speed_km_s,omitempty"`
	CovariancePresent      bool     `json:"covariance_present"`
}

// Details is the explanation attached to every result.
type Details struct {
	MissDistanceKm      float64          `json:"miss_distance_km"`
	RelativeVelocityKmS float64          `json:"relative_velocity_km_s"`
	DtHours             float64          `json:"dt_hours"`
	ScreeningVolumeKm   float64          `json:"screening_volume_km"`
	Components          Components       `json:"components"`
	Thresholds          Thresholds       `json:"thresholds"`
	ConfidenceInputs    ConfidenceInputs `json:"confidence_inputs"`
	PoC                 PoC              `json:"poc"`
	Legacy              LegacyComponents `json:"legacy"`
	CDM                 *CDMDetails      `json:"cdm,omitempty"`
}

// Result is the output of one assessment.
type Result struct {
	Score      float64
	Tier       Tier
	Confidence float64
	Label      string
	Drivers    []string
	Details    Details
}

// Engine scores encounters. It is stateless and safe for concurrent use.
type Engine struct {
	t Thresholds
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(t Thresholds) *Engine {
	d := DefaultThresholds()
	if t.TimeCriticalHours <= 0 {
		t.TimeCriticalHours = d.TimeCriticalHours
	}
	if t.HardBodyRadiusKm <= 0 {
		t.HardBodyRadiusKm = d.HardBodyRadiusKm
	}
	if t.PoCAlertThreshold <= 0 {
		t.PoCAlertThreshold = d.PoCAlertThreshold
	}
	if t.PoCSlices <= 0 {
		t.PoCSlices = d.PoCSlices
	}
	return &Engine{t: t}
}

// Thresholds returns the engine's thresholds.
func (e *Engine) Thresholds() Thresholds { return e.t }

// Assess scores one encounter.
func (e *Engine) Assess(in Input) Result {
	miss := in.Encounter.MissDistanceKm
	speed := in.Encounter.RelativeVelocityKmS
	volume := in.ScreeningVolumeKm

	sep := 0.0
	if volume > 0 {
		sep = Clamp01(1 - miss/volume)
	}
	timeC := Clamp01((e.t.TimeCriticalHours - in.DtHours) / e.t.TimeCriticalHours)
	speedC := Clamp01(speed / speedScaleKmS)
	score := Clamp01(weightSeparation*sep + weightTime*timeC + weightSpeed*speedC)

	tier := e.tier(miss, score)

	primary := e.side(in.Primary)
	secondary := e.side(in.Secondary)
	stability := StabilityFactor(in.StabilityStdKm)
	confidence := Clamp01(min(primary.Adjusted, secondary.Adjusted) * stability)

	maxAge := max(in.Primary.AgeHours, in.Secondary.AgeHours)
	dataAge := 1.0
	if e.t.MaxAgeHours > 0 {
		dataAge = Clamp01(1 - maxAge/e.t.MaxAgeHours)
	}

	poc := e.poc(in.Encounter, in.Covariance)
	legacy := e.legacy(poc.Value, speed, sep)

	return Result{
		Score:      score,
		Tier:       tier,
		Confidence: confidence,
		Label:      Label(confidence),
		Drivers:    drivers(legacy),
		Details: Details{
			MissDistanceKm:      miss,
			RelativeVelocityKmS: speed,
			DtHours:             in.DtHours,
			ScreeningVolumeKm:   volume,
			Components: Components{
				MinSeparation: sep,
				TimeToTCA:     timeC,
				RelativeSpeed: speedC,
				DataAge:       dataAge,
				Stability:     stability,
			},
			Thresholds: e.t,
			ConfidenceInputs: ConfidenceInputs{
				Primary:         primary,
				Secondary:       secondary,
				StabilityStdKm:  in.StabilityStdKm,
				StabilityFactor: stability,
			},
			PoC:    poc,
			Legacy: legacy,
		},
	}
}

func (e *Engine) tier(miss, score float64) Tier {
	switch {
	case miss <= e.t.HighMissKm || score >= e.t.HighScore:
		return TierHigh
	case miss <= e.t.WatchMissKm || score >= e.t.WatchScore:
		return TierWatch
	default:
		return TierLow
	}
}

func (e *Engine) side(s Side) SideConfidence {
	f := AgeFactor(s.SourceType, s.AgeHours, e.t.MaxAgeHours)
	return SideConfidence{
		Base:       s.Confidence,
		SourceType: s.SourceType,
		AgeHours:   s.AgeHours,
		AgeFactor:  f,
		Adjusted:   Clamp01(s.Confidence * f),
	}
}

func (e *Engine) poc(enc conjunction.Encounter, cov *orbit.Matrix3) PoC {
	out := PoC{HardBodyRadiusKm: e.t.HardBodyRadiusKm}
	if cov != nil {
		v, err := EncounterPlanePoC(enc.RRel, enc.VRel, *cov, e.t.HardBodyRadiusKm, e.t.PoCSlices)
		if err == nil {
			out.Value = v
			out.Method = MethodEncounterPlane
			return out
		}
	}
	out.Value = HeuristicPoC(enc.MissDistanceKm, cov)
	out.Method = MethodHeuristic
	return out
}

func (e *Engine) legacy(poc, speed, sep float64) LegacyComponents {
	pocNorm := Clamp01(poc / e.t.PoCAlertThreshold)
	l := LegacyComponents{
		PoCNormalized: pocNorm,
		MissionImpact: Clamp01(speed / speedScaleKmS),
		FuelProxy:     sep,
		Regulatory:    pocNorm,
	}
	l.Score = Clamp01(weightLegacyPoC*l.PoCNormalized +
		weightLegacyMission*l.MissionImpact +
		weightLegacyFuel*l.FuelProxy +
		weightLegacyRegulatory*l.Regulatory)
	return l
}

// drivers ranks the legacy components by weighted contribution; ties keep
// declaration order.
func drivers(l LegacyComponents) []string {
	type contribution struct {
		name  string
		value float64
	}
	cs := []contribution{
		{"poc", weightLegacyPoC * l.PoCNormalized},
		{"mission_impact", weightLegacyMission * l.MissionImpact},
		{"fuel_proxy", weightLegacyFuel * l.FuelProxy},
		{"regulatory", weightLegacyRegulatory * l.Regulatory},
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].value > cs[j].value })
	out := make([]string, 0, maxDrivers)
	for _, c := range cs[:maxDrivers] {
		out = append(out, c.name)
	}
	return out
}
