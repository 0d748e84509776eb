// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
	"time"

	"github.com/okian/conjunct/internal/domain/risk"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CatalogPath is an optional YAML catalog seed.
	CatalogPath string `koanf:"catalog_path"`

	// TLEPath is an optional three-line TLE file loaded as catalog objects.
	TLEPath string `koanf:"tle_path"`

	// CDMInboxDir is watched for new CDM files when set.
	CDMInboxDir   string   `koanf:"cdm_inbox_dir"`
	CDMExtensions []string `koanf:"cdm_extensions"`

	QueueSize   int `koanf:"queue_size"`
	WorkerCount int `koanf:"worker_count"`
	DedupeSize  int `koanf:"dedupe_size"`

	ScreeningHorizonDays int           `koanf:"screening_horizon_days"`
	ScreeningVolumeKm    float64       `koanf:"screening_volume_km"`
	ScreeningConcurrency int           `koanf:"screening_concurrency"`
	ScreeningTimeout     time.Duration `koanf:"screening_timeout"`
	AltitudeWindowKm     float64       `koanf:"altitude_window_km"`
	MatchWindowHours     float64       `koanf:"match_window_hours"`

	TimeCriticalHours           float64 `koanf:"time_critical_hours"`
	RiskHighScore               float64 `koanf:"risk_high_score"`
	RiskWatchScore              float64 `koanf:"risk_watch_score"`
	RiskHighMissKm              float64 `koanf:"risk_high_miss_km"`
	RiskWatchMissKm             float64 `koanf:"risk_watch_miss_km"`
	TLEMaxAgeHoursForConfidence float64 `koanf:"tle_max_age_hours_for_confidence"`
	HardBodyRadiusKm            float64 `koanf:"hard_body_radius_km"`
	PoCAlertThreshold           float64 `koanf:"poc_alert_threshold"`
	PoCSlices                   int     `koanf:"poc_slices"`

	OrbitStateRetentionDays int `koanf:"orbit_state_retention_days"`
	TLERecordRetentionDays  int `koanf:"tle_record_retention_days"`
}

// New creates a Config with defaults.
func New() *Config {
	t := risk.DefaultThresholds()
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		Addr:          ":9080",
		CDMExtensions: []string{".kvn", ".cdm", ".txt"},
		QueueSize:     1_000,
		WorkerCount:   runtime.NumCPU(),
		DedupeSize:    10_000,

		ScreeningHorizonDays: 14,
		ScreeningVolumeKm:    10,
		ScreeningConcurrency: runtime.NumCPU(),
		ScreeningTimeout:     10 * time.Minute,
		AltitudeWindowKm:     200,
		MatchWindowHours:     6,

		TimeCriticalHours:           t.TimeCriticalHours,
		RiskHighScore:               t.HighScore,
		RiskWatchScore:              t.WatchScore,
		RiskHighMissKm:              t.HighMissKm,
		RiskWatchMissKm:             t.WatchMissKm,
		TLEMaxAgeHoursForConfidence: t.MaxAgeHours,
		HardBodyRadiusKm:            t.HardBodyRadiusKm,
		PoCAlertThreshold:           t.PoCAlertThreshold,
		PoCSlices:                   t.PoCSlices,

		OrbitStateRetentionDays: 30,
		TLERecordRetentionDays:  90,
	}
}

// Thresholds maps the risk keys onto the engine's thresholds.
func (c *Config) Thresholds() risk.Thresholds {
	return risk.Thresholds{
		TimeCriticalHours: c.TimeCriticalHours,
		HighScore:         c.RiskHighScore,
		WatchScore:        c.RiskWatchScore,
		HighMissKm:        c.RiskHighMissKm,
		WatchMissKm:       c.RiskWatchMissKm,
		MaxAgeHours:       c.TLEMaxAgeHoursForConfidence,
		HardBodyRadiusKm:  c.HardBodyRadiusKm,
		PoCAlertThreshold: c.PoCAlertThreshold,
		PoCSlices:         c.PoCSlices,
	}
}

// MatchWindow is MatchWindowHours as a duration.
func (c *Config) MatchWindow() time.Duration {
	return time.Duration(c.MatchWindowHours * float64(time.Hour))
}
