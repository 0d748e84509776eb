package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "CONJUNCT_"
	envFileVar = "CONJUNCT_CONFIG"
)

var (
	// ErrLoadConfig wraps failures reading the YAML file or environment.
	ErrLoadConfig = errors.New("load config failed")
	// ErrInvalidConfig lists every setting that failed Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CONJUNCT_CONFIG is set
//  3. env (prefix CONJUNCT_)
func Load(_ context.Context) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CONJUNCT_QUEUE_SIZE -> queue_size. Keys are flat, so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	// The config file path itself is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be text or json", c.LogFormat))
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.WorkerCount <= 0 {
		problems = append(problems, "worker_count must be positive")
	}
	if c.ScreeningVolumeKm <= 0 {
		problems = append(problems, "screening_volume_km must be positive")
	}
	if c.ScreeningHorizonDays < 1 || c.ScreeningHorizonDays > 14 {
		problems = append(problems, "screening_horizon_days must be between 1 and 14")
	}
	if c.ScreeningConcurrency <= 0 {
		problems = append(problems, "screening_concurrency must be positive")
	}
	if c.RiskWatchScore > c.RiskHighScore {
		problems = append(problems, "risk_watch_score must not exceed risk_high_score")
	}
	if c.RiskHighMissKm > c.RiskWatchMissKm {
		problems = append(problems, "risk_high_miss_km must not exceed risk_watch_miss_km")
	}
	if c.HardBodyRadiusKm <= 0 {
		problems = append(problems, "hard_body_radius_km must be positive")
	}
	if c.PoCSlices != 0 && c.PoCSlices < 12 {
		problems = append(problems, "poc_slices must be at least 12")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
