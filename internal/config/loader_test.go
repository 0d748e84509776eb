package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/conjunct/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ScreeningVolumeKm, convey.ShouldEqual, 10)
				convey.So(cfg.CDMExtensions, convey.ShouldResemble, []string{".kvn", ".cdm", ".txt"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CONJUNCT_ADDR", ":8080")
			_ = os.Setenv("CONJUNCT_QUEUE_SIZE", "500")
			_ = os.Setenv("CONJUNCT_SCREENING_VOLUME_KM", "25.5")
			_ = os.Setenv("CONJUNCT_SCREENING_TIMEOUT", "90s")
			_ = os.Setenv("CONJUNCT_RISK_HIGH_MISS_KM", "0.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.ScreeningVolumeKm, convey.ShouldEqual, 25.5)
				convey.So(cfg.ScreeningTimeout, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.Thresholds().HighMissKm, convey.ShouldEqual, 0.5)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
log_format: json
catalog_path: /etc/conjunct/catalog.yaml
cdm_inbox_dir: /var/spool/cdm
cdm_extensions: [".kvn"]
screening_horizon_days: 7
poc_slices: 360
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CONJUNCT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.CatalogPath, convey.ShouldEqual, "/etc/conjunct/catalog.yaml")
				convey.So(cfg.CDMInboxDir, convey.ShouldEqual, "/var/spool/cdm")
				convey.So(cfg.CDMExtensions, convey.ShouldResemble, []string{".kvn"})
				convey.So(cfg.ScreeningHorizonDays, convey.ShouldEqual, 7)
				convey.So(cfg.PoCSlices, convey.ShouldEqual, 360)
				convey.So(cfg.AltitudeWindowKm, convey.ShouldEqual, 200)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nworker_count: 24\nqueue_size: 300\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CONJUNCT_CONFIG", tmpFile)
			_ = os.Setenv("CONJUNCT_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CONJUNCT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CONJUNCT_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("CONJUNCT_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CONJUNCT_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given a config with several bad ranges", t, func() {
		cfg := config.New()
		cfg.QueueSize = 0
		cfg.ScreeningHorizonDays = 30
		cfg.RiskWatchScore = 0.9
		cfg.PoCSlices = 4
		cfg.LogFormat = "xml"

		err := cfg.Validate()

		convey.Convey("Then every problem is reported at once", func() {
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "queue_size must be positive")
			convey.So(err.Error(), convey.ShouldContainSubstring, "screening_horizon_days")
			convey.So(err.Error(), convey.ShouldContainSubstring, "risk_watch_score")
			convey.So(err.Error(), convey.ShouldContainSubstring, "poc_slices")
			convey.So(err.Error(), convey.ShouldContainSubstring, "log_format")
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"CONJUNCT_CONFIG",
		"CONJUNCT_ADDR",
		"CONJUNCT_QUEUE_SIZE",
		"CONJUNCT_WORKER_COUNT",
		"CONJUNCT_SCREENING_VOLUME_KM",
		"CONJUNCT_SCREENING_TIMEOUT",
		"CONJUNCT_RISK_HIGH_MISS_KM",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "conjunct-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
