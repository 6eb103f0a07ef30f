package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/cadence/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.MinBPM, convey.ShouldEqual, 60)
			convey.So(cfg.MaxBPM, convey.ShouldEqual, 200)
			convey.So(cfg.LeadTimeMS, convey.ShouldEqual, 1200)
			convey.So(cfg.PerfectWindowMS, convey.ShouldEqual, 50)
			convey.So(cfg.LateWindowMS, convey.ShouldEqual, 150)
			convey.So(cfg.HitPoints["perfect"], convey.ShouldEqual, 300)
			convey.So(cfg.MaintainsCombo["bad"], convey.ShouldBeFalse)
			convey.So(cfg.GradeThresholds["S"], convey.ShouldEqual, 95)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the windows are out of order", func() {
			cfg.GoodWindowMS = cfg.PerfectWindowMS - 1

			convey.Convey("Then validation should fail with ErrInvalidConfig", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the late window is shorter than the bad window", func() {
			cfg.LateWindowMS = cfg.BadWindowMS - 1

			convey.Convey("Then validation should fail because the bad tier is unreachable", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "late_window_ms")
			})
		})

		convey.Convey("When the late window equals the bad window", func() {
			cfg.LateWindowMS = cfg.BadWindowMS

			convey.Convey("Then validation should pass", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the frame size is not a power of two", func() {
			cfg.FrameSize = 1000

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the combo mode is unknown", func() {
			cfg.ComboMode = "exponential"

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When an accuracy weight exceeds one", func() {
			cfg.AccuracyWeights["good"] = 1.5

			convey.Convey("Then validation should fail", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LeadTimeMS, convey.ShouldEqual, 1200)
				convey.So(cfg.FrameSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CADENCE_LEAD_TIME_MS", "1500")
			_ = os.Setenv("CADENCE_PERFECT_WINDOW_MS", "40")
			_ = os.Setenv("CADENCE_WORKER_COUNT", "2")
			_ = os.Setenv("CADENCE_COMBO_MODE", "doubling")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LeadTimeMS, convey.ShouldEqual, 1500)
				convey.So(cfg.PerfectWindowMS, convey.ShouldEqual, 40)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
				convey.So(cfg.ComboMode, convey.ShouldEqual, "doubling")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
lead_time_ms: 1000
late_window_ms: 120
bad_window_ms: 120
hit_points:
  perfect: 500
grade_thresholds:
  SS: 99
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CADENCE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values should apply and maps merge with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LeadTimeMS, convey.ShouldEqual, 1000)
				convey.So(cfg.LateWindowMS, convey.ShouldEqual, 120)
				convey.So(cfg.HitPoints["perfect"], convey.ShouldEqual, 500)
				convey.So(cfg.HitPoints["good"], convey.ShouldEqual, 100)
				convey.So(cfg.GradeThresholds["SS"], convey.ShouldEqual, 99)
			})
		})

		convey.Convey("When both file and environment set the same key", func() {
			tmpFile := createTempConfigFile("lead_time_ms: 1000\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CADENCE_CONFIG", tmpFile)
			_ = os.Setenv("CADENCE_LEAD_TIME_MS", "1300")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the environment should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LeadTimeMS, convey.ShouldEqual, 1300)
			})
		})

		convey.Convey("When loading config with an invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CADENCE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-existent file", func() {
			_ = os.Setenv("CADENCE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric environment variable is malformed", func() {
			_ = os.Setenv("CADENCE_FRAME_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the environment produces an invalid combination", func() {
			_ = os.Setenv("CADENCE_MIN_BPM", "220")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"CADENCE_CONFIG",
		"CADENCE_LEAD_TIME_MS",
		"CADENCE_PERFECT_WINDOW_MS",
		"CADENCE_WORKER_COUNT",
		"CADENCE_COMBO_MODE",
		"CADENCE_FRAME_SIZE",
		"CADENCE_MIN_BPM",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "cadence-config-*.yaml")
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
