// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat so every scalar can be overridden from the environment.
// - Provide New() to build a Config with defaults; Load layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"math"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// QueueSize bounds the in-memory analysis job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`

	// Beat detection.
	MinBPM          float64 `koanf:"min_bpm"`
	MaxBPM          float64 `koanf:"max_bpm"`
	FrameSize       int     `koanf:"frame_size"`
	HopSize         int     `koanf:"hop_size"`
	MinDurationMS   int     `koanf:"min_duration_ms"`
	SilenceRMS      float64 `koanf:"silence_rms"`
	MinPeriodicity  float64 `koanf:"min_periodicity"`
	SnapToleranceFr float64 `koanf:"snap_tolerance"`

	// Target layout.
	FieldWidth   float64 `koanf:"field_width"`
	FieldHeight  float64 `koanf:"field_height"`
	LeadTimeMS   float64 `koanf:"lead_time_ms"`
	CircleRadius float64 `koanf:"circle_radius"`
	FieldMargin  float64 `koanf:"field_margin"`
	LayoutSeed   int64   `koanf:"layout_seed"`

	// Timing windows, measured from the beat timestamp in either direction.
	PerfectWindowMS float64 `koanf:"perfect_window_ms"`
	GoodWindowMS    float64 `koanf:"good_window_ms"`
	BadWindowMS     float64 `koanf:"bad_window_ms"`
	LateWindowMS    float64 `koanf:"late_window_ms"`

	// Scoring. Maps are keyed by hit kind: perfect, good, bad, miss.
	HitPoints       map[string]int     `koanf:"hit_points"`
	MaintainsCombo  map[string]bool    `koanf:"maintains_combo"`
	AccuracyWeights map[string]float64 `koanf:"accuracy_weights"`

	// ComboMode selects the multiplier curve: "staircase" or "doubling".
	ComboMode          string  `koanf:"combo_mode"`
	ComboStep          int     `koanf:"combo_step"`
	ComboIncrement     float64 `koanf:"combo_increment"`
	ComboMaxMultiplier float64 `koanf:"combo_max_multiplier"`

	// GradeThresholds maps a grade to the minimum accuracy percentage.
	GradeThresholds map[string]float64 `koanf:"grade_thresholds"`
	// FallbackGrade is awarded below every threshold.
	FallbackGrade string `koanf:"fallback_grade"`

	// TickIntervalMS is the frame period used by the command-line harness.
	TickIntervalMS int `koanf:"tick_interval_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		QueueSize:       16,
		WorkerCount:     runtime.NumCPU(),
		MinBPM:          60,
		MaxBPM:          200,
		FrameSize:       1024,
		HopSize:         512,
		MinDurationMS:   2000,
		SilenceRMS:      1e-4,
		MinPeriodicity:  0.1,
		SnapToleranceFr: 0.15,
		FieldWidth:      1280,
		FieldHeight:     720,
		LeadTimeMS:      1200,
		CircleRadius:    60,
		FieldMargin:     20,
		LayoutSeed:      42,
		PerfectWindowMS: 50,
		GoodWindowMS:    100,
		BadWindowMS:     150,
		LateWindowMS:    150,
		HitPoints: map[string]int{
			"perfect": 300,
			"good":    100,
			"bad":     50,
			"miss":    0,
		},
		MaintainsCombo: map[string]bool{
			"perfect": true,
			"good":    true,
			"bad":     false,
			"miss":    false,
		},
		AccuracyWeights: map[string]float64{
			"perfect": 1.0,
			"good":    0.5,
			"bad":     0.25,
			"miss":    0,
		},
		ComboMode:          "staircase",
		ComboStep:          10,
		ComboIncrement:     0.5,
		ComboMaxMultiplier: 4,
		GradeThresholds: map[string]float64{
			"S": 95,
			"A": 90,
			"B": 80,
			"C": 70,
		},
		FallbackGrade:  "D",
		TickIntervalMS: 16,
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.MinBPM <= 0 || c.MaxBPM <= c.MinBPM:
		return fmt.Errorf("%w: bpm range must satisfy 0 < min_bpm < max_bpm", ErrInvalidConfig)
	case c.FrameSize < 2 || c.FrameSize&(c.FrameSize-1) != 0:
		return fmt.Errorf("%w: frame_size must be a power of two", ErrInvalidConfig)
	case c.HopSize <= 0 || c.HopSize > c.FrameSize:
		return fmt.Errorf("%w: hop_size must be in (0, frame_size]", ErrInvalidConfig)
	case c.LeadTimeMS < 0 || math.IsNaN(c.LeadTimeMS):
		return fmt.Errorf("%w: lead_time_ms must not be negative", ErrInvalidConfig)
	case c.CircleRadius <= 0:
		return fmt.Errorf("%w: circle_radius must be positive", ErrInvalidConfig)
	case c.PerfectWindowMS <= 0 || c.GoodWindowMS < c.PerfectWindowMS || c.BadWindowMS < c.GoodWindowMS:
		return fmt.Errorf("%w: windows must satisfy 0 < perfect <= good <= bad", ErrInvalidConfig)
	case c.LateWindowMS < c.BadWindowMS:
		return fmt.Errorf("%w: late_window_ms must be at least bad_window_ms", ErrInvalidConfig)
	case c.ComboMode != "staircase" && c.ComboMode != "doubling":
		return fmt.Errorf("%w: unknown combo_mode %q", ErrInvalidConfig, c.ComboMode)
	case c.ComboStep <= 0:
		return fmt.Errorf("%w: combo_step must be positive", ErrInvalidConfig)
	case c.ComboMaxMultiplier < 1:
		return fmt.Errorf("%w: combo_max_multiplier must be at least 1", ErrInvalidConfig)
	}
	for kind, w := range c.AccuracyWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: accuracy weight for %s must be within [0, 1]", ErrInvalidConfig, kind)
		}
	}
	return nil
}
