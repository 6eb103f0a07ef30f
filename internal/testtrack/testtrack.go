// Package testtrack synthesizes deterministic audio for tests and demos.
//
// Click tracks place a short decaying sine burst on every beat, which gives
// the detector sharp broadband onsets at known positions.
package testtrack

import (
	"math"
	"math/rand"
)

// Default synthesis constants.
const (
	DefaultSampleRate = 44100
	defaultClickMs    = 30
	defaultClickHz    = 1000
	defaultAmplitude  = 0.8
)

// Config describes a click track.
type Config struct {
	SampleRate int
	BPM        float64
	DurationMs float64
	OffsetMs   float64 // time of the first click
	Amplitude  float64
	ClickHz    float64
	ClickMs    float64
	NoiseLevel float64 // amplitude of uniform background noise, 0 for none
	Seed       int64   // seeds the noise source
	// Accent scales every fourth click, which makes beat strengths vary.
	Accent float64
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Amplitude == 0 {
		c.Amplitude = defaultAmplitude
	}
	if c.ClickHz == 0 {
		c.ClickHz = defaultClickHz
	}
	if c.ClickMs == 0 {
		c.ClickMs = defaultClickMs
	}
	if c.Accent == 0 {
		c.Accent = 1
	}
	return c
}

// Click renders a mono click track and returns it with the beat times in ms.
func Click(cfg Config) ([]float32, []float64) {
	cfg = cfg.withDefaults()
	n := int(cfg.DurationMs * float64(cfg.SampleRate) / 1000)
	if n <= 0 {
		return nil, nil
	}
	out := make([]float32, n)

	if cfg.NoiseLevel > 0 {
		rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic noise for reproducible tracks
		for i := range out {
			out[i] = float32((rng.Float64()*2 - 1) * cfg.NoiseLevel)
		}
	}

	var beats []float64
	if cfg.BPM <= 0 {
		return out, beats
	}
	periodMs := 60000 / cfg.BPM
	clickLen := int(cfg.ClickMs * float64(cfg.SampleRate) / 1000)
	decay := 5.0 / float64(clickLen)

	for i := 0; ; i++ {
		at := cfg.OffsetMs + float64(i)*periodMs
		start := int(at * float64(cfg.SampleRate) / 1000)
		if start >= n {
			break
		}
		amp := cfg.Amplitude
		if i%4 != 0 {
			amp /= cfg.Accent
		}
		beats = append(beats, at)
		for j := 0; j < clickLen && start+j < n; j++ {
			t := float64(j) / float64(cfg.SampleRate)
			v := amp * math.Exp(-decay*float64(j)) * math.Sin(2*math.Pi*cfg.ClickHz*t)
			out[start+j] += float32(v)
		}
	}
	return out, beats
}

// Silence returns durationMs of digital silence.
func Silence(sampleRate int, durationMs float64) []float32 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return make([]float32, int(durationMs*float64(sampleRate)/1000))
}

// Noise returns durationMs of seeded uniform noise with the given amplitude.
func Noise(sampleRate int, durationMs, level float64, seed int64) []float32 {
	out, _ := Click(Config{SampleRate: sampleRate, DurationMs: durationMs, NoiseLevel: level, Seed: seed})
	return out
}
