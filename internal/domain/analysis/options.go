package analysis

import "github.com/okian/cadence/pkg/logger"

// Default detector configuration constants.
const (
	defaultMinBPM         = 60
	defaultMaxBPM         = 200
	defaultFrameSize      = 1024
	defaultHopSize        = 512
	defaultMinDurationMs  = 2000
	defaultSilenceRMS     = 1e-4
	defaultMinPeriodicity = 0.1
	defaultSnapTolerance  = 0.15
)

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithTempoRange bounds the tempo search. Ignored unless 0 < minBPM < maxBPM.
func WithTempoRange(minBPM, maxBPM float64) Option {
	return func(d *Detector) {
		if minBPM > 0 && maxBPM > minBPM {
			d.minBPM = minBPM
			d.maxBPM = maxBPM
		}
	}
}

// WithFrame sets the analysis frame and hop in samples.
// frameSize must be a power of two and hop must not exceed it.
func WithFrame(frameSize, hopSize int) Option {
	return func(d *Detector) {
		if frameSize >= 2 && frameSize&(frameSize-1) == 0 && hopSize > 0 && hopSize <= frameSize {
			d.frameSize = frameSize
			d.hopSize = hopSize
		}
	}
}

// WithMinDuration sets the shortest accepted track length.
func WithMinDuration(ms float64) Option {
	return func(d *Detector) {
		if ms > 0 {
			d.minDurationMs = ms
		}
	}
}

// WithSilenceRMS sets the RMS level below which a track counts as silent.
func WithSilenceRMS(rms float64) Option {
	return func(d *Detector) {
		if rms >= 0 {
			d.silenceRMS = rms
		}
	}
}

// WithMinPeriodicity sets how far the normalized autocorrelation of the
// chosen period must rise above the median over the tempo range. Noise alone
// stays below 0.1; clean click tracks reach about 1.
func WithMinPeriodicity(v float64) Option {
	return func(d *Detector) {
		if v > 0 && v < 1 {
			d.minPeriodicity = v
		}
	}
}

// WithSnapTolerance sets how far, as a fraction of the beat period, a grid
// point may move to reach an onset.
func WithSnapTolerance(fraction float64) Option {
	return func(d *Detector) {
		if fraction > 0 && fraction < 0.5 {
			d.snapTolerance = fraction
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}
