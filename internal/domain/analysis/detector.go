// Package analysis detects the tempo and beat positions of decoded audio.
//
// The detector builds a spectral-flux onset envelope, picks the beat period
// with the strongest autocorrelation inside the configured tempo range and
// walks a beat grid across the envelope, snapping every grid point to the
// strongest nearby onset. Output depends only on the input samples.
package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
)

// Detector turns mono PCM samples into an AnalysisResult.
// A Detector holds no per-call state and may be shared between goroutines.
type Detector struct {
	minBPM         float64
	maxBPM         float64
	frameSize      int
	hopSize        int
	minDurationMs  float64
	silenceRMS     float64
	minPeriodicity float64
	snapTolerance  float64
	logger         logger.Logger
}

// New creates a Detector with defaults, then applies opts.
func New(opts ...Option) *Detector {
	d := &Detector{
		minBPM:         defaultMinBPM,
		maxBPM:         defaultMaxBPM,
		frameSize:      defaultFrameSize,
		hopSize:        defaultHopSize,
		minDurationMs:  defaultMinDurationMs,
		silenceRMS:     defaultSilenceRMS,
		minPeriodicity: defaultMinPeriodicity,
		snapTolerance:  defaultSnapTolerance,
		logger:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Analyze detects tempo and beats. samples are mono in [-1, 1]; non-finite
// samples are treated as silence. onProgress, when non-nil, receives
// increasing percentages and sees 100 only when a result is returned.
// Failures match ErrAnalysis, except cancellation which wraps ctx.Err().
func (d *Detector) Analyze(
	ctx context.Context,
	samples []float32,
	sampleRate int,
	onProgress func(int),
) (model.AnalysisResult, error) {
	p := newProgress(onProgress)
	p.report(0)

	if err := d.validate(samples, sampleRate); err != nil {
		return model.AnalysisResult{}, err
	}

	env, err := d.onsetEnvelope(ctx, samples, sampleRate, p)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	period, periodicity, err := d.estimatePeriod(ctx, env, sampleRate, p)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	if periodicity < d.minPeriodicity {
		return model.AnalysisResult{}, fmt.Errorf("%w: periodicity %.3f below %.3f",
			ErrNoPeriodicity, periodicity, d.minPeriodicity)
	}

	grid := d.trackBeats(env, period)
	p.report(95)
	if len(grid) < 2 {
		return model.AnalysisResult{}, fmt.Errorf("%w: fewer than two beats", ErrNoPeriodicity)
	}

	result := d.buildResult(env, grid, period, sampleRate)
	d.logger.Debug(ctx, "analysis complete",
		logger.Float64("bpm", result.BPM),
		logger.Int("beats", len(result.Beats)),
		logger.Float64("periodicity", periodicity),
	)
	p.report(100)
	return result, nil
}

func (d *Detector) validate(samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidInput, sampleRate)
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidInput)
	}

	durationMs := float64(len(samples)) / float64(sampleRate) * 1000
	if durationMs < d.minDurationMs || len(samples) < d.frameSize {
		return fmt.Errorf("%w: %.0f ms, need %.0f ms", ErrTooShort, durationMs, d.minDurationMs)
	}

	var sum float64
	for _, s := range samples {
		v := sanitize(s)
		sum += v * v
	}
	if rms := math.Sqrt(sum / float64(len(samples))); rms <= d.silenceRMS {
		return fmt.Errorf("%w: rms %.2e", ErrSilent, rms)
	}
	return nil
}

func (d *Detector) buildResult(env []float64, grid []gridBeat, period float64, sampleRate int) model.AnalysisResult {
	var peak float64
	for _, v := range env {
		peak = max(peak, v)
	}

	beats := make([]model.Beat, 0, len(grid))
	for _, g := range grid {
		var strength float64
		if peak > 0 {
			strength = env[g.frame] / peak
		}
		beats = append(beats, model.Beat{
			TimestampMs: d.frameTimeMs(g.frame, sampleRate),
			Strength:    float32(min(max(strength, 0), 1)),
		})
	}

	// The grid period is a fallback for degenerate fits.
	bpm := 60000 / (period * float64(d.hopSize) / float64(sampleRate) * 1000)
	if beatMs := fitBeatInterval(grid, beats); beatMs > 0 {
		bpm = 60000 / beatMs
	}
	return model.AnalysisResult{
		BPM:   math.Round(bpm*100) / 100,
		Beats: beats,
	}
}

// frameTimeMs reports the centre of frame f.
func (d *Detector) frameTimeMs(f, sampleRate int) float64 {
	return float64(f*d.hopSize+d.frameSize/2) / float64(sampleRate) * 1000
}

// fitBeatInterval is the least-squares slope of beat time over grid index.
func fitBeatInterval(grid []gridBeat, beats []model.Beat) float64 {
	n := float64(len(grid))
	var sk, st float64
	for i, g := range grid {
		sk += float64(g.index)
		st += beats[i].TimestampMs
	}
	mk, mt := sk/n, st/n

	var num, den float64
	for i, g := range grid {
		dk := float64(g.index) - mk
		num += dk * (beats[i].TimestampMs - mt)
		den += dk * dk
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func sanitize(s float32) float64 {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
