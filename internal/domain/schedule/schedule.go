// Package schedule turns detected beats into positioned hit circles.
package schedule

import (
	"context"
	"math"
	"math/rand"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
)

// Scheduler lays out one circle per beat.
type Scheduler struct {
	leadTimeMs float64
	radius     float32
	margin     float32
	seed       int64
	logger     logger.Logger
}

// New creates a Scheduler with defaults, then applies opts.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		leadTimeMs: defaultLeadTimeMs,
		radius:     defaultRadius,
		margin:     defaultMargin,
		seed:       defaultSeed,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LeadTimeMs reports the configured lead time.
func (s *Scheduler) LeadTimeMs() float64 { return s.leadTimeMs }

// Generate returns circles in beat order with ids 0..n-1. A circle spawns
// LeadTimeMs before its beat, but never before zero. Beats that are not
// strictly after the previous accepted beat, and beats with negative or
// non-finite timestamps, are skipped.
func (s *Scheduler) Generate(beats []model.Beat, fieldWidth, fieldHeight float32) []model.HitCircle {
	circles := make([]model.HitCircle, 0, len(beats))
	if len(beats) == 0 {
		return circles
	}

	//nolint:gosec // layout only needs to be reproducible
	rng := rand.New(rand.NewSource(s.seed))
	xs := s.axis(fieldWidth)
	ys := s.axis(fieldHeight)

	last := math.Inf(-1)
	var floored, skipped int
	for _, b := range beats {
		t := b.TimestampMs
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t <= last {
			skipped++
			continue
		}
		last = t

		spawn := t - s.leadTimeMs
		if spawn < 0 {
			spawn = 0
			floored++
		}

		c := model.HitCircle{
			ID:              uint64(len(circles)),
			BeatTimestampMs: t,
			SpawnTimeMs:     spawn,
			Radius:          s.radius,
			State:           model.Pending,
			Result:          model.KindNone,
		}
		c.X, c.Y = s.place(rng, xs, ys, circles, spawn)
		circles = append(circles, c)
	}

	ctx := context.Background()
	if floored > 0 {
		s.logger.Warn(ctx, "beats fall inside the lead time, spawn clamped to zero",
			logger.Int("count", floored),
			logger.Float64("lead_time_ms", s.leadTimeMs),
		)
	}
	if skipped > 0 {
		s.logger.Warn(ctx, "skipped out-of-order or invalid beats", logger.Int("count", skipped))
	}
	return circles
}

// span is the closed range of valid centre coordinates along one axis.
type span struct{ lo, hi float32 }

func (s *Scheduler) axis(size float32) span {
	if math.IsNaN(float64(size)) || size < 0 {
		size = 0
	}
	inset := s.radius + s.margin
	if size <= 2*inset {
		return span{lo: size / 2, hi: size / 2}
	}
	return span{lo: inset, hi: size - inset}
}

func (sp span) pick(rng *rand.Rand) float32 {
	return sp.lo + rng.Float32()*(sp.hi-sp.lo)
}

// place draws candidate centres until one does not overlap any circle that
// is still on screen at spawn. The last draw is kept if every attempt overlaps.
func (s *Scheduler) place(rng *rand.Rand, xs, ys span, placed []model.HitCircle, spawn float64) (float32, float32) {
	var x, y float32
	for i := 0; i < placementAttempts; i++ {
		x, y = xs.pick(rng), ys.pick(rng)
		if !s.overlaps(x, y, placed, spawn) {
			break
		}
	}
	return x, y
}

func (s *Scheduler) overlaps(x, y float32, placed []model.HitCircle, spawn float64) bool {
	minDist := float64(2 * s.radius)
	for i := len(placed) - 1; i >= 0; i-- {
		p := placed[i]
		if p.BeatTimestampMs < spawn {
			// earlier circles are ordered by beat, so none of them is visible either
			break
		}
		if math.Hypot(float64(p.X-x), float64(p.Y-y)) < minDist {
			return true
		}
	}
	return false
}
