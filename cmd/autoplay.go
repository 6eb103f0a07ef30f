package main

import (
	"math/rand"

	"github.com/okian/cadence/internal/domain/model"
)

// autoplay is a seeded stand-in for a hand tracker. It aims at every circle
// once, releasing at the beat plus a random offset, and skips a fraction of
// circles entirely.
type autoplay struct {
	targets []aim
}

type aim struct {
	circle model.HitCircle
	atMs   float64
	dx, dy float32
	skip   bool
}

func newAutoplay(circles []model.HitCircle, jitterMs, missRate float64, seed int64) *autoplay {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic replay, not security sensitive
	a := &autoplay{targets: make([]aim, len(circles))}
	for i, c := range circles {
		reach := c.Radius / 2
		a.targets[i] = aim{
			circle: c,
			atMs:   c.BeatTimestampMs + (rng.Float64()*2-1)*jitterMs,
			dx:     (rng.Float32()*2 - 1) * reach,
			dy:     (rng.Float32()*2 - 1) * reach,
			skip:   rng.Float64() < missRate,
		}
	}
	return a
}

// cursors returns the pointer positions at nowMs. A circle stays covered
// until its late window would have closed, so slow ticks still land on it.
func (a *autoplay) cursors(nowMs, lateMs float64) []model.Cursor {
	var out []model.Cursor
	for i, t := range a.targets {
		if t.skip || nowMs < t.atMs || nowMs > t.circle.BeatTimestampMs+lateMs {
			continue
		}
		out = append(out, model.Cursor{
			X:          t.circle.X + t.dx,
			Y:          t.circle.Y + t.dy,
			TrackingID: uint32(i % 2), //nolint:gosec // two hands
		})
	}
	return out
}
