// Package judge resolves hit circles against cursor positions over time.
//
// A Judge is a per-session state machine driven by Tick. Every tick runs
// three steps in order: activation, expiry and hit detection. Each circle
// resolves exactly once and its state never moves backwards. Malformed
// input is corrected rather than rejected, so Tick never fails.
//
// A Judge is not safe for concurrent use; callers serialize ticks.
package judge

import (
	"context"
	"math"
	"slices"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
)

// Inputs reported to the clamp hook.
const (
	InputTime          = "time"
	InputCursor        = "cursor"
	InputCursorDropped = "cursor_dropped"
)

// Judge owns a session's circles.
type Judge struct {
	circles []model.HitCircle
	windows Windows
	width   float32
	height  float32

	// circles before head are resolved; circles from next on are not yet spawned
	head int
	next int
	now  float64

	cursors []model.Cursor
	onClamp func(string)
	logger  logger.Logger
}

// New creates a Judge over a copy of circles, ordered by spawn time. Circles
// start Pending regardless of the state they are passed in.
func New(circles []model.HitCircle, fieldWidth, fieldHeight float32, opts ...Option) *Judge {
	j := &Judge{
		circles: slices.Clone(circles),
		windows: DefaultWindows(),
		width:   max(fieldWidth, 0),
		height:  max(fieldHeight, 0),
		onClamp: func(string) {},
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(j)
	}
	slices.SortStableFunc(j.circles, func(a, b model.HitCircle) int {
		switch {
		case a.SpawnTimeMs < b.SpawnTimeMs:
			return -1
		case a.SpawnTimeMs > b.SpawnTimeMs:
			return 1
		default:
			return 0
		}
	})
	j.Reset()
	return j
}

// Tick advances the session to nowMs and returns the circles resolved by it:
// expiries first, then hits, each in circle order.
func (j *Judge) Tick(nowMs float64, cursors []model.Cursor) []model.HitResult {
	now := j.clampTime(nowMs)
	j.activate(now)

	var results []model.HitResult
	for i := j.head; i < j.next; i++ {
		c := &j.circles[i]
		if c.State == model.Active && now > c.BeatTimestampMs+j.windows.LateMs {
			results = resolve(results, c, model.Miss, now)
		}
	}

	if points := j.sanitize(cursors); len(points) > 0 {
		for i := j.head; i < j.next; i++ {
			c := &j.circles[i]
			if c.State != model.Active {
				continue
			}
			kind := j.classify(math.Abs(now - c.BeatTimestampMs))
			if kind == model.KindNone || !touched(c, points) {
				continue
			}
			results = resolve(results, c, kind, now)
		}
	}

	j.advanceHead()
	return results
}

// Flush resolves every remaining circle as a miss. Call it when playback
// ends so that a finished session has no open circles.
func (j *Judge) Flush(nowMs float64) []model.HitResult {
	now := j.clampTime(nowMs)
	j.activate(now)

	var results []model.HitResult
	for i := j.head; i < len(j.circles); i++ {
		c := &j.circles[i]
		if c.State != model.Resolved {
			results = resolve(results, c, model.Miss, now)
		}
	}
	j.next = len(j.circles)
	j.advanceHead()

	if len(results) > 0 {
		j.logger.Debug(context.Background(), "flushed unresolved circles",
			logger.Int("count", len(results)),
			logger.Float64("now_ms", now),
		)
	}
	return results
}

// Resolve settles circle id as kind outside of Tick, for results judged
// elsewhere such as on a remote renderer. It refuses unknown ids, unjudged
// kinds and circles that have already resolved. A non-finite atMs is
// replaced by the session time.
func (j *Judge) Resolve(id uint64, kind model.HitKind, atMs float64) (model.HitResult, bool) {
	if kind == model.KindNone || kind > model.Miss {
		return model.HitResult{}, false
	}
	i := slices.IndexFunc(j.circles, func(c model.HitCircle) bool { return c.ID == id })
	if i < 0 || j.circles[i].State == model.Resolved {
		return model.HitResult{}, false
	}
	if math.IsNaN(atMs) || math.IsInf(atMs, 0) {
		j.onClamp(InputTime)
		atMs = j.now
	}

	results := resolve(nil, &j.circles[i], kind, atMs)
	j.advanceHead()
	return results[0], true
}

// Reset returns every circle to Pending and rewinds the session clock.
func (j *Judge) Reset() {
	for i := range j.circles {
		j.circles[i].State = model.Pending
		j.circles[i].Result = model.KindNone
	}
	j.head, j.next, j.now = 0, 0, 0
}

// Circles returns a snapshot of every circle for rendering.
func (j *Judge) Circles() []model.HitCircle {
	return slices.Clone(j.circles)
}

// Done reports whether every circle has resolved.
func (j *Judge) Done() bool { return j.head == len(j.circles) }

// Remaining returns the number of unresolved circles.
func (j *Judge) Remaining() int {
	n := 0
	for i := j.head; i < len(j.circles); i++ {
		if j.circles[i].State != model.Resolved {
			n++
		}
	}
	return n
}

// NowMs returns the last accepted session time.
func (j *Judge) NowMs() float64 { return j.now }

// Windows returns the timing windows in force.
func (j *Judge) Windows() Windows { return j.windows }

// clampTime keeps the session clock finite, non-negative and non-decreasing.
func (j *Judge) clampTime(nowMs float64) float64 {
	if math.IsNaN(nowMs) || math.IsInf(nowMs, 0) || nowMs < j.now {
		j.onClamp(InputTime)
		return j.now
	}
	j.now = nowMs
	return nowMs
}

func (j *Judge) activate(now float64) {
	for j.next < len(j.circles) && j.circles[j.next].SpawnTimeMs <= now {
		if c := &j.circles[j.next]; c.State == model.Pending {
			c.State = model.Active
		}
		j.next++
	}
}

func (j *Judge) advanceHead() {
	for j.head < len(j.circles) && j.circles[j.head].State == model.Resolved {
		j.head++
	}
}

func (j *Judge) classify(offset float64) model.HitKind {
	switch {
	case offset <= j.windows.PerfectMs:
		return model.Perfect
	case offset <= j.windows.GoodMs:
		return model.Good
	case offset <= j.windows.BadMs:
		return model.Bad
	default:
		return model.KindNone
	}
}

// sanitize drops cursors with NaN coordinates and clamps the rest into the
// field. The returned slice is reused by the next call.
func (j *Judge) sanitize(cursors []model.Cursor) []model.Cursor {
	j.cursors = j.cursors[:0]
	for _, c := range cursors {
		if math.IsNaN(float64(c.X)) || math.IsNaN(float64(c.Y)) {
			j.onClamp(InputCursorDropped)
			continue
		}
		x := min(max(c.X, 0), j.width)
		y := min(max(c.Y, 0), j.height)
		if x != c.X || y != c.Y {
			j.onClamp(InputCursor)
		}
		j.cursors = append(j.cursors, model.Cursor{X: x, Y: y, TrackingID: c.TrackingID})
	}
	return j.cursors
}

// touched reports whether any cursor lies within the circle, edge included.
func touched(c *model.HitCircle, cursors []model.Cursor) bool {
	r := float64(c.Radius)
	for _, p := range cursors {
		dx := float64(p.X - c.X)
		dy := float64(p.Y - c.Y)
		if dx*dx+dy*dy <= r*r {
			return true
		}
	}
	return false
}

func resolve(results []model.HitResult, c *model.HitCircle, kind model.HitKind, at float64) []model.HitResult {
	c.State = model.Resolved
	c.Result = kind
	return append(results, model.HitResult{CircleID: c.ID, Kind: kind, AtMs: at})
}
