package service

import (
	"sync"
	"time"
)

// Clock is the authoritative playback position of a session.
type Clock interface {
	// PositionMs returns the current playback position.
	PositionMs() float64
	// Ended reports whether playback has finished.
	Ended() bool
}

// ManualClock is a Clock advanced explicitly by its owner. Tests and the
// offline harness use it to replay a session deterministically.
type ManualClock struct {
	mu    sync.RWMutex
	pos   float64
	ended bool
}

// NewManualClock creates a clock at position zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// PositionMs returns the current position.
func (c *ManualClock) PositionMs() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos
}

// Ended reports whether End was called.
func (c *ManualClock) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

// Advance moves the position forward by ms and returns the new position.
func (c *ManualClock) Advance(ms float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos += ms
	return c.pos
}

// Set jumps to ms.
func (c *ManualClock) Set(ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = ms
}

// End marks playback as finished.
func (c *ManualClock) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
}

// Reset rewinds to zero for a restart.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos, c.ended = 0, false
}

// WallClock follows real time from a start instant and ends after a fixed
// duration, standing in for an audio player.
type WallClock struct {
	start      time.Time
	durationMs float64
	now        func() time.Time
}

// NewWallClock starts a clock now that ends after durationMs.
func NewWallClock(durationMs float64) *WallClock {
	return &WallClock{start: time.Now(), durationMs: durationMs, now: time.Now}
}

// PositionMs returns the time elapsed since start, capped at the duration.
func (c *WallClock) PositionMs() float64 {
	elapsed := float64(c.now().Sub(c.start).Microseconds()) / 1000
	return min(elapsed, c.durationMs)
}

// Ended reports whether the duration has passed.
func (c *WallClock) Ended() bool {
	return float64(c.now().Sub(c.start).Microseconds())/1000 >= c.durationMs
}
