package service

import (
	"slices"
	"sync/atomic"

	"github.com/okian/cadence/internal/domain/model"
)

// CursorFeed hands cursor snapshots from a tracker goroutine to the tick
// loop. Publish stores a private copy; Load never blocks.
type CursorFeed struct {
	current atomic.Pointer[[]model.Cursor]
}

// NewCursorFeed creates an empty feed.
func NewCursorFeed() *CursorFeed {
	return &CursorFeed{}
}

// Publish replaces the current snapshot.
func (f *CursorFeed) Publish(cursors []model.Cursor) {
	snap := slices.Clone(cursors)
	f.current.Store(&snap)
}

// Clear removes every cursor, e.g. when tracking is lost.
func (f *CursorFeed) Clear() {
	f.current.Store(nil)
}

// Load returns the latest snapshot. Callers must not modify it.
func (f *CursorFeed) Load() []model.Cursor {
	if p := f.current.Load(); p != nil {
		return *p
	}
	return nil
}
