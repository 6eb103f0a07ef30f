// Package dedupe tracks which hit results have already been counted.
//
// A session applies each HitResult to its score at most once. The judge
// already emits a single result per circle; the ledger keeps that guarantee
// when results are replayed or forwarded twice by an embedding app.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Ledger records applied circle ids.
type Ledger interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id uint64) bool

	// Reset forgets every id, for a session restart.
	Reset(ctx context.Context)

	Size() int64
}

type ledger struct {
	mu       sync.Mutex
	seen     map[uint64]struct{}
	capacity int
	size     atomic.Int64
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) Ledger {
	l := &ledger{}
	for _, opt := range opts {
		opt(l)
	}
	l.seen = make(map[uint64]struct{}, l.capacity)
	return l
}

func (l *ledger) SeenAndRecord(_ context.Context, id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return true
	}
	l.seen[id] = struct{}{}
	l.size.Add(1)
	return false
}

func (l *ledger) Reset(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.seen)
	l.size.Store(0)
}

// Size returns the number of recorded ids.
func (l *ledger) Size() int64 {
	return l.size.Load()
}
