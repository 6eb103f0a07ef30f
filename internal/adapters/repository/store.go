// Package repository holds the outcome of the most recent analysis request.
//
// Requests are identified by a monotonically increasing token. Only the
// newest token is live: issuing a new one cancels the work bound to the old
// one, and outcomes published under a stale token are dropped.
package repository

import (
	"context"

	"github.com/okian/cadence/internal/domain/model"
)

// Status is the lifecycle stage of an analysis request.
type Status uint8

// Request statuses.
const (
	StatusQueued Status = iota
	StatusRunning
	StatusDone
	StatusFailed
	StatusSuperseded
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further updates will be accepted.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSuperseded
}

// Outcome is the state of one analysis request.
type Outcome struct {
	Token    uint64
	TrackID  string
	Status   Status
	Progress int // percent, never decreasing
	Result   model.AnalysisResult
	// Err holds the analysis failure when Status is StatusFailed.
	Err error
}

// Store tracks the live analysis request.
type Store interface {
	// Begin issues a new token for trackID and supersedes the previous one.
	Begin(ctx context.Context, trackID string) uint64

	// Bind derives a context from parent that is cancelled as soon as token
	// is superseded. Fails with ErrSuperseded if it already is.
	Bind(parent context.Context, token uint64) (context.Context, context.CancelFunc, error)

	// Progress records pct for token. Returns false if token is not live.
	Progress(ctx context.Context, token uint64, pct int) bool

	// Publish stores the final result or failure for token. Returns false,
	// dropping the outcome, if token is not live or already finished.
	Publish(ctx context.Context, token uint64, result model.AnalysisResult, err error) bool

	// Latest returns the outcome of the newest token, or ErrNotFound.
	Latest(ctx context.Context) (Outcome, error)

	// Wait blocks until token finishes, is superseded (ErrSuperseded) or ctx ends.
	Wait(ctx context.Context, token uint64) (Outcome, error)
}
