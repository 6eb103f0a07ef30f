package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/metrics"
)

// LatestStore is an in-memory, last-request-wins Store.
type LatestStore struct {
	mu      sync.Mutex
	current Outcome
	// live is cancelled when current.Token is superseded
	live    context.Context
	stop    context.CancelFunc
	changed chan struct{}
	updated time.Time
	now     func() time.Time
}

// NewLatestStore creates an empty store.
func NewLatestStore(opts ...Option) *LatestStore {
	s := &LatestStore{
		changed: make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin issues the next token.
func (s *LatestStore) Begin(_ context.Context, trackID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		s.stop()
		if !s.current.Status.Terminal() {
			metrics.RecordAnalysisSuperseded()
		}
	}

	s.live, s.stop = context.WithCancel(context.Background())
	s.current = Outcome{
		Token:   s.current.Token + 1,
		TrackID: trackID,
		Status:  StatusQueued,
	}
	s.touch()
	return s.current.Token
}

// Bind ties a worker context to token.
func (s *LatestStore) Bind(parent context.Context, token uint64) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(token); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	unhook := context.AfterFunc(s.live, cancel)
	return ctx, func() {
		unhook()
		cancel()
	}, nil
}

// Progress records the completion percentage of a running analysis.
func (s *LatestStore) Progress(_ context.Context, token uint64, pct int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.check(token) != nil || s.current.Status.Terminal() {
		return false
	}
	s.current.Status = StatusRunning
	s.current.Progress = max(s.current.Progress, min(max(pct, 0), 100))
	s.touch()
	return true
}

// Publish finishes token with result or err.
func (s *LatestStore) Publish(_ context.Context, token uint64, result model.AnalysisResult, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.check(token) != nil || s.current.Status.Terminal() {
		return false
	}
	if err != nil {
		s.current.Status = StatusFailed
		s.current.Err = err
	} else {
		s.current.Status = StatusDone
		s.current.Result = result
		s.current.Progress = 100
	}
	s.touch()
	return true
}

// Latest returns the newest outcome.
func (s *LatestStore) Latest(_ context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Token == 0 {
		return Outcome{}, ErrNotFound
	}
	return s.current, nil
}

// Wait blocks until token reaches a terminal status.
func (s *LatestStore) Wait(ctx context.Context, token uint64) (Outcome, error) {
	for {
		s.mu.Lock()
		if err := s.check(token); err != nil {
			s.mu.Unlock()
			if errors.Is(err, ErrSuperseded) {
				return Outcome{Token: token, Status: StatusSuperseded}, err
			}
			return Outcome{}, err
		}
		if s.current.Status.Terminal() {
			out := s.current
			s.mu.Unlock()
			return out, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("wait for analysis %d: %w", token, ctx.Err())
		}
	}
}

// UpdatedAt reports when the live outcome last changed.
func (s *LatestStore) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// check must be called with s.mu held.
func (s *LatestStore) check(token uint64) error {
	switch {
	case token == 0 || token > s.current.Token:
		return fmt.Errorf("token %d: %w", token, ErrNotFound)
	case token < s.current.Token:
		return fmt.Errorf("token %d: %w", token, ErrSuperseded)
	default:
		return nil
	}
}

// touch wakes every waiter. Must be called with s.mu held.
func (s *LatestStore) touch() {
	s.updated = s.now()
	close(s.changed)
	s.changed = make(chan struct{})
}
