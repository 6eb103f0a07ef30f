package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/internal/domain/judge"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scoring"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Report summarizes a session.
type Report struct {
	SessionID string
	BPM       float64
	Circles   int
	Score     uint64
	Accuracy  float64
	Grade     string
	MaxCombo  uint32
	Perfects  uint32
	Goods     uint32
	Bads      uint32
	Misses    uint32
}

// Snapshot is a read-only view of a session for renderers.
type Snapshot struct {
	SessionID string
	NowMs     float64
	Circles   []model.HitCircle
	State     model.ScoreState
	Accuracy  float64
	Stopped   bool
	Ended     bool
}

// Session is one play-through of a target set. Ticks are serialized by an
// internal mutex, so Snapshot and Report may be called from other goroutines.
type Session struct {
	id      string
	bpm     float64
	circles int

	mu      sync.Mutex
	judge   *judge.Judge
	scorer  *scoring.Engine
	ledger  dedupe.Ledger
	state   model.ScoreState
	history []model.HitResult
	clock   Clock
	feed    *CursorFeed
	stopped bool
	ended   bool

	logger logger.Logger
}

func newSession(bpm float64, circles []model.HitCircle, j *judge.Judge, scorer *scoring.Engine, clock Clock, log logger.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		bpm:     bpm,
		circles: len(circles),
		judge:   j,
		scorer:  scorer,
		ledger:  dedupe.NewLedger(dedupe.WithCapacity(len(circles))),
		clock:   clock,
		feed:    NewCursorFeed(),
		logger:  log.Named(id),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Feed returns the cursor feed read by Tick.
func (s *Session) Feed() *CursorFeed { return s.feed }

// Tick judges the session at the clock's position against the latest
// cursor snapshot. When the clock reports the end of playback every open
// circle is resolved as a miss and the session ends.
func (s *Session) Tick(ctx context.Context) ([]model.HitResult, error) {
	now := s.clock.PositionMs()
	if s.clock.Ended() {
		return s.End(ctx, now)
	}
	return s.TickAt(ctx, now, s.feed.Load())
}

// TickAt judges the session at nowMs against cursors, bypassing the clock
// and feed. It returns no results once the session has ended.
func (s *Session) TickAt(ctx context.Context, nowMs float64, cursors []model.Cursor) ([]model.HitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if s.ended {
		return nil, nil
	}

	start := time.Now()
	results := s.apply(ctx, s.judge.Tick(nowMs, cursors))
	metrics.RecordTickLatency(float64(time.Since(start).Microseconds()) / 1000)

	if s.judge.Done() {
		s.finish(ctx)
	}
	return results, nil
}

// End resolves every open circle as a miss and ends the session.
func (s *Session) End(ctx context.Context, nowMs float64) ([]model.HitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if s.ended {
		return nil, nil
	}
	results := s.apply(ctx, s.judge.Flush(nowMs))
	s.finish(ctx)
	return results, nil
}

// Record counts a result produced outside Tick, such as one forwarded by a
// remote renderer. The circle is resolved in the judge as well, so a later
// Tick cannot judge it again and snapshots show the recorded kind. The first
// result for a circle wins; duplicates, unknown circle ids and unjudged
// kinds return false.
func (s *Session) Record(ctx context.Context, r model.HitResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.ended || r.CircleID >= uint64(s.circles) {
		return false
	}
	res, ok := s.judge.Resolve(r.CircleID, r.Kind, r.AtMs)
	if !ok {
		return false
	}
	if s.ledger.SeenAndRecord(ctx, res.CircleID) {
		s.logger.Warn(ctx, "recorded circle already counted",
			logger.Uint64("circle", res.CircleID),
		)
		return false
	}
	s.count(ctx, res)
	if s.judge.Done() {
		s.finish(ctx)
	}
	return true
}

// Stop halts the session immediately. Its state stays readable.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if !s.ended {
		metrics.RecordSessionEnded()
	}
	s.logger.Info(ctx, "session stopped", logger.Uint64("score", s.state.Score))
}

// Restart returns the session to its initial state with the same targets.
// The caller rewinds its clock.
func (s *Session) Restart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.ended {
		metrics.RecordSessionStarted()
	}
	s.judge.Reset()
	s.ledger.Reset(ctx)
	s.state = model.ScoreState{}
	s.history = nil
	s.stopped, s.ended = false, false
	s.logger.Info(ctx, "session restarted", logger.Int("circles", s.circles))
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		SessionID: s.id,
		NowMs:     s.judge.NowMs(),
		Circles:   s.judge.Circles(),
		State:     s.state,
		Accuracy:  s.scorer.Accuracy(s.state),
		Stopped:   s.stopped,
		Ended:     s.ended,
	}
}

// History returns every counted result in order.
func (s *Session) History() []model.HitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.HitResult(nil), s.history...)
}

// Report summarizes the session so far.
func (s *Session) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report()
}

// apply counts results that the ledger has not seen. Must be called with s.mu held.
func (s *Session) apply(ctx context.Context, results []model.HitResult) []model.HitResult {
	counted := results[:0]
	for _, r := range results {
		if s.ledger.SeenAndRecord(ctx, r.CircleID) {
			s.logger.Warn(ctx, "duplicate hit result ignored",
				logger.Uint64("circle", r.CircleID),
				logger.String("kind", r.Kind.String()),
			)
			continue
		}
		s.count(ctx, r)
		counted = append(counted, r)
	}
	return counted
}

// count applies a result the ledger has just recorded. Must be called with s.mu held.
func (s *Session) count(_ context.Context, r model.HitResult) {
	s.state = s.scorer.Apply(r, s.state)
	s.history = append(s.history, r)
	metrics.RecordJudgement(r.Kind.String())
}

// finish must be called with s.mu held.
func (s *Session) finish(ctx context.Context) {
	s.ended = true
	metrics.RecordSessionEnded()

	r := s.report()
	s.logger.Info(ctx, "session ended",
		logger.Uint64("score", r.Score),
		logger.Float64("accuracy", r.Accuracy),
		logger.String("grade", r.Grade),
		logger.Int("max_combo", int(r.MaxCombo)),
	)
}

func (s *Session) report() Report {
	acc := s.scorer.Accuracy(s.state)
	return Report{
		SessionID: s.id,
		BPM:       s.bpm,
		Circles:   s.circles,
		Score:     s.state.Score,
		Accuracy:  acc,
		Grade:     s.scorer.Grade(acc),
		MaxCombo:  s.state.MaxCombo,
		Perfects:  s.state.Perfects,
		Goods:     s.state.Goods,
		Bads:      s.state.Bads,
		Misses:    s.state.Misses,
	}
}
