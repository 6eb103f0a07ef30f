// Package service wires beat analysis, target scheduling, judging and
// scoring into an engine an embedding application can drive.
//
// Analysis runs on a background worker pool behind a last-request-wins
// store. Sessions are synchronous: the embedder calls Tick from its own
// frame loop and the service never owns a timer.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/cadence/internal/adapters/mq/queue"
	"github.com/okian/cadence/internal/adapters/mq/worker"
	"github.com/okian/cadence/internal/adapters/repository"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/analysis"
	"github.com/okian/cadence/internal/domain/judge"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/schedule"
	"github.com/okian/cadence/internal/domain/scoring"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Service is the engine facade.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Domain components, built in New.
	detector  *analysis.Detector
	scheduler *schedule.Scheduler
	windows   judge.Windows

	// Adapters, built in Start.
	store *repository.LatestStore
	queue *queue.InMemoryQueue
	pool  *worker.Pool

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the engine configuration. The config should already be
// validated; see config.Load.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending analysis jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.QueueSize = size
		}
	}
}

// WithField sets the playfield size in pixels.
func WithField(width, height float64) Option {
	return func(s *Service) {
		if width > 0 && height > 0 {
			s.cfg.FieldWidth = width
			s.cfg.FieldHeight = height
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Service. Options apply in order, so WithConfig should
// come before options that adjust individual settings.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(),
		store: repository.NewLatestStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	cfg := s.cfg
	s.detector = analysis.New(
		analysis.WithTempoRange(cfg.MinBPM, cfg.MaxBPM),
		analysis.WithFrame(cfg.FrameSize, cfg.HopSize),
		analysis.WithMinDuration(float64(cfg.MinDurationMS)),
		analysis.WithSilenceRMS(cfg.SilenceRMS),
		analysis.WithMinPeriodicity(cfg.MinPeriodicity),
		analysis.WithSnapTolerance(cfg.SnapToleranceFr),
		analysis.WithLogger(s.logger.Named("analysis")),
	)
	s.scheduler = schedule.New(
		schedule.WithLeadTime(cfg.LeadTimeMS),
		schedule.WithRadius(float32(cfg.CircleRadius)),
		schedule.WithMargin(float32(cfg.FieldMargin)),
		schedule.WithSeed(cfg.LayoutSeed),
		schedule.WithLogger(s.logger.Named("schedule")),
	)
	s.windows = judge.Windows{
		PerfectMs: cfg.PerfectWindowMS,
		GoodMs:    cfg.GoodWindowMS,
		BadMs:     cfg.BadWindowMS,
		LateMs:    cfg.LateWindowMS,
	}
	return s
}

// Start launches the analysis queue and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting cadence engine...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.detector, s.store)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "cadence engine started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
	)
	return nil
}

// Stop shuts the worker pool down. Sessions keep working.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping cadence engine...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
	}

	// no worker is left to finish the live request; fail it so waiters return
	if out, err := s.store.Latest(ctx); err == nil && !out.Status.Terminal() {
		if s.store.Publish(ctx, out.Token, model.AnalysisResult{},
			fmt.Errorf("%w: stopped before analysis finished", ErrNotStarted)) {
			s.logger.Info(ctx, "abandoned pending analysis", logger.Uint64("token", out.Token))
		}
	}

	s.started = false
	s.logger.Info(ctx, "cadence engine stopped")
}

// SubmitTrack queues samples for analysis and returns the request token.
// A new submission supersedes any analysis still in flight. An empty
// trackID is replaced by a generated one.
func (s *Service) SubmitTrack(ctx context.Context, trackID string, samples []float32, sampleRate int) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return 0, ErrNotStarted
	}
	if trackID == "" {
		trackID = uuid.NewString()
	}

	token := s.store.Begin(ctx, trackID)
	err := s.queue.Enqueue(ctx, queue.Job{
		Token:      token,
		TrackID:    trackID,
		Samples:    samples,
		SampleRate: sampleRate,
	})
	if err == nil {
		s.logger.Debug(ctx, "track submitted",
			logger.Uint64("token", token),
			logger.String("track", trackID),
			logger.Int("samples", len(samples)),
		)
		return token, nil
	}

	// fail the token so that waiters do not hang on a job that never ran
	s.store.Publish(ctx, token, model.AnalysisResult{}, err)
	switch {
	case errors.Is(err, queue.ErrFull):
		return 0, fmt.Errorf("%w: %w", ErrBackpressure, err)
	case errors.Is(err, queue.ErrClosed):
		return 0, fmt.Errorf("%w: %w", ErrNotStarted, err)
	default:
		return 0, fmt.Errorf("submit track %s: %w", trackID, err)
	}
}

// AwaitAnalysis blocks until the analysis for token finishes. It returns
// the analysis error on failure and repository.ErrSuperseded if a newer
// submission replaced it.
func (s *Service) AwaitAnalysis(ctx context.Context, token uint64) (model.AnalysisResult, error) {
	out, err := s.store.Wait(ctx, token)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	if out.Status == repository.StatusFailed {
		return model.AnalysisResult{}, out.Err
	}
	return out.Result, nil
}

// LatestAnalysis returns the newest submission's progress or outcome.
func (s *Service) LatestAnalysis(ctx context.Context) (repository.Outcome, error) {
	return s.store.Latest(ctx)
}

// Analyze runs the detector on the calling goroutine, bypassing the queue.
func (s *Service) Analyze(ctx context.Context, samples []float32, sampleRate int, onProgress func(int)) (model.AnalysisResult, error) {
	res, err := s.detector.Analyze(ctx, samples, sampleRate, onProgress)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("analyze: %w", err)
	}
	return res, nil
}

// NewSession lays out targets for result and returns a session driven by
// clock. An analysis without playable beats is rejected with
// ErrNothingPlayable.
func (s *Service) NewSession(ctx context.Context, result model.AnalysisResult, clock Clock) (*Session, error) {
	if clock == nil {
		return nil, ErrNoClock
	}

	w, h := float32(s.cfg.FieldWidth), float32(s.cfg.FieldHeight)
	circles := s.scheduler.Generate(result.Beats, w, h)
	metrics.RecordTargetsGenerated(len(circles))
	if len(circles) == 0 {
		return nil, ErrNothingPlayable
	}

	j := judge.New(circles, w, h,
		judge.WithWindows(s.windows),
		judge.WithClampHook(metrics.RecordInputClamped),
		judge.WithLogger(s.logger.Named("judge")),
	)
	session := newSession(result.BPM, circles, j, s.newScorer(), clock, s.logger.Named("session"))
	metrics.RecordSessionStarted()

	s.logger.Info(ctx, "session created",
		logger.String("session", session.ID()),
		logger.Int("circles", len(circles)),
		logger.Float64("bpm", result.BPM),
	)
	return session, nil
}

func (s *Service) newScorer() *scoring.Engine {
	cfg := s.cfg
	step := uint32(max(cfg.ComboStep, 0)) //nolint:gosec // bounded by validation
	multiplier := scoring.Staircase(step, cfg.ComboIncrement, cfg.ComboMaxMultiplier)
	if cfg.ComboMode == "doubling" {
		multiplier = scoring.Doubling(step, cfg.ComboMaxMultiplier)
	}
	return scoring.New(
		scoring.WithRulesFromConfig(cfg.HitPoints, cfg.MaintainsCombo, cfg.AccuracyWeights),
		scoring.WithMultiplier(multiplier),
		scoring.WithGrades(cfg.GradeThresholds, cfg.FallbackGrade),
	)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if out, err := s.store.Latest(ctx); err == nil {
		stats["analysisToken"] = out.Token
		stats["analysisStatus"] = out.Status.String()
		stats["analysisProgress"] = out.Progress
	}
	return stats
}
