// Package worker runs beat analysis off the interactive path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/cadence/internal/adapters/mq/queue"
	"github.com/okian/cadence/internal/domain/analysis"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Analyzer detects beats in decoded samples.
type Analyzer interface {
	Analyze(ctx context.Context, samples []float32, sampleRate int, onProgress func(int)) (model.AnalysisResult, error)
}

// Publisher receives progress and outcomes for request tokens. Only the
// live token is accepted; stale updates are dropped by the publisher.
type Publisher interface {
	Bind(parent context.Context, token uint64) (context.Context, context.CancelFunc, error)
	Progress(ctx context.Context, token uint64, pct int) bool
	Publish(ctx context.Context, token uint64, result model.AnalysisResult, err error) bool
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes analysis jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand finishes.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	analyzer  Analyzer
	publisher Publisher
	name      string

	// busy counts in-flight jobs across a pool
	busy *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, analyzer Analyzer, publisher Publisher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		analyzer:  analyzer,
		publisher: publisher,
		name:      "worker",
		busy:      new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing analysis job",
					logger.Uint64("token", job.Token),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob analyzes one track and publishes the outcome under its token.
// Superseded jobs are dropped without error.
func (w *InMemoryWorker) processJob(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.busy.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.busy.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	jobCtx, cancel, err := w.publisher.Bind(ctx, job.Token)
	if err != nil {
		w.logger.Debug(ctx, "skipping stale analysis job",
			logger.Uint64("token", job.Token),
			logger.String("track", job.TrackID),
		)
		return nil
	}
	defer cancel()

	w.logger.Debug(ctx, "analysis started",
		logger.Uint64("token", job.Token),
		logger.String("track", job.TrackID),
		logger.Duration("queued", start.Sub(job.EnqueuedAt)),
	)

	analyzeStart := time.Now()
	result, err := w.analyzer.Analyze(jobCtx, job.Samples, job.SampleRate, func(pct int) {
		w.publisher.Progress(jobCtx, job.Token, pct)
	})
	elapsed := time.Since(analyzeStart)
	metrics.RecordAnalysisDuration(float64(elapsed.Milliseconds()))

	if err != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			// superseded while running; the newer request owns the store
			w.logger.Debug(ctx, "analysis cancelled by newer request", logger.Uint64("token", job.Token))
			return nil
		}
		reason := failureReason(err)
		metrics.RecordAnalysisFailure(reason)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", reason)
		w.publisher.Publish(ctx, job.Token, model.AnalysisResult{}, err)
		return fmt.Errorf("analyze track %s: %w", job.TrackID, err)
	}

	if !w.publisher.Publish(ctx, job.Token, result, nil) {
		w.logger.Debug(ctx, "dropped stale analysis result", logger.Uint64("token", job.Token))
		return nil
	}
	metrics.RecordAnalysisCompleted()
	metrics.UpdateDetectedBPM(result.BPM)
	w.logger.Info(ctx, "analysis published",
		logger.Uint64("token", job.Token),
		logger.String("track", job.TrackID),
		logger.Float64("bpm", result.BPM),
		logger.Int("beats", len(result.Beats)),
		logger.Duration("took", elapsed),
	)
	return nil
}

// failureReason maps an analysis error to a metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, analysis.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, analysis.ErrTooShort):
		return "too_short"
	case errors.Is(err, analysis.ErrSilent):
		return "silent"
	case errors.Is(err, analysis.ErrNoPeriodicity):
		return "no_periodicity"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    *atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 means one per CPU.
func NewPool(workerCount int, q Queue, analyzer Analyzer, publisher Publisher) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		busy:    new(atomic.Int64),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, analyzer, publisher, WithName("worker-"+strconv.Itoa(i)))
		w.busy = pool.busy
		pool.workers[i] = w
	}

	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for every worker to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for _, w := range p.workers {
		close(w.shutdown)
	}
	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
