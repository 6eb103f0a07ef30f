package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/okian/cadence/internal/adapters/wavfile"
	app "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/testtrack"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

// Default harness constants.
const (
	defaultSynthBPM        = 120
	defaultSynthSeconds    = 30
	defaultJitterMs        = 30
	defaultMissRate        = 0.05
	defaultSeed            = 1
	serviceMetricsInterval = 500 * time.Millisecond
)

var errNoSamples = errors.New("track has no samples")

// options are the command-line settings of one run.
type options struct {
	track        string
	export       string
	synthBPM     float64
	synthSeconds int
	jitterMs     float64
	missRate     float64
	seed         int64
	tickMs       int
	realtime     bool
	metricsOut   string
}

func main() {
	var opts options
	flag.StringVar(&opts.track, "track", "", "PCM WAV file to play (default: synthesized click track)")
	flag.StringVar(&opts.export, "export", "", "Write the played track to this WAV file")
	flag.Float64Var(&opts.synthBPM, "synth-bpm", defaultSynthBPM, "Tempo of the synthesized click track")
	flag.IntVar(&opts.synthSeconds, "synth-seconds", defaultSynthSeconds, "Length of the synthesized click track")
	flag.Float64Var(&opts.jitterMs, "jitter", defaultJitterMs, "Autoplay timing jitter in ms")
	flag.Float64Var(&opts.missRate, "miss-rate", defaultMissRate, "Fraction of circles autoplay ignores")
	flag.Int64Var(&opts.seed, "seed", defaultSeed, "Autoplay seed")
	flag.IntVar(&opts.tickMs, "tick", 0, "Tick interval in ms (default: tick_interval_ms from config)")
	flag.BoolVar(&opts.realtime, "realtime", false, "Follow the wall clock instead of replaying as fast as possible")
	flag.StringVar(&opts.metricsOut, "metrics", "", "Write Prometheus metrics to this file after the run ('-' for stdout)")
	flag.Parse()

	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	report, err := run(ctx, cfg, opts, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "run failed", logger.Error(err))
		os.Exit(1)
	}
	printReport(os.Stdout, report)

	if opts.metricsOut != "" {
		if err := dumpMetrics(opts.metricsOut); err != nil {
			loggerInstance.Error(ctx, "failed to write metrics", logger.Error(err))
		}
	}
}

// run analyzes the selected track and plays one autoplay session over it.
func run(ctx context.Context, cfg *config.Config, opts options, log logger.Logger) (app.Report, error) {
	samples, sampleRate, trackID, err := loadTrack(opts)
	if err != nil {
		return app.Report{}, err
	}
	if opts.export != "" {
		if err := wavfile.Save(opts.export, samples, sampleRate); err != nil {
			return app.Report{}, fmt.Errorf("export track: %w", err)
		}
		log.Info(ctx, "track exported", logger.String("path", opts.export))
	}

	svc := app.New(app.WithConfig(cfg), app.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		return app.Report{}, fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	updaterCtx, cancelUpdater := context.WithCancel(ctx)
	defer cancelUpdater()
	go startServiceMetricsUpdater(updaterCtx, svc)

	token, err := svc.SubmitTrack(ctx, trackID, samples, sampleRate)
	if err != nil {
		return app.Report{}, err
	}
	result, err := svc.AwaitAnalysis(ctx, token)
	if err != nil {
		return app.Report{}, fmt.Errorf("analyze %s: %w", trackID, err)
	}
	log.Info(ctx, "analysis complete",
		logger.String("track", trackID),
		logger.Float64("bpm", result.BPM),
		logger.Int("beats", len(result.Beats)),
	)

	durationMs := float64(len(samples)) * 1000 / float64(sampleRate)
	tick := opts.tickMs
	if tick <= 0 {
		tick = cfg.TickIntervalMS
	}

	if opts.realtime {
		return playRealtime(ctx, svc, cfg, opts, result, durationMs, tick)
	}
	return playOffline(ctx, svc, cfg, opts, result, durationMs, tick)
}

func loadTrack(opts options) ([]float32, int, string, error) {
	if opts.track == "" {
		samples, _ := testtrack.Click(testtrack.Config{
			BPM:        opts.synthBPM,
			DurationMs: float64(opts.synthSeconds) * 1000,
			OffsetMs:   500,
		})
		if len(samples) == 0 {
			return nil, 0, "", errNoSamples
		}
		return samples, testtrack.DefaultSampleRate, fmt.Sprintf("click-%gbpm", opts.synthBPM), nil
	}

	track, err := wavfile.Load(opts.track)
	if err != nil {
		return nil, 0, "", err
	}
	if len(track.Samples) == 0 {
		return nil, 0, "", fmt.Errorf("%s: %w", opts.track, errNoSamples)
	}
	return track.Samples, track.SampleRate, filepath.Base(opts.track), nil
}

// playOffline replays the session on a manual clock as fast as possible.
func playOffline(ctx context.Context, svc *app.Service, cfg *config.Config, opts options, result model.AnalysisResult, durationMs float64, tick int) (app.Report, error) {
	clock := app.NewManualClock()
	session, err := svc.NewSession(ctx, result, clock)
	if err != nil {
		return app.Report{}, err
	}
	bot := newAutoplay(session.Snapshot().Circles, opts.jitterMs, opts.missRate, opts.seed)

	for !session.Snapshot().Ended {
		if err := ctx.Err(); err != nil {
			session.Stop(ctx)
			return session.Report(), err
		}
		now := clock.Advance(float64(tick))
		if now >= durationMs {
			clock.End()
		}
		session.Feed().Publish(bot.cursors(now, cfg.LateWindowMS))
		if _, err := session.Tick(ctx); err != nil {
			return session.Report(), err
		}
	}
	return session.Report(), nil
}

// playRealtime drives the session from a wall clock at the tick interval.
func playRealtime(ctx context.Context, svc *app.Service, cfg *config.Config, opts options, result model.AnalysisResult, durationMs float64, tick int) (app.Report, error) {
	clock := app.NewWallClock(durationMs)
	session, err := svc.NewSession(ctx, result, clock)
	if err != nil {
		return app.Report{}, err
	}
	bot := newAutoplay(session.Snapshot().Circles, opts.jitterMs, opts.missRate, opts.seed)

	ticker := time.NewTicker(time.Duration(tick) * time.Millisecond)
	defer ticker.Stop()

	for !session.Snapshot().Ended {
		select {
		case <-ctx.Done():
			session.Stop(ctx)
			return session.Report(), ctx.Err()
		case <-ticker.C:
			session.Feed().Publish(bot.cursors(clock.PositionMs(), cfg.LateWindowMS))
			if _, err := session.Tick(ctx); err != nil {
				return session.Report(), err
			}
		}
	}
	return session.Report(), nil
}

// startServiceMetricsUpdater refreshes service gauges while a run is in progress.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if queueSize, ok := stats["queueSize"].(int); ok {
		metrics.UpdateQueueCapacity(queueSize)
	}
}

func printReport(w io.Writer, r app.Report) {
	_, _ = fmt.Fprintf(w, "session  %s\n", r.SessionID)
	_, _ = fmt.Fprintf(w, "bpm      %.2f\n", r.BPM)
	_, _ = fmt.Fprintf(w, "circles  %d\n", r.Circles)
	_, _ = fmt.Fprintf(w, "score    %d\n", r.Score)
	_, _ = fmt.Fprintf(w, "accuracy %.2f%%\n", r.Accuracy)
	_, _ = fmt.Fprintf(w, "grade    %s\n", r.Grade)
	_, _ = fmt.Fprintf(w, "combo    %d\n", r.MaxCombo)
	_, _ = fmt.Fprintf(w, "hits     %d perfect / %d good / %d bad / %d miss\n", r.Perfects, r.Goods, r.Bads, r.Misses)
}

// dumpMetrics writes the engine registry in the Prometheus text format.
func dumpMetrics(path string) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return writeMetrics(w)
}

func writeMetrics(w io.Writer) error {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
