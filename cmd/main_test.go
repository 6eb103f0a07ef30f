package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/cadence/internal/adapters/wavfile"
	app "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testOptions() options {
	return options{
		synthBPM:     120,
		synthSeconds: 8,
		seed:         1,
		tickMs:       10,
	}
}

func TestRun(t *testing.T) {
	convey.Convey("Given the harness with a synthesized click track", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		cfg := config.New()
		cfg.WorkerCount = 1
		opts := testOptions()

		convey.Convey("When autoplay aims exactly at every beat", func() {
			report, err := run(ctx, cfg, opts, logger.Get())

			convey.Convey("Then every circle should be a perfect hit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(report.BPM, convey.ShouldAlmostEqual, 120, 1)
				convey.So(report.Circles, convey.ShouldBeGreaterThan, 10)
				convey.So(report.Perfects, convey.ShouldEqual, report.Circles)
				convey.So(report.Grade, convey.ShouldEqual, "S")
			})
		})

		convey.Convey("When autoplay ignores every circle", func() {
			opts.missRate = 1
			report, err := run(ctx, cfg, opts, logger.Get())

			convey.Convey("Then the end of playback should miss them all", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(report.Misses, convey.ShouldEqual, report.Circles)
				convey.So(report.Score, convey.ShouldEqual, 0)
				convey.So(report.Grade, convey.ShouldEqual, "D")
			})
		})

		convey.Convey("When the track is exported and replayed from disk", func() {
			path := filepath.Join(t.TempDir(), "click.wav")
			opts.export = path
			first, err := run(ctx, cfg, opts, logger.Get())
			convey.So(err, convey.ShouldBeNil)

			opts.export = ""
			opts.track = path
			second, err := run(ctx, cfg, opts, logger.Get())

			convey.Convey("Then both runs should see the same beats", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(second.Circles, convey.ShouldAlmostEqual, first.Circles, 1)
				convey.So(second.BPM, convey.ShouldAlmostEqual, first.BPM, 0.5)
			})
		})

		convey.Convey("When the track file does not exist", func() {
			opts.track = filepath.Join(t.TempDir(), "missing.wav")
			_, err := run(ctx, cfg, opts, logger.Get())

			convey.Convey("Then the run should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the track is too quiet to analyze", func() {
			path := filepath.Join(t.TempDir(), "quiet.wav")
			convey.So(wavfile.Save(path, make([]float32, 44100*3), 44100), convey.ShouldBeNil)
			opts.track = path
			_, err := run(ctx, cfg, opts, logger.Get())

			convey.Convey("Then the analysis error should surface", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the synthesized track is empty", func() {
			opts.synthSeconds = 0
			_, err := run(ctx, cfg, opts, logger.Get())

			convey.Convey("Then the run should be rejected", func() {
				convey.So(errors.Is(err, errNoSamples), convey.ShouldBeTrue)
			})
		})
	})
}

func TestAutoplay(t *testing.T) {
	convey.Convey("Given autoplay over two circles", t, func() {
		circles := []model.HitCircle{
			{ID: 0, BeatTimestampMs: 1000, X: 100, Y: 100, Radius: 60},
			{ID: 1, BeatTimestampMs: 2000, X: 300, Y: 300, Radius: 60},
		}

		convey.Convey("When it has no jitter", func() {
			bot := newAutoplay(circles, 0, 0, 7)

			convey.Convey("Then it should cover a circle from its beat until the late window closes", func() {
				convey.So(bot.cursors(999, 150), convey.ShouldBeEmpty)
				convey.So(bot.cursors(1000, 150), convey.ShouldHaveLength, 1)
				convey.So(bot.cursors(1150, 150), convey.ShouldHaveLength, 1)
				convey.So(bot.cursors(1151, 150), convey.ShouldBeEmpty)
			})

			convey.Convey("Then the cursor should land inside the circle", func() {
				c := bot.cursors(2000, 150)[0]
				convey.So(c.X, convey.ShouldBeBetweenOrEqual, 270, 330)
				convey.So(c.Y, convey.ShouldBeBetweenOrEqual, 270, 330)
			})
		})

		convey.Convey("When it misses everything", func() {
			bot := newAutoplay(circles, 20, 1, 7)

			convey.Convey("Then it should never produce a cursor", func() {
				convey.So(bot.cursors(1000, 150), convey.ShouldBeEmpty)
				convey.So(bot.cursors(2000, 150), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the same seed is reused", func() {
			a := newAutoplay(circles, 25, 0.5, 11)
			b := newAutoplay(circles, 25, 0.5, 11)

			convey.Convey("Then the aims should be identical", func() {
				convey.So(a.targets, convey.ShouldResemble, b.targets)
			})
		})
	})
}

func TestReportAndMetrics(t *testing.T) {
	convey.Convey("Given a finished report", t, func() {
		var buf bytes.Buffer
		printReport(&buf, app.Report{SessionID: "abc", BPM: 120, Circles: 4, Score: 900, Accuracy: 87.5, Grade: "B", Perfects: 3, Misses: 1})

		convey.Convey("Then it should print every summary line", func() {
			out := buf.String()
			convey.So(out, convey.ShouldContainSubstring, "session  abc")
			convey.So(out, convey.ShouldContainSubstring, "accuracy 87.50%")
			convey.So(out, convey.ShouldContainSubstring, "3 perfect / 0 good / 0 bad / 1 miss")
		})
	})

	convey.Convey("Given the engine metrics registry", t, func() {
		convey.Convey("When it is written as text", func() {
			var buf bytes.Buffer
			err := writeMetrics(&buf)

			convey.Convey("Then it should contain the engine namespace", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(buf.String(), convey.ShouldContainSubstring, "cadence_engine_")
			})
		})

		convey.Convey("When it is written to a file", func() {
			path := filepath.Join(t.TempDir(), "metrics.txt")
			convey.So(dumpMetrics(path), convey.ShouldBeNil)

			convey.Convey("Then the file should hold the dump", func() {
				data, err := os.ReadFile(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(data), convey.ShouldContainSubstring, "# TYPE")
			})
		})
	})

	convey.Convey("Given a stopped service", t, func() {
		svc := app.New()

		convey.Convey("Then updating service metrics should not panic", func() {
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
