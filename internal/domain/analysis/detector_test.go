package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/okian/cadence/internal/domain/analysis"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/testtrack"
	. "github.com/smartystreets/goconvey/convey"
)

const timingToleranceMs = 30

func nearest(truth []float64, at float64) float64 {
	best := math.Inf(1)
	for _, t := range truth {
		best = math.Min(best, math.Abs(t-at))
	}
	return best
}

func TestAnalyzeClickTrack(t *testing.T) {
	Convey("Given a 120 BPM click track", t, func() {
		samples, truth := testtrack.Click(testtrack.Config{BPM: 120, DurationMs: 10000, OffsetMs: 500})
		d := analysis.New()

		Convey("When it is analyzed", func() {
			res, err := d.Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

			Convey("Then the tempo should be close to 120", func() {
				So(err, ShouldBeNil)
				So(res.BPM, ShouldAlmostEqual, 120, 1)
			})

			Convey("Then every beat should land on a click", func() {
				So(len(res.Beats), ShouldBeBetweenOrEqual, len(truth)-1, len(truth)+1)
				for _, b := range res.Beats {
					So(nearest(truth, b.TimestampMs), ShouldBeLessThanOrEqualTo, timingToleranceMs)
				}
			})

			Convey("Then beats should be strictly ascending with bounded strength", func() {
				for i, b := range res.Beats {
					So(b.Strength, ShouldBeBetweenOrEqual, 0, 1)
					if i > 0 {
						So(b.TimestampMs, ShouldBeGreaterThan, res.Beats[i-1].TimestampMs)
					}
				}
			})
		})

		Convey("When it is analyzed twice", func() {
			a, errA := d.Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)
			b, errB := analysis.New().Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

			Convey("Then both results should be identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, b)
			})
		})
	})

	Convey("Given a 90 BPM click track with background noise", t, func() {
		samples, truth := testtrack.Click(testtrack.Config{
			BPM: 90, DurationMs: 12000, OffsetMs: 300, NoiseLevel: 0.005, Seed: 3,
		})

		Convey("When it is analyzed", func() {
			res, err := analysis.New().Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

			Convey("Then the tempo and beats should follow the clicks", func() {
				So(err, ShouldBeNil)
				So(res.BPM, ShouldAlmostEqual, 90, 1)
				So(len(res.Beats), ShouldBeGreaterThanOrEqualTo, len(truth)-1)
				for _, b := range res.Beats {
					So(nearest(truth, b.TimestampMs), ShouldBeLessThanOrEqualTo, timingToleranceMs)
				}
			})
		})
	})
}

func TestAnalyzeTempoSweep(t *testing.T) {
	Convey("Given clean click tracks across the playable tempo range", t, func() {
		for _, bpm := range []float64{60, 90, 128, 174, 200} {
			samples, truth := testtrack.Click(testtrack.Config{BPM: bpm, DurationMs: 15000, OffsetMs: 300})

			Convey(fmt.Sprintf("When the %.0f BPM track is analyzed", bpm), func() {
				res, err := analysis.New().Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

				Convey("Then the tempo should not fold to a harmonic", func() {
					So(err, ShouldBeNil)
					So(res.BPM, ShouldAlmostEqual, bpm, 1)
				})

				Convey("Then one beat should be found per click", func() {
					So(len(res.Beats), ShouldBeBetweenOrEqual, len(truth)-1, len(truth)+1)
					for _, b := range res.Beats {
						So(nearest(truth, b.TimestampMs), ShouldBeLessThanOrEqualTo, timingToleranceMs)
					}
				})
			})
		}
	})

	Convey("Given click tracks buried in loud background noise", t, func() {
		for _, tc := range []struct {
			bpm   float64
			noise float64
		}{
			{60, 0.05}, {90, 0.05}, {60, 0.1}, {90, 0.1}, {128, 0.1}, {174, 0.1},
		} {
			samples, _ := testtrack.Click(testtrack.Config{
				BPM: tc.bpm, DurationMs: 15000, OffsetMs: 300, NoiseLevel: tc.noise, Seed: 5,
			})

			Convey(fmt.Sprintf("When the %.0f BPM track with noise %.2f is analyzed", tc.bpm, tc.noise), func() {
				res, err := analysis.New().Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

				Convey("Then the default periodicity threshold should still accept it", func() {
					So(err, ShouldBeNil)
					So(res.BPM, ShouldAlmostEqual, tc.bpm, 1.5)
				})
			})
		}
	})
}

func TestAnalyzeProgress(t *testing.T) {
	Convey("Given a progress callback", t, func() {
		var seen []int
		record := func(p int) { seen = append(seen, p) }

		Convey("When analysis succeeds", func() {
			samples, _ := testtrack.Click(testtrack.Config{BPM: 128, DurationMs: 6000, OffsetMs: 200})
			_, err := analysis.New().Analyze(context.Background(), samples, testtrack.DefaultSampleRate, record)

			Convey("Then progress should rise strictly from 0 to 100", func() {
				So(err, ShouldBeNil)
				So(seen[0], ShouldEqual, 0)
				So(seen[len(seen)-1], ShouldEqual, 100)
				for i := 1; i < len(seen); i++ {
					So(seen[i], ShouldBeGreaterThan, seen[i-1])
				}
			})
		})

		Convey("When analysis fails", func() {
			_, err := analysis.New().Analyze(context.Background(), testtrack.Silence(44100, 5000), 44100, record)

			Convey("Then 100 should never be reported", func() {
				So(err, ShouldNotBeNil)
				So(seen, ShouldNotContain, 100)
			})
		})
	})
}

func TestAnalyzeErrors(t *testing.T) {
	ctx := context.Background()

	Convey("Given malformed or unusable audio", t, func() {
		d := analysis.New()

		Convey("When the sample rate is not positive", func() {
			_, err := d.Analyze(ctx, make([]float32, 1000), 0, nil)

			Convey("Then it should fail as invalid input", func() {
				So(errors.Is(err, analysis.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(err, analysis.ErrAnalysis), ShouldBeTrue)
			})
		})

		Convey("When there are no samples", func() {
			res, err := d.Analyze(ctx, nil, 44100, nil)

			Convey("Then it should fail without a partial result", func() {
				So(errors.Is(err, analysis.ErrInvalidInput), ShouldBeTrue)
				So(res, ShouldResemble, model.AnalysisResult{})
			})
		})

		Convey("When the track is shorter than the minimum duration", func() {
			samples, _ := testtrack.Click(testtrack.Config{BPM: 120, DurationMs: 1500})
			_, err := d.Analyze(ctx, samples, testtrack.DefaultSampleRate, nil)

			Convey("Then it should fail as too short", func() {
				So(errors.Is(err, analysis.ErrTooShort), ShouldBeTrue)
			})
		})

		Convey("When the track is silent", func() {
			_, err := d.Analyze(ctx, testtrack.Silence(44100, 5000), 44100, nil)

			Convey("Then it should fail as silent", func() {
				So(errors.Is(err, analysis.ErrSilent), ShouldBeTrue)
			})
		})

		Convey("When the track holds only NaN samples", func() {
			samples := make([]float32, 44100*3)
			for i := range samples {
				samples[i] = float32(math.NaN())
			}
			_, err := d.Analyze(ctx, samples, 44100, nil)

			Convey("Then they should count as silence", func() {
				So(errors.Is(err, analysis.ErrSilent), ShouldBeTrue)
			})
		})

		Convey("When the track is unpulsed noise and periodicity is required", func() {
			strict := analysis.New(analysis.WithMinPeriodicity(0.3))
			_, err := strict.Analyze(ctx, testtrack.Noise(44100, 20000, 0.3, 11), 44100, nil)

			Convey("Then it should fail with no periodicity", func() {
				So(errors.Is(err, analysis.ErrNoPeriodicity), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			samples, _ := testtrack.Click(testtrack.Config{BPM: 120, DurationMs: 5000})
			_, err := d.Analyze(cctx, samples, testtrack.DefaultSampleRate, nil)

			Convey("Then it should report cancellation", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(errors.Is(err, analysis.ErrAnalysis), ShouldBeFalse)
			})
		})
	})
}

func TestAnalyzeOptions(t *testing.T) {
	Convey("Given a detector restricted to a fast tempo range", t, func() {
		samples, _ := testtrack.Click(testtrack.Config{BPM: 150, DurationMs: 8000, OffsetMs: 100})
		d := analysis.New(
			analysis.WithTempoRange(120, 180),
			analysis.WithFrame(2048, 512),
			analysis.WithSnapTolerance(0.1),
			analysis.WithMinDuration(3000),
		)

		Convey("When it is analyzed", func() {
			res, err := d.Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

			Convey("Then the tempo should be found inside the range", func() {
				So(err, ShouldBeNil)
				So(res.BPM, ShouldAlmostEqual, 150, 1.5)
			})
		})

		Convey("When invalid options are supplied", func() {
			fallback := analysis.New(analysis.WithTempoRange(200, 100), analysis.WithFrame(1000, 2000))
			res, err := fallback.Analyze(context.Background(), samples, testtrack.DefaultSampleRate, nil)

			Convey("Then the defaults should remain in force", func() {
				So(err, ShouldBeNil)
				So(res.BPM, ShouldAlmostEqual, 150, 1.5)
			})
		})
	})
}
