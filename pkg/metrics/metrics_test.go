package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("judge"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its metrics should live on that registry", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)

				manager.judgements.WithLabelValues("perfect").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_judge_judgements_total")
			})
		})

		Convey("When ignoring invalid option values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithRefreshInterval(-time.Second),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "cadence")
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording judgements", func() {
			before := testutil.ToFloat64(globalManager.judgements.WithLabelValues("good"))
			RecordJudgement("good")
			RecordJudgement("good")

			Convey("Then the labelled counter should grow", func() {
				So(testutil.ToFloat64(globalManager.judgements.WithLabelValues("good")), ShouldEqual, before+2)
			})
		})

		Convey("When sessions start and end", func() {
			active := testutil.ToFloat64(globalManager.activeSessions)
			ended := testutil.ToFloat64(globalManager.sessionsEnded)
			RecordSessionStarted()
			RecordSessionEnded()

			Convey("Then the gauge should return to its previous value", func() {
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, active)
				So(testutil.ToFloat64(globalManager.sessionsEnded), ShouldEqual, ended+1)
			})
		})

		Convey("When recording analysis outcomes", func() {
			UpdateDetectedBPM(128)
			before := testutil.ToFloat64(globalManager.analysisFailures.WithLabelValues("silent"))
			RecordAnalysisFailure("silent")

			Convey("Then gauges and counters should reflect them", func() {
				So(testutil.ToFloat64(globalManager.detectedBPM), ShouldEqual, 128)
				So(testutil.ToFloat64(globalManager.analysisFailures.WithLabelValues("silent")), ShouldEqual, before+1)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordAnalysisDuration(42)
					RecordAnalysisCompleted()
					RecordAnalysisSuperseded()
					RecordTargetsGenerated(12)
					RecordTickLatency(0.2)
					RecordInputClamped("cursor")
					UpdateQueueSize(1)
					UpdateQueueCapacity(8)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					UpdateWorkerActiveCount(1)
					RecordWorkerProcessingLatency(3)
					RecordWorkerError()
					RecordErrorByComponent("worker", "analysis_error")
				}, ShouldNotPanic)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
