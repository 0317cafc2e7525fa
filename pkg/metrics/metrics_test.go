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
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then defaults should apply", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
				So(manager.namespace, ShouldEqual, "pitwall")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be honored", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
			})

			Convey("And the collectors should be registered with the const labels", func() {
				manager.lapsRecorded.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, mf := range families {
					if mf.GetName() == "test_namespace_test_subsystem_laps_recorded_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When ignoring empty option values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should remain", func() {
				So(manager.namespace, ShouldEqual, "pitwall")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording collection mutations", func() {
			before := testutil.ToFloat64(globalManager.collectionMutations.WithLabelValues("append", "ok"))
			RecordCollectionMutation("append", "ok")
			RecordCollectionMutation("append", "ok")

			Convey("Then the labeled counter should advance", func() {
				after := testutil.ToFloat64(globalManager.collectionMutations.WithLabelValues("append", "ok"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording consistency violations and retries", func() {
			beforeV := testutil.ToFloat64(globalManager.consistencyViolations.WithLabelValues("reorder"))
			beforeR := testutil.ToFloat64(globalManager.reorderRetries)
			RecordConsistencyViolation("reorder")
			RecordReorderRetry()

			Convey("Then both counters should advance", func() {
				So(testutil.ToFloat64(globalManager.consistencyViolations.WithLabelValues("reorder"))-beforeV, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.reorderRetries)-beforeR, ShouldEqual, 1)
			})
		})

		Convey("When recording leaderboard and store metrics", func() {
			before := testutil.ToFloat64(globalManager.leaderboardComputations)
			beforeErr := testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("list_laps", "transient"))

			So(func() {
				RecordLeaderboardComputation(12, 3.5)
				RecordLapRecorded()
				RecordStoreOperation("list_laps", 1.2, "")
				RecordStoreOperation("list_laps", 9.0, "transient")
			}, ShouldNotPanic)

			Convey("Then the counters should reflect the observations", func() {
				So(testutil.ToFloat64(globalManager.leaderboardComputations)-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("list_laps", "transient"))-beforeErr, ShouldEqual, 1)
			})
		})

		Convey("When recording HTTP and system metrics", func() {
			So(func() {
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("leaderboard", "GET", "200", 15.0)
				RecordErrorByType("client_error", "medium")
				RecordErrorByEndpoint("reorder", "PUT", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("When reading the registry", func() {
			So(GetRegistry(), ShouldNotBeNil)
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
