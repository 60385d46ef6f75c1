package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			opts := []Option{
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithMetricPrefix("test-prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(5 * time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
			}

			Convey("Then they should be valid functions", func() {
				for _, o := range opts {
					So(o, ShouldNotBeNil)
				}
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewMetricsManager(WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then it should use the vitals namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "vitals")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewMetricsManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("p"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.commitsTotal.WithLabelValues("ok").Inc()

			Convey("Then collectors are registered under the prefixed name", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_p_commits_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options receive empty values", func() {
			manager := NewMetricsManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithRefreshInterval(-1*time.Second),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "vitals")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When the global manager is queried", func() {
			So(Enabled(), ShouldBeTrue)
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})

		Convey("When metrics are disabled", func() {
			manager := NewMetricsManager(
				WithMetricsEnabled(false),
				WithRefreshInterval(time.Second),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)
			So(manager.enabled, ShouldBeFalse)
			So(manager.refreshInterval, ShouldEqual, time.Second)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording import metrics", func() {
			before := valueOf(globalManager.importRecords.WithLabelValues("duplicate"))
			RecordImport("xml", "ok", 12.5)
			RecordImportRecords(80, 0, 20)
			RecordImportRejection("unit_mismatch", 2)
			UpdatePendingImports(1)

			Convey("Then the record counters advance", func() {
				after := valueOf(globalManager.importRecords.WithLabelValues("duplicate"))
				So(after-before, ShouldEqual, 20)
				So(valueOf(globalManager.pendingImports), ShouldEqual, 1)
			})
		})

		Convey("When recording commit and queue metrics", func() {
			So(func() {
				RecordCommit("ok", 3.0, 100, 5)
				UpdateQueueSize(3)
				UpdateQueueCapacity(64)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("full")
			}, ShouldNotPanic)
			So(valueOf(globalManager.queueCapacity), ShouldEqual, 64)
		})

		Convey("When updating store gauges", func() {
			UpdateStoreSeries(map[string]int{"heart_rate": 42, "step_count": 7}, 9)

			Convey("Then per-metric gauges reflect the counts", func() {
				So(valueOf(globalManager.storeSamples.WithLabelValues("heart_rate")), ShouldEqual, 42)
				So(valueOf(globalManager.storeSeries), ShouldEqual, 2)
				So(valueOf(globalManager.storeGeneration), ShouldEqual, 9)
			})
		})

		Convey("When recording correlation and persistence metrics", func() {
			So(func() {
				RecordStoreQuery("resample", 0.4)
				RecordInsight(1.2)
				RecordInsightDeclined("insufficient_overlap", 0.3)
				RecordInsightCacheHit()
				RecordPersistence("badger", "save", nil, 4.0)
				RecordPersistence("badger", "load", errors.New("boom"), 1.0)
			}, ShouldNotPanic)
			So(valueOf(globalManager.persistenceOps.WithLabelValues("badger", "load", "error")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("When recording HTTP, error and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/imports", "POST", "202")
				RecordHTTPRequestDuration("/imports", "POST", "202", 5.0)
				RecordErrorByComponent("importer", "malformed")
				RecordErrorByEndpoint("/imports", "POST", "bad_request")
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(1.0)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordCommit("ok", 1.0, 1, 0)

		Convey("Then it exposes vitals collectors only", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(families, ShouldNotBeEmpty)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "vitals_"), ShouldBeTrue)
			}
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordQueueEnqueue()
						UpdateQueueSize(j)
						RecordInsight(float64(j))
						RecordHTTPRequest("/test", "GET", "200")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue)
			})
		})
	})
}

func TestSince(t *testing.T) {
	Convey("Given a start time in the past", t, func() {
		start := time.Now().Add(-5 * time.Millisecond)

		Convey("Then Since reports at least the elapsed milliseconds", func() {
			So(Since(start), ShouldBeGreaterThanOrEqualTo, 5.0)
		})
	})
}

func valueOf(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return 0
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return 0
}

func TestConfigure(t *testing.T) {
	Convey("Given a reconfigured global manager", t, func() {
		labels := map[string]string{"deployment": "canary"}
		Configure(
			WithNamespace("custom"),
			WithMetricsEnabled(false),
			WithRefreshInterval(2*time.Second),
			WithCustomLabels(labels),
		)
		Reset(func() { Configure() })
		labels["deployment"] = "mutated"

		Convey("Then recorders write to the new registry under the new names", func() {
			So(Enabled(), ShouldBeFalse)
			So(RefreshInterval(), ShouldEqual, 2*time.Second)
			So(globalManager.customLabels["deployment"], ShouldEqual, "canary")

			RecordInsightCacheHit()
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, mf := range families {
				names = append(names, mf.GetName())
			}
			So(names, ShouldContain, "custom_engine_insight_cache_hits_total")
		})
	})

	Convey("Given the default configuration", t, func() {
		Configure()
		So(Enabled(), ShouldBeTrue)
		So(globalManager.namespace, ShouldEqual, "vitals")
		So(GetRegistry(), ShouldNotBeNil)
	})
}
