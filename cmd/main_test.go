package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	app "github.com/okian/vitals/internal/app"
	"github.com/okian/vitals/internal/config"
	"github.com/okian/vitals/pkg/logger"
	"github.com/okian/vitals/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			// Test with environment variables
			_ = os.Setenv("VITALS_ADDR", ":8080")
			_ = os.Setenv("VITALS_COMMIT_QUEUE_SIZE", "1000")
			_ = os.Setenv("VITALS_MIN_OVERLAP_BUCKETS", "14")
			defer func() {
				_ = os.Unsetenv("VITALS_ADDR")
				_ = os.Unsetenv("VITALS_COMMIT_QUEUE_SIZE")
				_ = os.Unsetenv("VITALS_MIN_OVERLAP_BUCKETS")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CommitQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.MinOverlapBuckets, convey.ShouldEqual, 14)

				convey.Convey("And the service takes its options from it", func() {
					svc := newService(cfg, logger.Get())
					convey.So(svc.GetStats()["queueSize"], convey.ShouldEqual, 1000)
				})
			})
		})
	})
}

func TestMainMux(t *testing.T) {
	convey.Convey("Given a started service and the application mux", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		svc := newService(cfg, logger.Get())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, cfg, svc)

		convey.Convey("Then business routes are served", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/stats", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"started":true`)
		})

		convey.Convey("Then the API docs are served", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/openapi.yaml", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "/imports/{id}/commit")
		})

		convey.Convey("Then an import round trips through the mux", func() {
			body := `{"records":[{"type":"HKQuantityTypeIdentifierStepCount","unit":"count","value":"120","sourceName":"Watch","startDate":"2024-01-01 09:00:00 +0000","endDate":"2024-01-01 09:30:00 +0000"}]}`
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("POST", "/imports?commit=true", strings.NewReader(body)))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"inserted":1`)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := app.New()
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.So(func() {
				updateSystemMetrics()
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When testing service metrics update on a stopped service", func() {
			convey.So(func() {
				updateServiceMetrics(app.New())
			}, convey.ShouldNotPanic)
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("VITALS_PERSISTENCE_DRIVER", "postgres")
			defer func() { _ = os.Unsetenv("VITALS_PERSISTENCE_DRIVER") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestMainApplicationPerformance(t *testing.T) {
	convey.Convey("Given main application performance", t, func() {
		convey.Convey("When creating a metrics manager on a custom registry", func() {
			start := time.Now()
			registry := prometheus.NewRegistry()
			manager := metrics.NewMetricsManager(metrics.WithPrometheusRegistry(registry))
			duration := time.Since(start)

			convey.So(manager, convey.ShouldNotBeNil)
			convey.So(duration, convey.ShouldBeLessThan, 100*time.Millisecond)
		})
	})
}

func TestMetricsOptionsFromConfig(t *testing.T) {
	convey.Convey("Given a config with custom metrics settings", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsEnabled = false
		cfg.MetricsRefreshInterval = 3 * time.Second
		cfg.MetricsNamespace = "health"
		cfg.MetricsSubsystem = "api"
		cfg.MetricsPrefix = "v2"
		cfg.MetricsHistogramBuckets = []float64{1, 10, 100}
		cfg.MetricsLabels = map[string]string{"deployment": "test"}
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("When the global manager is configured from it", func() {
			metrics.Configure(metricsOptions(cfg)...)
			defer metrics.Configure(metricsOptions(config.New(context.Background()))...)

			metrics.RecordInsightCacheHit()
			families, err := metrics.GetRegistry().Gather()

			convey.Convey("Then names, labels and refresher settings follow the config", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(metrics.Enabled(), convey.ShouldBeFalse)
				convey.So(metrics.RefreshInterval(), convey.ShouldEqual, 3*time.Second)

				found := false
				for _, mf := range families {
					convey.So(strings.HasPrefix(mf.GetName(), "health_api_v2_"), convey.ShouldBeTrue)
					if strings.HasSuffix(mf.GetName(), "insight_cache_hits_total") {
						found = true
						lbl := mf.GetMetric()[0].GetLabel()[0]
						convey.So(lbl.GetName(), convey.ShouldEqual, "deployment")
						convey.So(lbl.GetValue(), convey.ShouldEqual, "test")
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})
		})
	})
}
