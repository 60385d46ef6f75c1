package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/vitals/internal/config"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.MinOverlapBuckets, convey.ShouldEqual, 10)
			convey.So(cfg.ImportBatchSize, convey.ShouldEqual, 500)
			convey.So(cfg.CommitQueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.PersistenceDriver, convey.ShouldEqual, config.DriverNone)
			convey.So(cfg.AcceptedSet().All(), convey.ShouldBeTrue)
			convey.So(cfg.LowCV, convey.ShouldEqual, 0.01)
			convey.So(cfg.MediumCV, convey.ShouldEqual, 0.05)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When min overlap is below two", func() {
			cfg.MinOverlapBuckets = 1
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When tier widths are inverted", func() {
			cfg.HighTierMaxCIWidth = 0.7
			cfg.MediumTierMaxCIWidth = 0.5
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When metrics settings would not form valid names", func() {
			cfg.MetricsNamespace = "vitals-prod"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)

			cfg.MetricsNamespace = "vitals"
			cfg.MetricsLabels = map[string]string{"__reserved": "x"}
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)

			cfg.MetricsLabels = nil
			cfg.MetricsHistogramBuckets = []float64{10, 5}
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)

			cfg.MetricsHistogramBuckets = []float64{5, 10}
			cfg.MetricsRefreshInterval = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the CV thresholds are inverted", func() {
			cfg.LowCV = 0.1
			cfg.MediumCV = 0.05
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the persistence driver is unknown", func() {
			cfg.PersistenceDriver = "postgres"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When badger has no path", func() {
			cfg.PersistenceDriver = config.DriverBadger
			cfg.PersistencePath = ""
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When a bucket override names an unknown metric", func() {
			cfg.BucketDurations = map[string]time.Duration{"caffeine": time.Hour}
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(errors.Is(err, config.ErrUnknownMetric), convey.ShouldBeTrue)
		})

		convey.Convey("When accepted types list an unknown metric", func() {
			cfg.AcceptedMetricTypes = []string{"step_count", "mood"}
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "mood")
		})

		convey.Convey("When bucket overrides and filters are valid", func() {
			cfg.BucketDurations = map[string]time.Duration{"HKQuantityTypeIdentifierHeartRate": 2 * time.Hour}
			cfg.AcceptedMetricTypes = []string{"heart_rate", "step_count"}

			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Granularities()[model.HeartRate], convey.ShouldEqual, 2*time.Hour)
			set := cfg.AcceptedSet()
			convey.So(set.Allows(model.StepCount), convey.ShouldBeTrue)
			convey.So(set.Allows(model.BodyMass), convey.ShouldBeFalse)
		})
	})
}
