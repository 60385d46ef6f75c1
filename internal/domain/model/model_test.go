package model_test

import (
	"math"
	"testing"
	"time"

	model "github.com/okian/vitals/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	convey.Convey("Given the metric registry", t, func() {
		convey.Convey("Then cumulative metrics sum and instantaneous metrics average", func() {
			sums := []model.MetricType{model.StepCount, model.ActiveEnergy, model.DistanceWalkingRunning, model.ExerciseTime, model.SleepDuration}
			for _, mt := range sums {
				convey.So(model.AggregationFor(mt), convey.ShouldEqual, model.AggregateSum)
			}
			means := []model.MetricType{model.HeartRate, model.RestingHeartRate, model.HeartRateVariability, model.BodyMass, model.RespiratoryRate, model.OxygenSaturation, model.BodyTemperature}
			for _, mt := range means {
				convey.So(model.AggregationFor(mt), convey.ShouldEqual, model.AggregateMean)
			}
		})

		convey.Convey("Then every known type has a canonical unit and a HealthKit mapping", func() {
			for _, mt := range model.KnownTypes() {
				info, ok := model.Info(mt)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(info.Unit, convey.ShouldNotBeEmpty)
				convey.So(info.HealthKit, convey.ShouldNotBeEmpty)
			}
		})

		convey.Convey("When looking up export identifiers", func() {
			mt, ok := model.LookupType("HKQuantityTypeIdentifierStepCount")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(mt, convey.ShouldEqual, model.StepCount)

			mt, ok = model.LookupType("heart_rate")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(mt, convey.ShouldEqual, model.HeartRate)

			_, ok = model.LookupType("HKQuantityTypeIdentifierDietaryCaffeine")
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When handling raw types", func() {
			raw := model.RawMetricType("HKQuantityTypeIdentifierDietaryCaffeine")
			convey.So(raw.IsRaw(), convey.ShouldBeTrue)
			convey.So(raw.Known(), convey.ShouldBeFalse)
			info, ok := model.Info(raw)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(info.Aggregation, convey.ShouldEqual, model.AggregateMean)
			convey.So(model.GranularityFor(raw), convey.ShouldEqual, model.Daily)
		})
	})
}

func TestUnitConversion(t *testing.T) {
	convey.Convey("Given the unit conversion table", t, func() {
		convey.Convey("When converting pounds to kilograms", func() {
			v, unit, ok := model.ConvertToCanonical(model.BodyMass, 100, "lb")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(unit, convey.ShouldEqual, model.UnitKilogram)
			convey.So(v, convey.ShouldAlmostEqual, 45.359237, 1e-9)
		})

		convey.Convey("When converting Fahrenheit", func() {
			v, _, ok := model.ConvertToCanonical(model.BodyTemperature, 98.6, "degF")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(v, convey.ShouldAlmostEqual, 37.0, 1e-9)
		})

		convey.Convey("When the unit has no table entry", func() {
			_, unit, ok := model.ConvertToCanonical(model.BodyMass, 10, "mi")
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(unit, convey.ShouldEqual, model.UnitKilogram)
		})

		convey.Convey("When the metric is raw", func() {
			_, _, ok := model.ConvertToCanonical(model.RawMetricType("x"), 10, "mg")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestMetricSet(t *testing.T) {
	convey.Convey("Given metric set filters", t, func() {
		convey.Convey("When built from all", func() {
			set, unknown := model.NewMetricSet("all")
			convey.So(set.All(), convey.ShouldBeTrue)
			convey.So(unknown, convey.ShouldBeEmpty)
			convey.So(set.Allows(model.RawMetricType("anything")), convey.ShouldBeTrue)
		})

		convey.Convey("When built from names", func() {
			set, unknown := model.NewMetricSet("step_count", "HKQuantityTypeIdentifierHeartRate", "bogus")
			convey.So(set.All(), convey.ShouldBeFalse)
			convey.So(set.Allows(model.StepCount), convey.ShouldBeTrue)
			convey.So(set.Allows(model.HeartRate), convey.ShouldBeTrue)
			convey.So(set.Allows(model.BodyMass), convey.ShouldBeFalse)
			convey.So(unknown, convey.ShouldResemble, []string{"bogus"})
		})
	})
}

func TestSampleKeys(t *testing.T) {
	convey.Convey("Given two samples", t, func() {
		start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
		a := model.Sample{Type: model.HeartRate, Value: 60, Start: start, End: start, SourceID: "watch"}
		b := a
		b.Value = 61

		convey.Convey("Then they share a series key but not an import key", func() {
			convey.So(a.Key(), convey.ShouldResemble, b.Key())
			convey.So(a.ImportKey(), convey.ShouldNotEqual, b.ImportKey())
			convey.So(a.Instantaneous(), convey.ShouldBeTrue)
		})

		convey.Convey("Then ordering breaks ties on end and source", func() {
			c := a
			c.SourceID = "phone"
			convey.So(model.Less(&c, &a), convey.ShouldBeTrue)
			convey.So(model.Less(&a, &c), convey.ShouldBeFalse)
			convey.So(model.Less(&a, &a), convey.ShouldBeFalse)
		})
	})
}

func TestInsightScore(t *testing.T) {
	convey.Convey("Given insights with different tiers", t, func() {
		strongThin := model.Insight{Coefficient: -0.9, Tier: model.TierLow}
		moderateDense := model.Insight{Coefficient: 0.5, Tier: model.TierHigh}

		convey.Convey("Then a moderate dense coefficient outranks a strong thin one", func() {
			convey.So(moderateDense.Score(), convey.ShouldBeGreaterThan, strongThin.Score())
			convey.So(strongThin.Score(), convey.ShouldAlmostEqual, math.Abs(-0.9)*0.3, 1e-12)
		})

		convey.Convey("Then tiers render as labels", func() {
			b, err := model.TierMedium.MarshalText()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, "medium")
		})
	})
}

func TestReportClone(t *testing.T) {
	convey.Convey("Given a report", t, func() {
		r := model.ImportReport{
			ByReason:   map[model.RejectReason]int{model.ReasonUnitMismatch: 1},
			Rejections: []model.Rejection{{Ordinal: 3, Reason: model.ReasonUnitMismatch}},
		}

		convey.Convey("When cloned and the clone is modified", func() {
			c := r.Clone()
			c.ByReason[model.ReasonUnitMismatch] = 5
			c.Rejections[0].Ordinal = 9

			convey.Convey("Then the original is untouched", func() {
				convey.So(r.ByReason[model.ReasonUnitMismatch], convey.ShouldEqual, 1)
				convey.So(r.Rejections[0].Ordinal, convey.ShouldEqual, 3)
			})
		})
	})
}
