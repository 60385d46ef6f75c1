package service_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/vitals/internal/adapters/dashboard"
	"github.com/okian/vitals/internal/adapters/persistence"
	service "github.com/okian/vitals/internal/app"
	"github.com/okian/vitals/internal/domain/correlation"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/internal/exportgen"
	. "github.com/smartystreets/goconvey/convey"
)

var exportStart = exportgen.DefaultConfig().Start

func findInsight(rep correlation.Report, a, b model.MetricType) (model.Insight, bool) {
	for _, in := range rep.Insights {
		if (in.A == a && in.B == b) || (in.A == b && in.B == a) {
			return in, true
		}
	}
	return model.Insight{}, false
}

func findCard(v dashboard.View, pair string) (dashboard.Card, bool) {
	for _, c := range v.Insights {
		if c.Pair == pair {
			return c, true
		}
	}
	return dashboard.Card{}, false
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := startService(service.WithQueueSize(4))
		defer svc.Stop()

		Convey("When the store is empty", func() {
			rep, err := svc.Insights(ctx, service.InsightQuery{})

			Convey("Then there is nothing to report", func() {
				So(err, ShouldBeNil)
				So(rep.Insights, ShouldBeEmpty)
				So(rep.Declined, ShouldBeEmpty)

				view, err := svc.Dashboard(ctx, service.InsightQuery{})
				So(err, ShouldBeNil)
				So(view.Charts, ShouldBeEmpty)
				So(view.Summary, ShouldEqual, "0 insights across 0 metrics")
			})
		})

		Convey("When a 60 day export is imported", func() {
			res, err := svc.Import(ctx, service.StageRequest{SourceID: "phone", Format: "json"}, exportJSON(60))
			So(err, ShouldBeNil)

			Convey("Then every record is committed", func() {
				So(res.Report.Accepted, ShouldEqual, 480)
				So(res.Inserted, ShouldEqual, 480)
				So(res.Skipped, ShouldEqual, 0)
				So(res.Generation, ShouldEqual, 1)
				So(res.Types, ShouldHaveLength, 5)

				types, err := svc.Types(ctx)
				So(err, ShouldBeNil)
				So(types, ShouldHaveLength, 5)
				So(svc.GetStats()["samples"], ShouldEqual, 480)
			})

			Convey("Then importing the same export again changes nothing", func() {
				again, err := svc.Import(ctx, service.StageRequest{SourceID: "phone", Format: "json"}, exportJSON(60))
				So(err, ShouldBeNil)
				So(again.Inserted, ShouldEqual, 0)
				So(again.Skipped, ShouldEqual, 480)
				So(again.Generation, ShouldEqual, 1)
			})

			Convey("Then a range query returns the day's samples", func() {
				samples, err := svc.Range(ctx, model.StepCount, exportStart, exportStart.Add(24*time.Hour-time.Nanosecond))
				So(err, ShouldBeNil)
				So(samples, ShouldHaveLength, 4)
			})

			Convey("Then resampling uses the metric granularity by default", func() {
				hourly, err := svc.Resample(ctx, model.StepCount, exportStart, exportStart.Add(24*time.Hour), 0)
				So(err, ShouldBeNil)
				So(hourly, ShouldHaveLength, 4)

				daily, err := svc.Resample(ctx, model.StepCount, exportStart, exportStart.Add(24*time.Hour), model.Daily)
				So(err, ShouldBeNil)
				So(daily, ShouldHaveLength, 1)
				So(daily[0].Count, ShouldEqual, 4)
			})

			Convey("Then the planted correlations are found", func() {
				rep, err := svc.Insights(ctx, service.InsightQuery{})
				So(err, ShouldBeNil)
				So(rep.Window.From.Equal(exportStart), ShouldBeTrue)
				So(rep.Window.To.Equal(exportStart.AddDate(0, 0, 60)), ShouldBeTrue)

				steps, ok := findInsight(rep, model.StepCount, model.RestingHeartRate)
				So(ok, ShouldBeTrue)
				So(steps.Coefficient, ShouldBeLessThan, -0.8)
				So(steps.Coverage, ShouldEqual, 60)

				sleep, ok := findInsight(rep, model.SleepDuration, model.HeartRateVariability)
				So(ok, ShouldBeTrue)
				So(sleep.Coefficient, ShouldBeGreaterThan, 0.7)
				So(sleep.Tier, ShouldEqual, model.TierHigh)

				for i := 1; i < len(rep.Insights); i++ {
					So(rep.Insights[i-1].Score(), ShouldBeGreaterThanOrEqualTo, rep.Insights[i].Score())
				}
			})

			Convey("Then repeated queries are served the same report", func() {
				first, err := svc.Insights(ctx, service.InsightQuery{})
				So(err, ShouldBeNil)
				second, err := svc.Insights(ctx, service.InsightQuery{})
				So(err, ShouldBeNil)
				So(second, ShouldResemble, first)

				first.Insights[0].Coefficient = 42
				third, err := svc.Insights(ctx, service.InsightQuery{})
				So(err, ShouldBeNil)
				So(third.Insights[0].Coefficient, ShouldNotEqual, 42)
			})

			Convey("Then a short window declines every pair", func() {
				rep, err := svc.Insights(ctx, service.InsightQuery{
					Window: model.Window{From: exportStart, To: exportStart.AddDate(0, 0, 5)},
					Types:  []model.MetricType{model.StepCount, model.RestingHeartRate},
				})
				So(err, ShouldBeNil)
				So(rep.Insights, ShouldBeEmpty)
				So(rep.Declined, ShouldHaveLength, 1)
				So(rep.Declined[0].Reason, ShouldEqual, correlation.ReasonInsufficientOverlap)
				So(rep.Declined[0].Coverage, ShouldEqual, 5)
			})

			Convey("Then the dashboard carries charts and cards", func() {
				view, err := svc.Dashboard(ctx, service.InsightQuery{})
				So(err, ShouldBeNil)
				So(view.Charts, ShouldHaveLength, 5)

				var steps dashboard.Chart
				for _, c := range view.Charts {
					if c.Metric == model.StepCount {
						steps = c
					}
				}
				So(steps.Points, ShouldHaveLength, 240)
				So(steps.Summary, ShouldEqual, "240 points from 240 samples")

				card, ok := findCard(view, "heart_rate_variability~sleep_duration")
				So(ok, ShouldBeTrue)
				So(card.Status, ShouldEqual, dashboard.StatusInsight)
				So(card.Direction, ShouldNotBeEmpty)
				So(card.Window, ShouldEqual, "Jan 1, 2024 to Mar 1, 2024")
			})
		})

		Convey("When several sources commit concurrently", func() {
			var wg sync.WaitGroup
			errs := make([]error, 4)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.Import(ctx, service.StageRequest{SourceID: fmt.Sprintf("device-%d", i)}, exportJSON(10))
				}(i)
			}
			wg.Wait()

			Convey("Then every commit is applied once", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				So(svc.GetStats()["samples"], ShouldEqual, 320)
				So(svc.GetStats()["generation"], ShouldEqual, uint64(4))
			})
		})
	})
}

func TestServicePersistence(t *testing.T) {
	for _, driver := range []string{persistence.DriverBadger, persistence.DriverSQLite} {
		Convey(fmt.Sprintf("Given a service persisting to %s", driver), t, func() {
			ctx := context.Background()
			cfg := persistence.Config{Driver: driver, Path: t.TempDir(), CompressionLevel: 3}

			first := startService(service.WithPersistence(cfg))
			res, err := first.Import(ctx, service.StageRequest{SourceID: "phone"}, exportJSON(10))
			So(err, ShouldBeNil)
			So(res.Inserted, ShouldEqual, 80)
			first.Stop()

			Convey("When a new service opens the same path", func() {
				second := startService(service.WithPersistence(cfg))
				defer second.Stop()

				Convey("Then the committed series are restored", func() {
					So(second.GetStats()["samples"], ShouldEqual, 80)
					So(second.GetStats()["persistence"], ShouldEqual, driver)

					samples, err := second.Range(ctx, model.BodyMass, exportStart, exportStart.AddDate(0, 0, 10))
					So(err, ShouldBeNil)
					So(samples, ShouldHaveLength, 10)
				})

				Convey("Then re-importing the export is skipped", func() {
					again, err := second.Import(ctx, service.StageRequest{SourceID: "phone"}, exportJSON(10))
					So(err, ShouldBeNil)
					So(again.Inserted, ShouldEqual, 0)
					So(again.Skipped, ShouldEqual, 80)
				})
			})
		})
	}
}

func TestServiceXMLImport(t *testing.T) {
	Convey("Given an XML export with duplicates and bad records", t, func() {
		ctx := context.Background()
		svc := startService()
		defer svc.Stop()

		cfg := exportgen.DefaultConfig()
		cfg.Days = 15
		cfg.Duplicates = 3
		cfg.BadRecords = 3
		var buf bytes.Buffer
		So(exportgen.WriteXML(&buf, exportgen.Generate(cfg)), ShouldBeNil)

		Convey("When it is staged and committed", func() {
			rep, err := svc.Stage(ctx, service.StageRequest{SourceID: "export"}, &buf)
			So(err, ShouldBeNil)
			res, err := svc.Commit(ctx, rep.ID)

			Convey("Then only valid records reach the store", func() {
				So(err, ShouldBeNil)
				So(rep.Format, ShouldEqual, "xml")
				So(rep.Duplicate, ShouldEqual, 3)
				So(rep.Rejected, ShouldEqual, 3)
				So(res.Inserted, ShouldEqual, 120)
				So(res.ImportID, ShouldEqual, rep.ID)
			})
		})
	})
}
