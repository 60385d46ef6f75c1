package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/vitals/internal/adapters/repository"
	"github.com/okian/vitals/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func sample(t model.MetricType, at time.Time, v float64, src string) model.Sample {
	return model.Sample{Type: t, Value: v, Unit: model.CanonicalUnit(t), Start: at, End: at, SourceID: src}
}

func hourly(t model.MetricType, n int, v func(i int) float64) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = sample(t, day.Add(time.Duration(i)*time.Hour), v(i), "watch")
	}
	return out
}

func newStore() *repository.SeriesStore {
	return repository.NewSeriesStore(context.Background())
}

func TestSeriesStoreInsert(t *testing.T) {
	Convey("Given an empty series store", t, func() {
		ctx := context.Background()
		s := newStore()
		defer func() { _ = s.Close() }()

		Convey("When a batch is inserted and read back", func() {
			batch := hourly(model.HeartRate, 24, func(i int) float64 { return float64(60 + i) })
			res, err := s.Insert(ctx, batch)
			So(err, ShouldBeNil)

			got, err := s.Range(ctx, model.HeartRate, day, day.Add(23*time.Hour))

			Convey("Then the range returns exactly the inserted samples", func() {
				So(err, ShouldBeNil)
				So(res.Inserted, ShouldEqual, 24)
				So(res.Generation, ShouldEqual, 1)
				So(res.Types, ShouldResemble, []model.MetricType{model.HeartRate})
				So(got, ShouldResemble, batch)
			})
		})

		Convey("When the same batch is inserted twice", func() {
			batch := hourly(model.StepCount, 10, func(i int) float64 { return 100 })
			_, err := s.Insert(ctx, batch)
			So(err, ShouldBeNil)
			gen := s.Generation()

			res, err := s.Insert(ctx, batch)

			Convey("Then the store is unchanged", func() {
				So(err, ShouldBeNil)
				So(res.Inserted, ShouldEqual, 0)
				So(res.Skipped, ShouldEqual, 10)
				So(s.Generation(), ShouldEqual, gen)
				So(s.Count(ctx, model.StepCount), ShouldEqual, 10)
			})
		})

		Convey("When a key collides with a stored sample", func() {
			first := sample(model.BodyMass, day, 80, "scale")
			second := sample(model.BodyMass, day, 81, "scale")
			_, _ = s.Insert(ctx, []model.Sample{first})
			res, _ := s.Insert(ctx, []model.Sample{second})

			Convey("Then the existing sample wins", func() {
				got, _ := s.Range(ctx, model.BodyMass, day, day)
				So(res.Skipped, ShouldEqual, 1)
				So(got, ShouldHaveLength, 1)
				So(got[0].Value, ShouldEqual, 80)
			})
		})

		Convey("When samples arrive in random order across batches", func() {
			all := hourly(model.HeartRate, 200, func(i int) float64 { return float64(i) })
			rng := rand.New(rand.NewSource(7))
			shuffled := append([]model.Sample(nil), all...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			for i := 0; i < len(shuffled); i += 37 {
				end := i + 37
				if end > len(shuffled) {
					end = len(shuffled)
				}
				_, err := s.Insert(ctx, shuffled[i:end])
				So(err, ShouldBeNil)
			}

			Convey("Then the series stays sorted with unique keys", func() {
				got, _ := s.Range(ctx, model.HeartRate, day, day.Add(300*time.Hour))
				So(got, ShouldHaveLength, 200)
				So(sort.SliceIsSorted(got, func(i, j int) bool { return model.Less(&got[i], &got[j]) }), ShouldBeTrue)
				So(got, ShouldResemble, all)
			})
		})

		Convey("When a batch repeats a key internally", func() {
			a := sample(model.HeartRate, day, 60, "watch")
			b := sample(model.HeartRate, day, 61, "watch")
			res, _ := s.Insert(ctx, []model.Sample{a, b})

			Convey("Then the first occurrence is kept", func() {
				So(res.Inserted, ShouldEqual, 1)
				So(res.Skipped, ShouldEqual, 1)
				got, _ := s.Range(ctx, model.HeartRate, day, day)
				So(got[0].Value, ShouldEqual, 60)
			})
		})

		Convey("When inserting with a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.Insert(cctx, hourly(model.HeartRate, 1, func(int) float64 { return 1 }))

			Convey("Then nothing is written", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(s.Generation(), ShouldEqual, 0)
			})
		})
	})
}

func TestSeriesStoreRange(t *testing.T) {
	Convey("Given a store with a long sleep sample and short samples", t, func() {
		ctx := context.Background()
		s := newStore()
		defer func() { _ = s.Close() }()

		night := model.Sample{
			Type: model.SleepDuration, Value: 8, Unit: model.UnitHour,
			Start: day.Add(-2 * time.Hour), End: day.Add(6 * time.Hour), SourceID: "watch",
		}
		nap := model.Sample{
			Type: model.SleepDuration, Value: 1, Unit: model.UnitHour,
			Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour), SourceID: "watch",
		}
		_, err := s.Insert(ctx, []model.Sample{nap, night})
		So(err, ShouldBeNil)

		Convey("When the range starts inside the long sample", func() {
			got, err := s.Range(ctx, model.SleepDuration, day.Add(3*time.Hour), day.Add(4*time.Hour))

			Convey("Then the overlapping sample is found", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Value, ShouldEqual, 8)
			})
		})

		Convey("When from is after to", func() {
			_, err := s.Range(ctx, model.SleepDuration, day.Add(time.Hour), day)
			So(errors.Is(err, repository.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("When the metric is absent", func() {
			got, err := s.Range(ctx, model.BodyMass, day, day.Add(time.Hour))
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("When the caller mutates a returned sample", func() {
			got, _ := s.Range(ctx, model.SleepDuration, day, day.Add(24*time.Hour))
			got[0].Value = -1

			Convey("Then the store is unaffected", func() {
				again, _ := s.Range(ctx, model.SleepDuration, day, day.Add(24*time.Hour))
				So(again[0].Value, ShouldEqual, 8)
			})
		})
	})
}

func TestSeriesStoreResampleMultiDay(t *testing.T) {
	Convey("Given three daily step totals and three daily heart rates", t, func() {
		ctx := context.Background()
		s := newStore()
		defer func() { _ = s.Close() }()

		var batch []model.Sample
		for i, v := range []float64{1000, 2000, 500} {
			batch = append(batch, sample(model.StepCount, day.AddDate(0, 0, i), v, "watch"))
		}
		for i, v := range []float64{60, 80, 70} {
			batch = append(batch, sample(model.HeartRate, day.AddDate(0, 0, i).Add(9*time.Hour), v, "watch"))
		}
		_, err := s.Insert(ctx, batch)
		So(err, ShouldBeNil)

		Convey("When resampled into one three-day bucket", func() {
			to := day.AddDate(0, 0, 3)
			stepBuckets, err1 := s.Resample(ctx, model.StepCount, day, to, 3*model.Daily)
			hrBuckets, err2 := s.Resample(ctx, model.HeartRate, day, to, 3*model.Daily)

			Convey("Then steps sum to 3500 and heart rate averages 70", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(stepBuckets, ShouldHaveLength, 1)
				So(stepBuckets[0].Value, ShouldEqual, 3500)
				So(stepBuckets[0].Count, ShouldEqual, 3)
				So(stepBuckets[0].Start.Equal(day), ShouldBeTrue)
				So(stepBuckets[0].End.Equal(to), ShouldBeTrue)
				So(hrBuckets, ShouldHaveLength, 1)
				So(hrBuckets[0].Value, ShouldEqual, 70)
			})
		})

		Convey("When the window starts mid-way through the first day", func() {
			from := day.Add(12 * time.Hour)
			buckets, err := s.Resample(ctx, model.StepCount, from, from.AddDate(0, 0, 3), 3*model.Daily)

			Convey("Then buckets align to the window start and skip earlier samples", func() {
				So(err, ShouldBeNil)
				So(buckets, ShouldHaveLength, 1)
				So(buckets[0].Start.Equal(from), ShouldBeTrue)
				So(buckets[0].Value, ShouldEqual, 2500)
			})
		})
	})
}

func TestSeriesStoreResample(t *testing.T) {
	Convey("Given a day of steps and heart rate", t, func() {
		ctx := context.Background()
		s := newStore()
		defer func() { _ = s.Close() }()

		steps := hourly(model.StepCount, 7, func(int) float64 { return 500 })
		hr := []model.Sample{
			sample(model.HeartRate, day.Add(8*time.Hour), 60, "watch"),
			sample(model.HeartRate, day.Add(12*time.Hour), 70, "watch"),
			sample(model.HeartRate, day.Add(20*time.Hour), 80, "watch"),
		}
		_, err := s.Insert(ctx, append(steps, hr...))
		So(err, ShouldBeNil)

		Convey("When resampled into one daily bucket", func() {
			stepBuckets, err1 := s.Resample(ctx, model.StepCount, day, day.Add(24*time.Hour), 24*time.Hour)
			hrBuckets, err2 := s.Resample(ctx, model.HeartRate, day, day.Add(24*time.Hour), 24*time.Hour)

			Convey("Then steps sum to 3500 and heart rate averages 70", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(stepBuckets, ShouldHaveLength, 1)
				So(stepBuckets[0].Value, ShouldEqual, 3500)
				So(stepBuckets[0].Count, ShouldEqual, 7)
				So(hrBuckets, ShouldHaveLength, 1)
				So(hrBuckets[0].Value, ShouldEqual, 70)
				So(hrBuckets[0].Start.Equal(day), ShouldBeTrue)
			})
		})

		Convey("When resampled hourly", func() {
			buckets, err := s.Resample(ctx, model.HeartRate, day, day.Add(24*time.Hour), time.Hour)

			Convey("Then empty buckets are omitted", func() {
				So(err, ShouldBeNil)
				So(buckets, ShouldHaveLength, 3)
				So(buckets[1].Start.Equal(day.Add(12*time.Hour)), ShouldBeTrue)
				So(buckets[1].End.Equal(day.Add(13*time.Hour)), ShouldBeTrue)
			})
		})

		Convey("When the window holds no samples", func() {
			buckets, err := s.Resample(ctx, model.StepCount, day.Add(48*time.Hour), day.Add(72*time.Hour), time.Hour)
			So(err, ShouldBeNil)
			So(buckets, ShouldBeEmpty)
		})

		Convey("When the bucket is not positive or the range is inverted", func() {
			_, err := s.Resample(ctx, model.StepCount, day, day.Add(time.Hour), 0)
			So(errors.Is(err, repository.ErrInvalidBucket), ShouldBeTrue)
			_, err = s.Resample(ctx, model.StepCount, day.Add(time.Hour), day, time.Hour)
			So(errors.Is(err, repository.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("When the window end equals a sample start", func() {
			buckets, _ := s.Resample(ctx, model.StepCount, day, day.Add(3*time.Hour), time.Hour)
			So(buckets, ShouldHaveLength, 3)
		})
	})
}

func TestSeriesStoreSnapshots(t *testing.T) {
	Convey("Given a pinned snapshot", t, func() {
		ctx := context.Background()
		s := newStore()
		defer func() { _ = s.Close() }()
		_, _ = s.Insert(ctx, hourly(model.StepCount, 5, func(int) float64 { return 10 }))
		snap := s.Snapshot()

		Convey("When more samples are inserted", func() {
			_, _ = s.Insert(ctx, hourly(model.HeartRate, 5, func(int) float64 { return 60 }))

			Convey("Then the snapshot does not see them", func() {
				So(snap.Count(ctx, model.HeartRate), ShouldEqual, 0)
				So(snap.Generation(), ShouldEqual, 1)
				So(s.Types(ctx), ShouldResemble, []model.MetricType{model.HeartRate, model.StepCount})
				st := s.Stats()
				So(st.Samples, ShouldEqual, 10)
				So(st.Series, ShouldEqual, 2)
			})
		})

		Convey("When exporting", func() {
			exp, err := s.Export(ctx)
			So(err, ShouldBeNil)
			exp[model.StepCount][0].Value = 999

			Convey("Then the export is a copy", func() {
				got, _ := s.Range(ctx, model.StepCount, day, day)
				So(got[0].Value, ShouldEqual, 10)
			})
		})

		Convey("When reading a whole series and the extent", func() {
			_, _ = s.Insert(ctx, []model.Sample{sample(model.HeartRate, day.Add(-3*time.Hour), 55, "watch")})
			snap := s.Snapshot()
			series := snap.Series(model.StepCount)
			series[0].Value = 999
			first, last, ok := snap.Extent()

			Convey("Then both reflect the snapshot without exposing it", func() {
				So(series, ShouldHaveLength, 5)
				So(snap.Series(model.StepCount)[0].Value, ShouldEqual, 10)
				So(snap.Series(model.BodyMass), ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(first.Equal(day.Add(-3*time.Hour)), ShouldBeTrue)
				So(last.Equal(day.Add(4*time.Hour)), ShouldBeTrue)
			})
		})
	})
}

func TestSeriesStoreConcurrency(t *testing.T) {
	Convey("Given concurrent writers and readers", t, func() {
		ctx := context.Background()
		s := repository.NewSeriesStore(ctx, repository.WithMetricsUpdateInterval(time.Millisecond))
		defer func() { _ = s.Close() }()

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					at := day.Add(time.Duration(i) * time.Minute)
					_, _ = s.Insert(ctx, []model.Sample{sample(model.HeartRate, at, 60, fmt.Sprintf("dev-%d", w))})
				}
			}(w)
		}
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					got, err := s.Range(ctx, model.HeartRate, day, day.Add(time.Hour))
					if err != nil || !sort.SliceIsSorted(got, func(a, b int) bool { return model.Less(&got[a], &got[b]) }) {
						panic("inconsistent snapshot")
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every sample lands exactly once", func() {
			So(s.Count(ctx, model.HeartRate), ShouldEqual, 200)
			So(s.Generation(), ShouldEqual, 200)
		})
	})
}
