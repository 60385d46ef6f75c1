package repository

import (
	"context"
	"sort"
	"time"

	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/metrics"
)

// ctxCheckEvery bounds how many samples a query walks between ctx checks.
const ctxCheckEvery = 4096

// series is one metric's samples, sorted by model.Less with unique keys.
// A published series is never modified.
type series struct {
	samples []model.Sample
	// maxSpan is the longest End-Start in the series; Range widens its
	// binary search by it so long samples overlapping from are found.
	maxSpan time.Duration
}

// Snapshot is an immutable view of the store at one generation.
type Snapshot struct {
	series     map[model.MetricType]*series
	generation uint64
	total      int
}

var emptySnapshot = &Snapshot{series: map[model.MetricType]*series{}}

// Generation returns the store generation this snapshot was taken at.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Range returns copies of the samples of t overlapping [from, to].
func (s *Snapshot) Range(ctx context.Context, t model.MetricType, from, to time.Time) ([]model.Sample, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQuery("range", metrics.Since(start)) }()

	if from.After(to) {
		metrics.RecordErrorByComponent("repository", "invalid_range")
		return nil, ErrInvalidRange
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr := s.series[t]
	if sr == nil {
		return []model.Sample{}, nil
	}

	lo := from.Add(-sr.maxSpan)
	i := sort.Search(len(sr.samples), func(i int) bool { return !sr.samples[i].Start.Before(lo) })

	out := make([]model.Sample, 0)
	for n := 0; i < len(sr.samples); i, n = i+1, n+1 {
		if n%ctxCheckEvery == ctxCheckEvery-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		smp := sr.samples[i]
		if smp.Start.After(to) {
			break
		}
		if smp.End.Before(from) {
			continue
		}
		out = append(out, smp)
	}
	return out, nil
}

// Resample aggregates the samples of t whose Start falls in [from, to) into
// buckets [from+k*bucket, from+(k+1)*bucket). Empty buckets are omitted and a
// window without samples yields an empty slice.
func (s *Snapshot) Resample(ctx context.Context, t model.MetricType, from, to time.Time, bucket time.Duration) ([]model.Bucket, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQuery("resample", metrics.Since(start)) }()

	if bucket <= 0 {
		metrics.RecordErrorByComponent("repository", "invalid_bucket")
		return nil, ErrInvalidBucket
	}
	if from.After(to) {
		metrics.RecordErrorByComponent("repository", "invalid_range")
		return nil, ErrInvalidRange
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr := s.series[t]
	if sr == nil {
		return []model.Bucket{}, nil
	}

	agg := model.AggregationFor(t)
	i := sort.Search(len(sr.samples), func(i int) bool { return !sr.samples[i].Start.Before(from) })

	out := make([]model.Bucket, 0)
	var (
		cur    model.Bucket
		sum    float64
		curIdx = int64(-1)
	)
	flush := func() {
		if cur.Count == 0 {
			return
		}
		cur.Value = sum
		if agg == model.AggregateMean {
			cur.Value = sum / float64(cur.Count)
		}
		out = append(out, cur)
	}

	for n := 0; i < len(sr.samples); i, n = i+1, n+1 {
		if n%ctxCheckEvery == ctxCheckEvery-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		smp := sr.samples[i]
		if !smp.Start.Before(to) {
			break
		}
		k := int64(smp.Start.Sub(from) / bucket)
		if k != curIdx {
			flush()
			bStart := from.Add(time.Duration(k) * bucket)
			cur = model.Bucket{Start: bStart, End: bStart.Add(bucket)}
			sum = 0
			curIdx = k
		}
		sum += smp.Value
		cur.Count++
	}
	flush()
	return out, nil
}

// Types lists the metric types present, sorted by name.
func (s *Snapshot) Types(_ context.Context) []model.MetricType {
	out := make([]model.MetricType, 0, len(s.series))
	for t := range s.series {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of samples of t.
func (s *Snapshot) Count(_ context.Context, t model.MetricType) int {
	if sr := s.series[t]; sr != nil {
		return len(sr.samples)
	}
	return 0
}

// Series returns a copy of every sample of t.
func (s *Snapshot) Series(t model.MetricType) []model.Sample {
	sr := s.series[t]
	if sr == nil {
		return nil
	}
	out := make([]model.Sample, len(sr.samples))
	copy(out, sr.samples)
	return out
}

// Extent returns the earliest and latest sample start across all series.
func (s *Snapshot) Extent() (first, last time.Time, ok bool) {
	for _, sr := range s.series {
		if len(sr.samples) == 0 {
			continue
		}
		lo, hi := sr.samples[0].Start, sr.samples[len(sr.samples)-1].Start
		if !ok || lo.Before(first) {
			first = lo
		}
		if !ok || hi.After(last) {
			last = hi
		}
		ok = true
	}
	return first, last, ok
}

// Stats summarizes the snapshot.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Series:     len(s.series),
		Samples:    s.total,
		Generation: s.generation,
		PerType:    make(map[model.MetricType]int, len(s.series)),
	}
	for t, sr := range s.series {
		st.PerType[t] = len(sr.samples)
	}
	return st
}

// merge returns a new sorted slice holding cur plus batch. batch must be
// sorted with unique keys. On a key collision the sample already in cur wins.
func merge(cur, batch []model.Sample) (merged []model.Sample, inserted int) {
	merged = make([]model.Sample, 0, len(cur)+len(batch))
	i, j := 0, 0
	for i < len(cur) && j < len(batch) {
		switch {
		case model.Less(&cur[i], &batch[j]):
			merged = append(merged, cur[i])
			i++
		case model.Less(&batch[j], &cur[i]):
			merged = append(merged, batch[j])
			j++
			inserted++
		default:
			merged = append(merged, cur[i])
			i++
			j++
		}
	}
	merged = append(merged, cur[i:]...)
	inserted += len(batch) - j
	merged = append(merged, batch[j:]...)
	return merged, inserted
}
