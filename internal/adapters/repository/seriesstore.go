package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/metrics"
)

// SeriesStore is an in-memory, copy-on-write Store.
//
// Writers are serialized by mu and publish a fresh Snapshot through an
// atomic pointer; only the series touched by an Insert are copied. Readers
// load the pointer and never take a lock.
type SeriesStore struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

var _ Store = (*SeriesStore)(nil)

// NewSeriesStore creates an empty store and starts its gauge updater, which
// stops when ctx is done or Close is called.
func NewSeriesStore(ctx context.Context, opts ...Option) *SeriesStore {
	s := &SeriesStore{
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(emptySnapshot)
	s.startMetricsUpdater(ctx)
	return s
}

// Snapshot returns the current immutable view.
func (s *SeriesStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Generation returns the current store generation.
func (s *SeriesStore) Generation() uint64 {
	return s.Snapshot().generation
}

// Insert implements Store.Insert. The batch is sorted in O(n log n) and each
// affected series is merged linearly into a new copy before the snapshot is
// swapped, so concurrent readers see either all of the batch or none of it.
func (s *SeriesStore) Insert(ctx context.Context, samples []model.Sample) (InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return InsertResult{}, err
	}
	if len(samples) == 0 {
		return InsertResult{Generation: s.Generation()}, nil
	}

	batches, skipped := groupBatch(samples)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load()
	next := &Snapshot{
		series:     make(map[model.MetricType]*series, len(cur.series)+len(batches)),
		generation: cur.generation,
		total:      cur.total,
	}
	for t, sr := range cur.series {
		next.series[t] = sr
	}

	res := InsertResult{Skipped: skipped}
	for t, batch := range batches {
		var existing []model.Sample
		maxSpan := time.Duration(0)
		if sr := cur.series[t]; sr != nil {
			existing = sr.samples
			maxSpan = sr.maxSpan
		}
		merged, inserted := merge(existing, batch)
		res.Skipped += len(batch) - inserted
		if inserted == 0 {
			continue
		}
		for i := range batch {
			if sp := batch[i].Span(); sp > maxSpan {
				maxSpan = sp
			}
		}
		next.series[t] = &series{samples: merged, maxSpan: maxSpan}
		next.total += inserted
		res.Inserted += inserted
		res.Types = append(res.Types, t)
	}

	if res.Inserted > 0 {
		next.generation++
		s.snapshot.Store(next)
	}
	sort.Slice(res.Types, func(i, j int) bool { return res.Types[i] < res.Types[j] })
	res.Generation = s.snapshot.Load().generation
	return res, nil
}

// groupBatch splits samples per type, sorts each group and drops in-batch
// key repeats (first occurrence wins).
func groupBatch(samples []model.Sample) (map[model.MetricType][]model.Sample, int) {
	groups := make(map[model.MetricType][]model.Sample)
	for _, smp := range samples {
		groups[smp.Type] = append(groups[smp.Type], smp)
	}
	skipped := 0
	for t, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return model.Less(&g[i], &g[j]) })
		uniq := g[:1]
		for i := 1; i < len(g); i++ {
			if g[i].Key() == uniq[len(uniq)-1].Key() {
				skipped++
				continue
			}
			uniq = append(uniq, g[i])
		}
		groups[t] = uniq
	}
	return groups, skipped
}

// Range implements Reader.Range on the current snapshot.
func (s *SeriesStore) Range(ctx context.Context, t model.MetricType, from, to time.Time) ([]model.Sample, error) {
	return s.Snapshot().Range(ctx, t, from, to)
}

// Resample implements Reader.Resample on the current snapshot.
func (s *SeriesStore) Resample(ctx context.Context, t model.MetricType, from, to time.Time, bucket time.Duration) ([]model.Bucket, error) {
	return s.Snapshot().Resample(ctx, t, from, to, bucket)
}

// Types implements Reader.Types.
func (s *SeriesStore) Types(ctx context.Context) []model.MetricType {
	return s.Snapshot().Types(ctx)
}

// Count implements Reader.Count.
func (s *SeriesStore) Count(ctx context.Context, t model.MetricType) int {
	return s.Snapshot().Count(ctx, t)
}

// Export returns a copy of every series.
func (s *SeriesStore) Export(ctx context.Context) (map[model.MetricType][]model.Sample, error) {
	snap := s.Snapshot()
	out := make(map[model.MetricType][]model.Sample, len(snap.series))
	for t, sr := range snap.series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp := make([]model.Sample, len(sr.samples))
		copy(cp, sr.samples)
		out[t] = cp
	}
	return out, nil
}

// Stats summarizes the current snapshot.
func (s *SeriesStore) Stats() Stats {
	return s.Snapshot().Stats()
}

// Close stops the gauge updater.
func (s *SeriesStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater refreshes the store gauges periodically.
func (s *SeriesStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *SeriesStore) updateMetrics() {
	st := s.Stats()
	counts := make(map[string]int, len(st.PerType))
	for t, n := range st.PerType {
		counts[string(t)] = n
	}
	metrics.UpdateStoreSeries(counts, st.Generation)
}
