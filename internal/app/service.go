// Package service wires the importer, metric store, committer, correlation
// engine and persistence backend into the operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/vitals/internal/adapters/mq/queue"
	"github.com/okian/vitals/internal/adapters/mq/worker"
	"github.com/okian/vitals/internal/adapters/persistence"
	"github.com/okian/vitals/internal/adapters/repository"
	"github.com/okian/vitals/internal/domain/correlation"
	"github.com/okian/vitals/internal/domain/importer"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
	"github.com/okian/vitals/pkg/metrics"
)

// Service implements the API dependencies for the health data engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     *repository.SeriesStore
	importer  *importer.Importer
	engine    *correlation.Engine
	queue     *queue.InMemoryQueue
	committer *worker.Committer
	backend   persistence.Backend

	// Configuration
	queueSize       int
	importBatchSize int
	maxRejections   int
	dedupWindow     int
	accepted        model.MetricSet
	minOverlap      int
	granularity     map[model.MetricType]time.Duration
	highWidth       float64
	mediumWidth     float64
	lowCV           float64
	mediumCV        float64
	pendingTTL      time.Duration
	maxPending      int
	persistence     persistence.Config
	ownsBackend     bool
	now             func() time.Time

	// Staged imports
	pendingMu sync.Mutex
	pending   map[string]*pendingImport

	// Insight cache, reset whenever the store generation moves
	cacheMu  sync.Mutex
	cacheGen uint64
	cache    map[insightKey]correlation.Report

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:       64,
		importBatchSize: 500,
		maxRejections:   1000,
		minOverlap:      correlation.DefaultMinOverlap,
		highWidth:       0.30,
		mediumWidth:     0.60,
		lowCV:           0.01,
		mediumCV:        0.05,
		pendingTTL:      30 * time.Minute,
		maxPending:      16,
		persistence:     persistence.Config{Driver: persistence.DriverNone},
		now:             time.Now,
		pending:         make(map[string]*pendingImport),
		cache:           make(map[insightKey]correlation.Report),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the store, restores persisted series and starts the
// committer. Background work outlives ctx and stops with Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.OrNop()
	}
	s.logger.Info(ctx, "starting vitals service...")

	if s.backend == nil {
		b, err := persistence.Open(ctx, s.persistence)
		if err != nil {
			return fmt.Errorf("open persistence: %w", err)
		}
		s.backend = b
		s.ownsBackend = true
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	store := repository.NewSeriesStore(runCtx)

	restored, err := s.restore(ctx, store)
	if err != nil {
		cancel()
		_ = store.Close()
		s.closeBackend()
		return err
	}

	s.store = store
	s.importer = importer.New(
		importer.WithBatchSize(s.importBatchSize),
		importer.WithMaxRejections(s.maxRejections),
		importer.WithDedupWindow(s.dedupWindow),
		importer.WithLogger(s.logger),
	)
	s.engine = correlation.New(
		correlation.WithMinOverlap(s.minOverlap),
		correlation.WithGranularity(s.granularity),
		correlation.WithTierWidths(s.highWidth, s.mediumWidth),
		correlation.WithCVThresholds(s.lowCV, s.mediumCV),
		correlation.WithLogger(s.logger),
	)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.committer = worker.NewCommitter(s.queue, store,
		worker.WithLogger(s.logger),
		worker.WithCommitHook(persistHook(store, s.backend, s.logger)),
	)

	go s.committer.Run(runCtx)
	s.wg.Add(1)
	go s.evictLoop(runCtx)

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "vitals service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("restoredSamples", restored),
		logger.String("persistence", s.backend.Name()),
	)

	return nil
}

func (s *Service) restore(ctx context.Context, store *repository.SeriesStore) (int, error) {
	samples, err := s.backend.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore from %s: %w", s.backend.Name(), err)
	}
	if len(samples) == 0 {
		return 0, nil
	}
	res, err := store.Insert(ctx, samples)
	if err != nil {
		return 0, fmt.Errorf("restore from %s: %w", s.backend.Name(), err)
	}
	return res.Inserted, nil
}

// persistHook saves every series a commit touched. It runs on the committer
// goroutine, so the snapshot it reads is exactly the committed state.
func persistHook(store *repository.SeriesStore, backend persistence.Backend, log logger.Logger) worker.CommitHook {
	return func(ctx context.Context, res repository.InsertResult) {
		snap := store.Snapshot()
		series := make(map[model.MetricType][]model.Sample, len(res.Types))
		for _, t := range res.Types {
			series[t] = snap.Series(t)
		}
		if err := backend.Save(ctx, series); err != nil {
			metrics.RecordErrorByComponent("persistence", "save_failed")
			log.Error(ctx, "failed to persist commit",
				logger.String("backend", backend.Name()),
				logger.Int64("generation", int64(res.Generation)),
				logger.Error(err),
			)
		}
	}
}

// Stop drains queued commits, stops background work and releases the
// backend. Staged imports are dropped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping vitals service...")

	// Closing the queue lets the committer finish what is already queued.
	_ = s.queue.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	select {
	case <-s.committer.Done():
	case <-shutdownCtx.Done():
		_ = s.committer.Shutdown(shutdownCtx)
	}
	cancel()

	s.cancel()
	s.wg.Wait()
	_ = s.store.Close()
	s.closeBackend()

	s.pendingMu.Lock()
	s.pending = make(map[string]*pendingImport)
	s.pendingMu.Unlock()
	metrics.UpdatePendingImports(0)

	s.started = false
	s.logger.Info(ctx, "vitals service stopped")
}

func (s *Service) closeBackend() {
	if s.backend == nil {
		return
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Warn(context.Background(), "failed to close persistence", logger.Error(err))
	}
	if s.ownsBackend {
		s.backend = nil
		s.ownsBackend = false
	}
}

// running returns the components needed by a read, or ErrNotStarted.
func (s *Service) running() (*repository.SeriesStore, *correlation.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.engine, nil
}

// Stage parses an export and holds the result until it is committed or
// discarded. The store is not touched.
func (s *Service) Stage(ctx context.Context, req StageRequest, r io.Reader) (model.ImportReport, error) {
	s.mu.RLock()
	started, imp := s.started, s.importer
	s.mu.RUnlock()
	if !started {
		return model.ImportReport{}, ErrNotStarted
	}

	format, err := importer.ParseFormat(req.Format)
	if err != nil {
		return model.ImportReport{}, err
	}
	accepted, err := s.acceptedFor(req.Types)
	if err != nil {
		return model.ImportReport{}, err
	}
	if s.pendingCount() >= s.maxPending {
		return model.ImportReport{}, ErrTooManyPending
	}

	res, err := imp.Import(ctx, importer.Request{SourceID: req.SourceID, Format: format, Accepted: accepted}, r)
	if err != nil {
		return model.ImportReport{}, err
	}
	if err := s.addPending(res); err != nil {
		return model.ImportReport{}, err
	}
	return res.Report.Clone(), nil
}

// Commit applies a staged import through the committer and waits for the
// outcome. Committing the same export twice leaves the store unchanged the
// second time.
func (s *Service) Commit(ctx context.Context, id string) (CommitResult, error) {
	s.mu.RLock()
	started, q := s.started, s.queue
	s.mu.RUnlock()
	if !started {
		return CommitResult{}, ErrNotStarted
	}

	p, ok := s.takePending(id)
	if !ok {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrUnknownImport, id)
	}

	b := queue.NewBatch(id, p.samples)
	if !q.Enqueue(ctx, b) {
		s.returnPending(p)
		if err := ctx.Err(); err != nil {
			return CommitResult{}, err
		}
		return CommitResult{}, fmt.Errorf("commit %s: %w", id, ErrBackpressure)
	}

	select {
	case o := <-b.Reply:
		if o.Err != nil {
			return CommitResult{}, o.Err
		}
		return CommitResult{ImportID: id, Report: p.report.Clone(), InsertResult: o.Result}, nil
	case <-ctx.Done():
		return CommitResult{}, ctx.Err()
	}
}

// Import stages and commits in one call. The caller never sees the import
// ID, so a failed commit discards the staged import.
func (s *Service) Import(ctx context.Context, req StageRequest, r io.Reader) (CommitResult, error) {
	rep, err := s.Stage(ctx, req, r)
	if err != nil {
		return CommitResult{}, err
	}
	res, err := s.Commit(ctx, rep.ID)
	if err != nil {
		s.takePending(rep.ID)
		return CommitResult{}, err
	}
	return res, nil
}

// Discard drops a staged import.
func (s *Service) Discard(_ context.Context, id string) error {
	if _, ok := s.takePending(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownImport, id)
	}
	return nil
}

// Range returns the samples of t overlapping [from, to].
func (s *Service) Range(ctx context.Context, t model.MetricType, from, to time.Time) ([]model.Sample, error) {
	store, _, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.Range(ctx, t, from, to)
}

// Resample aggregates t into buckets. A zero bucket uses the metric's
// configured granularity.
func (s *Service) Resample(ctx context.Context, t model.MetricType, from, to time.Time, bucket time.Duration) ([]model.Bucket, error) {
	store, engine, err := s.running()
	if err != nil {
		return nil, err
	}
	if bucket == 0 {
		bucket = engine.Granularity(t)
	}
	return store.Resample(ctx, t, from, to, bucket)
}

// Types lists the metric types held by the store.
func (s *Service) Types(ctx context.Context) ([]model.MetricType, error) {
	store, _, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.Types(ctx), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"queueSize":      s.queueSize,
		"maxPending":     s.maxPending,
		"pendingImports": s.pendingCount(),
	}

	if s.started {
		st := s.store.Stats()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["series"] = st.Series
		stats["samples"] = st.Samples
		stats["generation"] = st.Generation
		stats["persistence"] = s.backend.Name()
	}

	return stats
}
