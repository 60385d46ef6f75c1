// Package worker runs the single committer that applies staged imports to
// the metric store in queue order.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/vitals/internal/adapters/mq/queue"
	"github.com/okian/vitals/internal/adapters/repository"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
	"github.com/okian/vitals/pkg/metrics"
)

// Outcome is the committer's answer to one batch.
type Outcome = queue.Outcome

// Inserter applies samples to the metric store.
type Inserter interface {
	Insert(ctx context.Context, samples []model.Sample) (repository.InsertResult, error)
}

// Queue defines how the committer receives batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Batch
}

// CommitHook runs on the committer goroutine after a successful insert that
// changed the store.
type CommitHook func(ctx context.Context, res repository.InsertResult)

// Worker processes batches until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// Committer is the only writer of the metric store. Run it on exactly one
// goroutine.
type Committer struct {
	queue    Queue
	inserter Inserter
	name     string
	hooks    []CommitHook

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

var _ Worker = (*Committer)(nil)

// NewCommitter creates a committer reading from q and writing to ins.
func NewCommitter(q Queue, ins Inserter, opts ...Option) *Committer {
	w := &Committer{
		queue:    q,
		inserter: ins,
		name:     "committer",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.OrNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run drains the queue until the queue closes, ctx is done or Shutdown is
// called. Batches still queued at that point are answered with ErrStopped.
func (w *Committer) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx, batches)
			return
		case <-w.shutdown:
			w.drain(ctx, batches)
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			w.commit(ctx, b)
		}
	}
}

// Done is closed once Run has returned.
func (w *Committer) Done() <-chan struct{} { return w.done }

// Shutdown gracefully stops the committer.
func (w *Committer) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Committer) commit(ctx context.Context, b queue.Batch) {
	metrics.RecordQueueDequeue()
	start := time.Now()

	res, err := w.inserter.Insert(ctx, b.Samples)
	latency := metrics.Since(start)
	if err != nil {
		metrics.RecordCommit("error", latency, 0, 0)
		metrics.RecordErrorByComponent("committer", "insert_failed")
		w.logger.Error(ctx, "commit failed",
			logger.String("import_id", b.ImportID),
			logger.Error(err),
		)
		reply(b, Outcome{ImportID: b.ImportID, Err: fmt.Errorf("commit %s: %w", b.ImportID, err)})
		return
	}

	metrics.RecordCommit("ok", latency, res.Inserted, res.Skipped)
	w.logger.Info(ctx, "import committed",
		logger.String("import_id", b.ImportID),
		logger.Int("inserted", res.Inserted),
		logger.Int("skipped", res.Skipped),
		logger.Int64("generation", int64(res.Generation)),
	)
	if res.Inserted > 0 {
		for _, h := range w.hooks {
			h(ctx, res)
		}
	}
	reply(b, Outcome{ImportID: b.ImportID, Result: res})
}

// drain answers batches that will never be committed.
func (w *Committer) drain(ctx context.Context, batches <-chan queue.Batch) {
	for {
		select {
		case b, ok := <-batches:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "dropping queued commit", logger.String("import_id", b.ImportID))
			reply(b, Outcome{ImportID: b.ImportID, Err: queue.ErrStopped})
		default:
			return
		}
	}
}

func reply(b queue.Batch, o Outcome) {
	if b.Reply == nil {
		return
	}
	select {
	case b.Reply <- o:
	default:
	}
}
