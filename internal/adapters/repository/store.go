// Package repository holds the metric store: per-metric time-sorted sample
// series with range and resample queries.
package repository

import (
	"context"
	"time"

	"github.com/okian/vitals/internal/domain/model"
)

// InsertResult reports what one Insert call changed.
type InsertResult struct {
	// Inserted is the number of samples added to the store.
	Inserted int `json:"inserted"`
	// Skipped is the number of samples whose key was already present,
	// either in the store or earlier in the same batch.
	Skipped int `json:"skipped"`
	// Generation is the store generation after the call.
	Generation uint64 `json:"generation"`
	// Types lists the metric types that received samples.
	Types []model.MetricType `json:"types,omitempty"`
}

// Stats summarizes store contents.
type Stats struct {
	Series     int                      `json:"series"`
	Samples    int                      `json:"samples"`
	Generation uint64                   `json:"generation"`
	PerType    map[model.MetricType]int `json:"per_type"`
}

// Reader is the read side of the store. Every call works on one immutable
// snapshot and never blocks writers.
type Reader interface {
	// Range returns copies of the samples of t overlapping [from, to].
	Range(ctx context.Context, t model.MetricType, from, to time.Time) ([]model.Sample, error)
	// Resample aggregates samples of t starting in [from, to) into
	// buckets aligned at from. Empty buckets are omitted.
	Resample(ctx context.Context, t model.MetricType, from, to time.Time, bucket time.Duration) ([]model.Bucket, error)
	// Types lists metric types with at least one sample.
	Types(ctx context.Context) []model.MetricType
	// Count returns the number of samples held for t.
	Count(ctx context.Context, t model.MetricType) int
}

// Store provides read/write access to the metric series.
type Store interface {
	Reader
	// Insert merges samples into their series. A sample whose key is
	// already present is skipped, so inserting the same batch twice
	// leaves the store unchanged.
	Insert(ctx context.Context, samples []model.Sample) (InsertResult, error)
	// Snapshot pins the current state for a sequence of consistent reads.
	Snapshot() *Snapshot
	// Generation increments on every Insert that changed the store.
	Generation() uint64
	// Export returns a copy of every series, keyed by type.
	Export(ctx context.Context) (map[model.MetricType][]model.Sample, error)
	Stats() Stats
	Close() error
}
