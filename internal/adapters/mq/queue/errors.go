package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	// ErrBackpressure is returned by callers when Enqueue refused a batch.
	ErrBackpressure = errors.New("commit queue full")
	// ErrStopped is delivered to batches left behind when the committer stops.
	ErrStopped = errors.New("committer stopped")
)
