package service

import (
	"errors"

	"github.com/okian/vitals/internal/adapters/mq/queue"
)

// Sentinel errors returned by the service.
var (
	// ErrNotStarted is returned by operations that need a running service.
	ErrNotStarted = errors.New("service not started")
	// ErrUnknownImport is returned for an import id that is not staged,
	// either because it never was or because it was committed, discarded or
	// expired.
	ErrUnknownImport = errors.New("unknown import")
	// ErrTooManyPending is returned by Stage when the staging area is full.
	ErrTooManyPending = errors.New("too many pending imports")
	// ErrUnknownMetric is returned when a request names a metric type that
	// the service does not know.
	ErrUnknownMetric = errors.New("unknown metric type")
	// ErrBackpressure is returned by Commit when the commit queue is full.
	ErrBackpressure = queue.ErrBackpressure
)
