package importer

import (
	"time"

	"github.com/okian/vitals/pkg/logger"
)

const (
	defaultBatchSize     = 500
	defaultMaxRejections = 1000
)

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize sets how many records one Job.Next call parses.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithMaxRejections caps the rejections listed in a report. Counts are
// always complete; only the detail list is truncated.
func WithMaxRejections(n int) Option {
	return func(i *Importer) {
		if n >= 0 {
			i.maxRejections = n
		}
	}
}

// WithDedupWindow bounds the import keys a Job remembers; once full the
// oldest key is forgotten. n <= 0 remembers every key.
func WithDedupWindow(n int) Option {
	return func(i *Importer) {
		i.dedupWindow = n
	}
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Importer) {
		if l != nil {
			i.log = l
		}
	}
}

// WithIDGenerator overrides report ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(i *Importer) {
		if gen != nil {
			i.newID = gen
		}
	}
}
