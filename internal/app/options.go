package service

import (
	"time"

	"github.com/okian/vitals/internal/adapters/persistence"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueueSize sets how many commits may wait for the committer.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithImportBatchSize sets how many records an import parses per step.
func WithImportBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.importBatchSize = n
		}
	}
}

// WithMaxRejections caps the rejection details kept per import.
func WithMaxRejections(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRejections = n
		}
	}
}

// WithDedupWindow bounds the duplicate keys remembered per import. Zero or
// less keeps every key.
func WithDedupWindow(n int) Option {
	return func(s *Service) {
		s.dedupWindow = n
	}
}

// WithAcceptedTypes sets the metric types imports keep by default. An empty
// set accepts everything.
func WithAcceptedTypes(set model.MetricSet) Option {
	return func(s *Service) {
		s.accepted = set
	}
}

// WithMinOverlap sets the minimum number of shared buckets for an insight.
func WithMinOverlap(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.minOverlap = n
		}
	}
}

// WithGranularity overrides per-metric bucket sizes.
func WithGranularity(g map[model.MetricType]time.Duration) Option {
	return func(s *Service) {
		s.granularity = g
	}
}

// WithTierWidths sets the confidence interval widths for high and medium
// confidence.
func WithTierWidths(high, medium float64) Option {
	return func(s *Service) {
		if high > 0 && medium >= high {
			s.highWidth, s.mediumWidth = high, medium
		}
	}
}

// WithCVThresholds sets the coefficient of variation cutoffs below which an
// insight is demoted to low or at most medium confidence.
func WithCVThresholds(low, medium float64) Option {
	return func(s *Service) {
		if low >= 0 && medium >= low {
			s.lowCV, s.mediumCV = low, medium
		}
	}
}

// WithPendingTTL sets how long a staged import waits for commit.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// WithMaxPending caps the number of staged imports.
func WithMaxPending(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPending = n
		}
	}
}

// WithPersistence selects the snapshot backend opened on Start.
func WithPersistence(cfg persistence.Config) Option {
	return func(s *Service) {
		s.persistence = cfg
	}
}

// WithBackend uses an already opened backend. It takes precedence over
// WithPersistence and is closed by Stop.
func WithBackend(b persistence.Backend) Option {
	return func(s *Service) {
		s.backend = b
	}
}

// WithClock replaces time.Now for pending import expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
