package repository

import "time"

// Option applies a configuration option to the SeriesStore.
type Option func(*SeriesStore)

// WithMetricsUpdateInterval sets the interval for background gauge updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *SeriesStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
