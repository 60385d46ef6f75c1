package correlation

import (
	"time"

	model "github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
)

// Default engine configuration constants.
const (
	DefaultMinOverlap       = 10
	defaultHighMaxCIWidth   = 0.30
	defaultMediumMaxCIWidth = 0.60
	defaultLowCV            = 0.01
	defaultMediumCV         = 0.05
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithMinOverlap sets the number of shared buckets required before a
// coefficient is reported. Values below 2 are ignored.
func WithMinOverlap(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.minOverlap = n
		}
	}
}

// WithGranularity overrides the natural bucket size of individual metrics.
func WithGranularity(g map[model.MetricType]time.Duration) Option {
	return func(e *Engine) {
		// Copy the map to avoid external modifications
		for t, d := range g {
			if d > 0 {
				e.granularity[t] = d
			}
		}
	}
}

// WithTierWidths sets the largest confidence interval width still counted as
// high and medium confidence.
func WithTierWidths(high, medium float64) Option {
	return func(e *Engine) {
		if high > 0 && medium >= high {
			e.highWidth = high
			e.mediumWidth = medium
		}
	}
}

// WithCVThresholds sets the coefficient of variation below which a tier is
// forced to low, and below which it is capped at medium.
func WithCVThresholds(low, medium float64) Option {
	return func(e *Engine) {
		if low >= 0 && medium >= low {
			e.lowCV = low
			e.mediumCV = medium
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
