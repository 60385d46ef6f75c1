// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and VITALS_ environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/okian/vitals/internal/domain/model"
)

// Persistence drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// MinOverlapBuckets is the minimum number of aligned buckets before a
	// correlation is reported.
	MinOverlapBuckets int `koanf:"min_overlap_buckets"`

	// BucketDurations overrides the natural resampling granularity per metric.
	BucketDurations map[string]time.Duration `koanf:"bucket_durations"`

	// AcceptedMetricTypes filters imports. Empty or "all" accepts everything.
	AcceptedMetricTypes []string `koanf:"accepted_metric_types"`

	// ImportBatchSize is the number of export records parsed per import step.
	ImportBatchSize int `koanf:"import_batch_size"`

	// MaxRejections caps the rejection list kept in an import report.
	MaxRejections int `koanf:"max_rejections"`

	// DedupWindow bounds the import keys remembered per import. Zero keeps
	// every key.
	DedupWindow int `koanf:"dedup_window"`

	// MaxImportBytes bounds an uploaded export body.
	MaxImportBytes int64 `koanf:"max_import_bytes"`

	// PendingImportTTL evicts staged imports that were never committed.
	PendingImportTTL time.Duration `koanf:"pending_import_ttl"`

	// MaxPendingImports bounds staged imports held in memory.
	MaxPendingImports int `koanf:"max_pending_imports"`

	// CommitQueueSize bounds batches waiting for the committer.
	CommitQueueSize int `koanf:"commit_queue_size"`

	// PersistenceDriver is one of none, memory, badger, sqlite.
	PersistenceDriver string `koanf:"persistence_driver"`

	// PersistencePath is the badger directory or sqlite file.
	PersistencePath string `koanf:"persistence_path"`

	// CompressionLevel is the zstd level used by the badger codec (1-22).
	CompressionLevel int `koanf:"compression_level"`

	// HighTierMaxCIWidth and MediumTierMaxCIWidth bound the 95% interval
	// width of r for the high and medium confidence tiers.
	HighTierMaxCIWidth   float64 `koanf:"high_tier_max_ci_width"`
	MediumTierMaxCIWidth float64 `koanf:"medium_tier_max_ci_width"`

	// LowCV and MediumCV cap the tier of an insight whose flatter series has
	// a coefficient of variation below them: low, then at most medium.
	LowCV    float64 `koanf:"low_cv"`
	MediumCV float64 `koanf:"medium_cv"`

	// MetricsEnabled starts the background gauge refreshers.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshInterval is the period of the system gauge refresher.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval"`

	// MetricsNamespace, MetricsSubsystem and MetricsPrefix build metric
	// names as namespace_subsystem_prefix_name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsPrefix    string `koanf:"metrics_prefix"`

	// MetricsHistogramBuckets replaces the latency histogram buckets.
	MetricsHistogramBuckets []float64 `koanf:"metrics_histogram_buckets"`

	// MetricsLabels are constant labels attached to every metric.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config with defaults. The context is reserved for loaders
// that need it and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9090",
		MinOverlapBuckets:      10,
		BucketDurations:        map[string]time.Duration{},
		AcceptedMetricTypes:    []string{"all"},
		ImportBatchSize:        500,
		MaxRejections:          1000,
		MaxImportBytes:         512 << 20,
		PendingImportTTL:       30 * time.Minute,
		MaxPendingImports:      16,
		CommitQueueSize:        64,
		PersistenceDriver:      DriverNone,
		PersistencePath:        "vitals-data",
		CompressionLevel:       3,
		HighTierMaxCIWidth:     0.30,
		MediumTierMaxCIWidth:   0.60,
		LowCV:                  0.01,
		MediumCV:               0.05,
		MetricsEnabled:         true,
		MetricsRefreshInterval: 10 * time.Second,
		MetricsNamespace:       "vitals",
		MetricsSubsystem:       "engine",
		MetricsLabels:          map[string]string{},
		ShutdownTimeout:        10 * time.Second,
	}
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MinOverlapBuckets < 2:
		return fmt.Errorf("%w: min_overlap_buckets must be at least 2", ErrInvalidConfig)
	case c.ImportBatchSize <= 0:
		return fmt.Errorf("%w: import_batch_size must be positive", ErrInvalidConfig)
	case c.CommitQueueSize <= 0:
		return fmt.Errorf("%w: commit_queue_size must be positive", ErrInvalidConfig)
	case c.DedupWindow < 0:
		return fmt.Errorf("%w: dedup_window must not be negative", ErrInvalidConfig)
	case c.MaxImportBytes <= 0:
		return fmt.Errorf("%w: max_import_bytes must be positive", ErrInvalidConfig)
	case c.HighTierMaxCIWidth <= 0 || c.MediumTierMaxCIWidth < c.HighTierMaxCIWidth:
		return fmt.Errorf("%w: tier widths must satisfy 0 < high <= medium", ErrInvalidConfig)
	case c.LowCV < 0 || c.MediumCV < c.LowCV:
		return fmt.Errorf("%w: cv thresholds must satisfy 0 <= low_cv <= medium_cv", ErrInvalidConfig)
	case c.CompressionLevel < 1 || c.CompressionLevel > 22:
		return fmt.Errorf("%w: compression_level must be within 1..22", ErrInvalidConfig)
	}

	if err := c.validateMetrics(); err != nil {
		return err
	}

	switch c.PersistenceDriver {
	case DriverNone, DriverMemory:
	case DriverBadger, DriverSQLite:
		if c.PersistencePath == "" {
			return fmt.Errorf("%w: persistence_path is required for %s", ErrInvalidConfig, c.PersistenceDriver)
		}
	default:
		return fmt.Errorf("%w: unknown persistence_driver %q", ErrInvalidConfig, c.PersistenceDriver)
	}

	for name, d := range c.BucketDurations {
		if _, ok := model.LookupType(name); !ok {
			return fmt.Errorf("%w: bucket_durations: %w %q", ErrInvalidConfig, ErrUnknownMetric, name)
		}
		if d <= 0 {
			return fmt.Errorf("%w: bucket_durations[%s] must be positive", ErrInvalidConfig, name)
		}
	}
	if _, unknown := model.NewMetricSet(c.AcceptedMetricTypes...); len(unknown) > 0 {
		return fmt.Errorf("%w: accepted_metric_types: %w %s", ErrInvalidConfig, ErrUnknownMetric, strings.Join(unknown, ","))
	}
	return nil
}

// Granularities resolves BucketDurations to metric types.
func (c *Config) Granularities() map[model.MetricType]time.Duration {
	out := make(map[model.MetricType]time.Duration, len(c.BucketDurations))
	for name, d := range c.BucketDurations {
		if mt, ok := model.LookupType(name); ok {
			out[mt] = d
		}
	}
	return out
}

// AcceptedSet resolves AcceptedMetricTypes. Unknown names were rejected by
// Validate and are ignored here.
func (c *Config) AcceptedSet() model.MetricSet {
	set, _ := model.NewMetricSet(c.AcceptedMetricTypes...)
	return set
}

var metricNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (c *Config) validateMetrics() error {
	if c.MetricsRefreshInterval <= 0 {
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	}
	if !metricNameRE.MatchString(c.MetricsNamespace) {
		return fmt.Errorf("%w: metrics_namespace %q is not a metric name", ErrInvalidConfig, c.MetricsNamespace)
	}
	for key, v := range map[string]string{"metrics_subsystem": c.MetricsSubsystem, "metrics_prefix": c.MetricsPrefix} {
		if v != "" && !metricNameRE.MatchString(v) {
			return fmt.Errorf("%w: %s %q is not a metric name", ErrInvalidConfig, key, v)
		}
	}
	for name := range c.MetricsLabels {
		if !metricNameRE.MatchString(name) || strings.HasPrefix(name, "__") {
			return fmt.Errorf("%w: metrics_labels key %q is not a label name", ErrInvalidConfig, name)
		}
	}
	for i := 1; i < len(c.MetricsHistogramBuckets); i++ {
		if c.MetricsHistogramBuckets[i] <= c.MetricsHistogramBuckets[i-1] {
			return fmt.Errorf("%w: metrics_histogram_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}
