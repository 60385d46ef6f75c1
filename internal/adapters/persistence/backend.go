// Package persistence saves committed metric series so the store survives a
// restart. Backends write whole series; the store remains the source of truth
// while the process runs.
package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	model "github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/metrics"
)

// Driver names accepted by Open.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Backend stores metric series.
type Backend interface {
	// Name returns the driver name.
	Name() string
	// Save writes each given series in full. Samples already stored under
	// the same series key are kept.
	Save(ctx context.Context, series map[model.MetricType][]model.Sample) error
	// Load returns every stored sample.
	Load(ctx context.Context) ([]model.Sample, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver           string
	Path             string
	CompressionLevel int
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return Nop{}, nil
	case DriverMemory:
		return NewMemory(), nil
	case DriverBadger:
		return OpenBadger(ctx, filepath.Join(cfg.Path, "badger"), cfg.CompressionLevel)
	case DriverSQLite:
		return OpenSQLite(ctx, filepath.Join(cfg.Path, "vitals.db"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Name() string                                                    { return DriverNone }
func (Nop) Save(context.Context, map[model.MetricType][]model.Sample) error { return nil }
func (Nop) Load(context.Context) ([]model.Sample, error)                    { return nil, nil }
func (Nop) Close() error                                                    { return nil }

// Memory keeps series in process. It backs tests and short-lived runs.
type Memory struct {
	mu     sync.RWMutex
	series map[model.MetricType]map[model.SeriesKey]model.Sample
	closed bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{series: make(map[model.MetricType]map[model.SeriesKey]model.Sample)}
}

func (m *Memory) Name() string { return DriverMemory }

func (m *Memory) Save(ctx context.Context, series map[model.MetricType][]model.Sample) error {
	start := time.Now()
	err := m.save(ctx, series)
	metrics.RecordPersistence(DriverMemory, "save", err, metrics.Since(start))
	return err
}

func (m *Memory) save(ctx context.Context, series map[model.MetricType][]model.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for t, samples := range series {
		byKey, ok := m.series[t]
		if !ok {
			byKey = make(map[model.SeriesKey]model.Sample, len(samples))
			m.series[t] = byKey
		}
		for _, s := range samples {
			if _, exists := byKey[s.Key()]; !exists {
				byKey[s.Key()] = s
			}
		}
	}
	return nil
}

func (m *Memory) Load(ctx context.Context) ([]model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []model.Sample
	for _, byKey := range m.series {
		for _, s := range byKey {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return model.Less(&out[i], &out[j])
	})
	metrics.RecordPersistence(DriverMemory, "load", nil, 0)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// mergeSeries adds incoming samples to stored ones, keeping the stored
// sample when both share a series key. The result is ordered.
func mergeSeries(stored, incoming []model.Sample) []model.Sample {
	seen := make(map[model.SeriesKey]struct{}, len(stored)+len(incoming))
	out := make([]model.Sample, 0, len(stored)+len(incoming))
	for _, batch := range [][]model.Sample{stored, incoming} {
		for _, s := range batch {
			if _, ok := seen[s.Key()]; ok {
				continue
			}
			seen[s.Key()] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return model.Less(&out[i], &out[j]) })
	return out
}
