package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/vitals/internal/adapters/dashboard"
	"github.com/okian/vitals/internal/adapters/repository"
	"github.com/okian/vitals/internal/domain/correlation"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/metrics"
)

// InsightQuery selects the window and metrics for insights and dashboards.
type InsightQuery struct {
	// Window bounds the data. A zero From or To is filled from the extent
	// of the stored data, rounded out to whole days.
	Window model.Window
	// Types limits the metrics considered. Empty means every stored type.
	Types []model.MetricType
}

type insightKey struct {
	from, to int64
	bucket   time.Duration
	types    string
}

// Insights ranks the correlations between every pair of selected metrics.
// Results are cached until the next effective commit.
func (s *Service) Insights(ctx context.Context, q InsightQuery) (correlation.Report, error) {
	store, engine, err := s.running()
	if err != nil {
		return correlation.Report{}, err
	}
	return s.insightsOn(ctx, engine, store.Snapshot(), q)
}

func (s *Service) insightsOn(ctx context.Context, engine *correlation.Engine, snap *repository.Snapshot, q InsightQuery) (correlation.Report, error) {
	types := q.Types
	if len(types) == 0 {
		types = snap.Types(ctx)
	}
	window, ok := resolveWindow(snap, q.Window)
	if !ok {
		return correlation.Report{Insights: []model.Insight{}, Declined: []correlation.Result{}}, nil
	}

	key := insightKey{from: window.From.UnixNano(), to: window.To.UnixNano(), bucket: window.Bucket, types: typesKey(types)}
	if rep, ok := s.cached(snap.Generation(), key); ok {
		metrics.RecordInsightCacheHit()
		return rep, nil
	}

	rep, err := engine.ComputeInsights(ctx, snap, correlation.AllPairs(types), window)
	if err != nil {
		return correlation.Report{}, err
	}
	s.remember(snap.Generation(), key, rep)
	return cloneReport(rep), nil
}

// Dashboard builds the charts and insight cards for q from one snapshot.
func (s *Service) Dashboard(ctx context.Context, q InsightQuery) (dashboard.View, error) {
	store, engine, err := s.running()
	if err != nil {
		return dashboard.View{}, err
	}
	snap := store.Snapshot()
	rep, err := s.insightsOn(ctx, engine, snap, q)
	if err != nil {
		return dashboard.View{}, err
	}

	types := q.Types
	if len(types) == 0 {
		types = snap.Types(ctx)
	}
	window, ok := resolveWindow(snap, q.Window)
	if !ok {
		return dashboard.Build(nil, rep), nil
	}

	charts := make([]dashboard.Chart, 0, len(types))
	for _, t := range types {
		bucket := window.Bucket
		if bucket == 0 {
			bucket = engine.Granularity(t)
		}
		buckets, err := snap.Resample(ctx, t, window.From, window.To, bucket)
		if err != nil {
			return dashboard.View{}, fmt.Errorf("chart %s: %w", t, err)
		}
		charts = append(charts, dashboard.Series(t, buckets))
	}
	return dashboard.Build(charts, rep), nil
}

// resolveWindow fills missing bounds from the snapshot. ok is false when a
// bound is missing and the snapshot is empty.
func resolveWindow(snap *repository.Snapshot, w model.Window) (model.Window, bool) {
	if !w.From.IsZero() && !w.To.IsZero() {
		return w, true
	}
	first, last, ok := snap.Extent()
	if !ok {
		return w, false
	}
	if w.From.IsZero() {
		w.From = first.UTC().Truncate(model.Daily)
	}
	if w.To.IsZero() {
		w.To = last.UTC().Truncate(model.Daily).Add(model.Daily)
	}
	return w, true
}

func typesKey(types []model.MetricType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func (s *Service) cached(gen uint64, key insightKey) (correlation.Report, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.cacheGen {
		return correlation.Report{}, false
	}
	rep, ok := s.cache[key]
	if !ok {
		return correlation.Report{}, false
	}
	return cloneReport(rep), true
}

func (s *Service) remember(gen uint64, key insightKey, rep correlation.Report) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen < s.cacheGen {
		return
	}
	if gen != s.cacheGen {
		s.cacheGen = gen
		s.cache = make(map[insightKey]correlation.Report)
	}
	s.cache[key] = rep
}

func cloneReport(rep correlation.Report) correlation.Report {
	out := rep
	out.Insights = append([]model.Insight{}, rep.Insights...)
	out.Declined = append([]correlation.Result{}, rep.Declined...)
	return out
}
