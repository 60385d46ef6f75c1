package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/vitals/internal/adapters/repository"
	"github.com/okian/vitals/internal/domain/importer"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
	"github.com/okian/vitals/pkg/metrics"
)

// StageRequest describes an export to stage.
type StageRequest struct {
	// SourceID attributes the samples to an export source.
	SourceID string
	// Format is "auto", "xml" or "json"; empty means auto.
	Format string
	// Types narrows the metric types kept by this import. Names may be
	// canonical or HealthKit identifiers. Empty keeps the service default.
	Types []string
}

// CommitResult reports a committed import.
type CommitResult struct {
	ImportID string             `json:"import_id"`
	Report   model.ImportReport `json:"report"`
	repository.InsertResult
}

type pendingImport struct {
	report  model.ImportReport
	samples []model.Sample
	expires time.Time
}

func (s *Service) acceptedFor(names []string) (model.MetricSet, error) {
	if len(names) == 0 {
		return s.accepted, nil
	}
	set, unknown := model.NewMetricSet(names...)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMetric, unknown)
	}
	if set.All() {
		return s.accepted, nil
	}
	if s.accepted.All() {
		return set, nil
	}
	out := make(model.MetricSet, len(set))
	for t := range set {
		if s.accepted.Allows(t) {
			out[t] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of %v is accepted", ErrUnknownMetric, names)
	}
	return out, nil
}

func (s *Service) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

func (s *Service) addPending(res importer.Result) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	s.evictExpiredLocked(s.now())
	if len(s.pending) >= s.maxPending {
		return ErrTooManyPending
	}
	s.pending[res.Report.ID] = &pendingImport{
		report:  res.Report,
		samples: res.Samples,
		expires: s.now().Add(s.pendingTTL),
	}
	metrics.UpdatePendingImports(len(s.pending))
	return nil
}

// takePending removes and returns a live staged import.
func (s *Service) takePending(id string) (*pendingImport, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return nil, false
	}
	delete(s.pending, id)
	metrics.UpdatePendingImports(len(s.pending))
	if !s.now().Before(p.expires) {
		return nil, false
	}
	return p, true
}

// returnPending puts back an import whose commit could not be queued.
func (s *Service) returnPending(p *pendingImport) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[p.report.ID] = p
	metrics.UpdatePendingImports(len(s.pending))
}

// Pending returns the report of a staged import.
func (s *Service) Pending(_ context.Context, id string) (model.ImportReport, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	p, ok := s.pending[id]
	if !ok || !s.now().Before(p.expires) {
		return model.ImportReport{}, fmt.Errorf("%w: %s", ErrUnknownImport, id)
	}
	return p.report.Clone(), nil
}

// PendingImports lists staged imports, oldest first.
func (s *Service) PendingImports(_ context.Context) []model.ImportReport {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	now := s.now()
	out := make([]model.ImportReport, 0, len(s.pending))
	for _, p := range s.pending {
		if now.Before(p.expires) {
			out = append(out, p.report.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Service) evictExpiredLocked(now time.Time) int {
	n := 0
	for id, p := range s.pending {
		if !now.Before(p.expires) {
			delete(s.pending, id)
			n++
		}
	}
	if n > 0 {
		metrics.UpdatePendingImports(len(s.pending))
	}
	return n
}

// evictLoop drops expired staged imports until ctx is done.
func (s *Service) evictLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.pendingTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pendingMu.Lock()
			n := s.evictExpiredLocked(s.now())
			s.pendingMu.Unlock()
			if n > 0 {
				s.logger.Info(ctx, "expired staged imports", logger.Int("count", n))
			}
		}
	}
}
