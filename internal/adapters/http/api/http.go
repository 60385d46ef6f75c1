// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/vitals/internal/adapters/dashboard"
	"github.com/okian/vitals/internal/adapters/mq/queue"
	"github.com/okian/vitals/internal/adapters/repository"
	service "github.com/okian/vitals/internal/app"
	"github.com/okian/vitals/internal/domain/correlation"
	"github.com/okian/vitals/internal/domain/importer"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ImportDependencies
	SeriesDependencies
	InsightDependencies
}

// ImportDependencies stage, inspect, commit and discard exports.
type ImportDependencies interface {
	Stage(ctx context.Context, req service.StageRequest, r io.Reader) (model.ImportReport, error)
	Import(ctx context.Context, req service.StageRequest, r io.Reader) (service.CommitResult, error)
	Commit(ctx context.Context, id string) (service.CommitResult, error)
	Discard(ctx context.Context, id string) error
	Pending(ctx context.Context, id string) (model.ImportReport, error)
	PendingImports(ctx context.Context) []model.ImportReport
}

// SeriesDependencies read the metric store.
type SeriesDependencies interface {
	Types(ctx context.Context) ([]model.MetricType, error)
	Range(ctx context.Context, t model.MetricType, from, to time.Time) ([]model.Sample, error)
	Resample(ctx context.Context, t model.MetricType, from, to time.Time, bucket time.Duration) ([]model.Bucket, error)
}

// InsightDependencies compute correlations and dashboards.
type InsightDependencies interface {
	Insights(ctx context.Context, q service.InsightQuery) (correlation.Report, error)
	Dashboard(ctx context.Context, q service.InsightQuery) (dashboard.View, error)
}

// Option configures a Server.
type Option func(*Server)

// WithMaxImportBytes bounds uploaded export bodies.
func WithMaxImportBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.importsHandler.maxBytes = n
		}
	}
}

const defaultMaxImportBytes = 512 << 20

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	importsHandler  *ImportsHandler
	seriesHandler   *SeriesHandler
	insightsHandler *InsightsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		importsHandler:  NewImportsHandler(deps, defaultMaxImportBytes),
		seriesHandler:   NewSeriesHandler(deps),
		insightsHandler: NewInsightsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /imports", MetricsMiddleware(s.importsHandler.HandleStage, "imports"))
	mux.HandleFunc("GET /imports", MetricsMiddleware(s.importsHandler.HandleList, "imports"))
	mux.HandleFunc("GET /imports/{id}", MetricsMiddleware(s.importsHandler.HandleGet, "import"))
	mux.HandleFunc("DELETE /imports/{id}", MetricsMiddleware(s.importsHandler.HandleDiscard, "import"))
	mux.HandleFunc("POST /imports/{id}/commit", MetricsMiddleware(s.importsHandler.HandleCommit, "commit"))

	mux.HandleFunc("GET /series", MetricsMiddleware(s.seriesHandler.HandleTypes, "series"))
	mux.HandleFunc("GET /series/{metric}", MetricsMiddleware(s.seriesHandler.HandleRange, "range"))
	mux.HandleFunc("GET /series/{metric}/resample", MetricsMiddleware(s.seriesHandler.HandleResample, "resample"))

	mux.HandleFunc("GET /insights", MetricsMiddleware(s.insightsHandler.HandleInsights, "insights"))
	mux.HandleFunc("GET /dashboard", MetricsMiddleware(s.insightsHandler.HandleDashboard, "dashboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before writing the status line so an unencodable
// payload becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	log := logger.OrNop().Named("api")
	body, err := json.Marshal(v)
	if err != nil {
		log.Error(context.Background(), "encode response failed", logger.Int("status", status), logger.Error(err))
		status = http.StatusInternalServerError
		recordErrorCode(w, "internal_error")
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: "response encoding failed"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Debug(context.Background(), "write response failed", logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	recordErrorCode(w, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain errors to a status and error code.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, Wrap(op, err))
}

func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, importer.ErrMalformedExport):
		return http.StatusBadRequest, "malformed_export"
	case errors.Is(err, importer.ErrUnknownFormat):
		return http.StatusBadRequest, "unknown_format"
	case errors.Is(err, service.ErrUnknownMetric):
		return http.StatusBadRequest, "unknown_metric"
	case errors.Is(err, repository.ErrInvalidRange), errors.Is(err, repository.ErrInvalidBucket):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, correlation.ErrInvalidWindow), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnknownImport), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrTooManyPending):
		return http.StatusTooManyRequests, "too_many_pending"
	case errors.Is(err, queue.ErrBackpressure), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
