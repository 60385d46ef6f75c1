package api

import (
	"fmt"
	"net/http"

	service "github.com/okian/vitals/internal/app"
	"github.com/okian/vitals/internal/domain/model"
)

// InsightsHandler serves correlation reports and the dashboard view.
type InsightsHandler struct {
	deps InsightDependencies
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(deps InsightDependencies) *InsightsHandler {
	return &InsightsHandler{deps: deps}
}

// HandleInsights handles GET /insights?from=&to=&bucket=&types=.
func (h *InsightsHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	const op = "api.insights"
	q, err := insightQuery(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	rep, err := h.deps.Insights(r.Context(), q)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleDashboard handles GET /dashboard with the same query as /insights.
func (h *InsightsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.dashboard"
	q, err := insightQuery(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	view, err := h.deps.Dashboard(r.Context(), q)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func insightQuery(r *http.Request) (service.InsightQuery, error) {
	var q service.InsightQuery
	var err error
	if q.Window.From, err = timeParam(r, "from"); err != nil {
		return q, err
	}
	if q.Window.To, err = timeParam(r, "to"); err != nil {
		return q, err
	}
	if !q.Window.From.IsZero() && !q.Window.To.IsZero() && !q.Window.From.Before(q.Window.To) {
		return q, NewKind("window", ErrBadRequest)
	}
	if q.Window.Bucket, err = durationParam(r, "bucket"); err != nil {
		return q, err
	}
	for _, name := range splitList(r.URL.Query().Get("types")) {
		mt, ok := model.LookupType(name)
		if !ok {
			return q, WrapKind("types", service.ErrUnknownMetric, fmt.Errorf("%q", name))
		}
		q.Types = append(q.Types, mt)
	}
	return q, nil
}
