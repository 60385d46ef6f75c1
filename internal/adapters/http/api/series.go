package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/vitals/internal/domain/model"
)

// SeriesHandler serves raw and resampled series.
type SeriesHandler struct {
	deps SeriesDependencies
}

// NewSeriesHandler creates a new series handler.
func NewSeriesHandler(deps SeriesDependencies) *SeriesHandler {
	return &SeriesHandler{deps: deps}
}

type typesResponse struct {
	Types []model.MetricType `json:"types"`
}

type rangeResponse struct {
	Metric  model.MetricType `json:"metric"`
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	Samples []model.Sample   `json:"samples"`
}

type resampleResponse struct {
	Metric      model.MetricType `json:"metric"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	Bucket      string           `json:"bucket"`
	Aggregation string           `json:"aggregation"`
	Buckets     []model.Bucket   `json:"buckets"`
}

// HandleTypes handles GET /series.
func (h *SeriesHandler) HandleTypes(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_series"
	types, err := h.deps.Types(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if types == nil {
		types = []model.MetricType{}
	}
	writeJSON(w, http.StatusOK, typesResponse{Types: types})
}

// HandleRange handles GET /series/{metric}?from=&to= with RFC 3339 bounds.
func (h *SeriesHandler) HandleRange(w http.ResponseWriter, r *http.Request) {
	const op = "api.range"
	mt, err := metricParam(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	from, to, err := requiredWindow(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	samples, err := h.deps.Range(r.Context(), mt, from, to)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	writeJSON(w, http.StatusOK, rangeResponse{Metric: mt, From: from, To: to, Samples: samples})
}

// HandleResample handles GET /series/{metric}/resample?from=&to=&bucket=.
// Without bucket the metric's granularity is used.
func (h *SeriesHandler) HandleResample(w http.ResponseWriter, r *http.Request) {
	const op = "api.resample"
	mt, err := metricParam(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	from, to, err := requiredWindow(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	bucket, err := durationParam(r, "bucket")
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	buckets, err := h.deps.Resample(r.Context(), mt, from, to, bucket)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if buckets == nil {
		buckets = []model.Bucket{}
	}
	resp := resampleResponse{
		Metric:      mt,
		From:        from,
		To:          to,
		Aggregation: model.AggregationFor(mt).String(),
		Buckets:     buckets,
	}
	if bucket > 0 {
		resp.Bucket = bucket.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func metricParam(r *http.Request) (model.MetricType, error) {
	name := r.PathValue("metric")
	mt, ok := model.LookupType(name)
	if !ok {
		return "", WrapKind("metric", ErrBadRequest, fmt.Errorf("unknown metric %q", name))
	}
	return mt, nil
}

// timeParam parses an optional RFC 3339 query value.
func timeParam(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, WrapKind(key, ErrBadRequest, fmt.Errorf("must be RFC3339: %w", err))
	}
	return t.UTC(), nil
}

func requiredWindow(r *http.Request) (from, to time.Time, err error) {
	if from, err = timeParam(r, "from"); err != nil {
		return from, to, err
	}
	if to, err = timeParam(r, "to"); err != nil {
		return from, to, err
	}
	if from.IsZero() || to.IsZero() {
		return from, to, WrapKind("window", ErrBadRequest, errors.New("from and to are required"))
	}
	return from, to, nil
}

// durationParam parses an optional Go duration such as 1h or 24h.
func durationParam(r *http.Request, key string) (time.Duration, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, WrapKind(key, ErrBadRequest, fmt.Errorf("invalid duration %q", v))
	}
	return d, nil
}
