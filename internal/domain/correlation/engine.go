// Package correlation computes pairwise Pearson coefficients between
// resampled metric series and grades how far each one can be trusted.
package correlation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	model "github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
	"github.com/okian/vitals/pkg/metrics"
)

// Resampler is the read side the engine needs. A store snapshot satisfies it.
type Resampler interface {
	Resample(ctx context.Context, t model.MetricType, from, to time.Time, bucket time.Duration) ([]model.Bucket, error)
}

// Pair is an unordered metric pair.
type Pair struct {
	A model.MetricType `json:"a"`
	B model.MetricType `json:"b"`
}

// Label renders the pair as "a~b".
func (p Pair) Label() string { return string(p.A) + "~" + string(p.B) }

// DeclineReason explains why no coefficient was reported for a pair.
type DeclineReason string

// Decline reasons.
const (
	ReasonInsufficientOverlap DeclineReason = "insufficient_overlap"
	ReasonNoVariance          DeclineReason = "no_variance"
	ReasonNonFinite           DeclineReason = "non_finite"
)

// Result is the outcome of one pair. A declined pair is a valid result, not
// an error.
type Result struct {
	Pair     Pair          `json:"pair"`
	Found    bool          `json:"found"`
	Insight  model.Insight `json:"insight"`
	Reason   DeclineReason `json:"reason,omitempty"`
	Coverage int           `json:"coverage"`
	Window   model.Window  `json:"window"`
}

// Report is a full insight computation.
type Report struct {
	Insights []model.Insight `json:"insights"`
	Declined []Result        `json:"declined"`
	Window   model.Window    `json:"window"`
}

// Engine computes correlations. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	minOverlap  int
	granularity map[model.MetricType]time.Duration
	highWidth   float64
	mediumWidth float64
	lowCV       float64
	mediumCV    float64
	log         logger.Logger
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		minOverlap:  DefaultMinOverlap,
		granularity: make(map[model.MetricType]time.Duration),
		highWidth:   defaultHighMaxCIWidth,
		mediumWidth: defaultMediumMaxCIWidth,
		lowCV:       defaultLowCV,
		mediumCV:    defaultMediumCV,
		log:         logger.OrNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("correlation")
	return e
}

// MinOverlap returns the configured minimum number of shared buckets.
func (e *Engine) MinOverlap() int { return e.minOverlap }

// Granularity returns the bucket size used for t when the window sets none.
func (e *Engine) Granularity(t model.MetricType) time.Duration {
	if d, ok := e.granularity[t]; ok {
		return d
	}
	return model.GranularityFor(t)
}

// BucketFor returns the bucket size used to align a and b in window.
func (e *Engine) BucketFor(a, b model.MetricType, window model.Window) time.Duration {
	if window.Bucket > 0 {
		return window.Bucket
	}
	ga, gb := e.Granularity(a), e.Granularity(b)
	if ga > gb {
		return ga
	}
	return gb
}

// Correlate computes the coefficient between a and b over window. Swapping a
// and b yields the same coefficient and coverage.
func (e *Engine) Correlate(ctx context.Context, src Resampler, a, b model.MetricType, window model.Window) (Result, error) {
	if a == b {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidPair, a)
	}
	if window.From.IsZero() || window.To.IsZero() || !window.From.Before(window.To) {
		return Result{}, fmt.Errorf("%w: [%s, %s]", ErrInvalidWindow, window.From, window.To)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	w := window
	w.Bucket = e.BucketFor(a, b, window)
	res := Result{Pair: Pair{A: a, B: b}, Window: w}

	ba, err := src.Resample(ctx, a, w.From, w.To, w.Bucket)
	if err != nil {
		return Result{}, fmt.Errorf("resample %s: %w", a, err)
	}
	bb, err := src.Resample(ctx, b, w.From, w.To, w.Bucket)
	if err != nil {
		return Result{}, fmt.Errorf("resample %s: %w", b, err)
	}

	xs, ys := align(ba, bb)
	res.Coverage = len(xs)
	if res.Coverage < e.minOverlap {
		res.Reason = ReasonInsufficientOverlap
		metrics.RecordInsightDeclined(string(res.Reason), metrics.Since(start))
		return res, nil
	}

	mx, my := momentsOf(xs), momentsOf(ys)
	if !allFinite(xs) || !allFinite(ys) || !mx.finite() || !my.finite() {
		res.Reason = ReasonNonFinite
		metrics.RecordInsightDeclined(string(res.Reason), metrics.Since(start))
		return res, nil
	}
	r, ok := pearson(xs, ys, mx, my)
	switch {
	case !ok:
		res.Reason = ReasonNoVariance
	case math.IsNaN(r):
		res.Reason = ReasonNonFinite
	}
	if res.Reason != "" {
		metrics.RecordInsightDeclined(string(res.Reason), metrics.Since(start))
		return res, nil
	}

	cvA, cvB := mx.cv(len(xs)), my.cv(len(ys))
	lo, hi := fisherCI(r, len(xs))
	res.Found = true
	res.Insight = model.Insight{
		A:           a,
		B:           b,
		Coefficient: r,
		Coverage:    res.Coverage,
		Window:      w,
		Tier:        e.tier(hi-lo, math.Min(cvA, cvB)),
		CVA:         cvA,
		CVB:         cvB,
		CILow:       lo,
		CIHigh:      hi,
	}
	metrics.RecordInsight(metrics.Since(start))
	return res, nil
}

// tier grades a coefficient from its interval width and the smaller CV of
// the two series.
func (e *Engine) tier(width, minCV float64) model.ConfidenceTier {
	t := model.TierLow
	switch {
	case width <= e.highWidth:
		t = model.TierHigh
	case width <= e.mediumWidth:
		t = model.TierMedium
	}
	switch {
	case minCV < e.lowCV:
		t = model.TierLow
	case minCV < e.mediumCV && t > model.TierMedium:
		t = model.TierMedium
	}
	return t
}

// align keeps the buckets present in both series, matched on Start.
func align(a, b []model.Bucket) (xs, ys []float64) {
	xs = make([]float64, 0, min(len(a), len(b)))
	ys = make([]float64, 0, cap(xs))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Start.Before(b[j].Start):
			i++
		case b[j].Start.Before(a[i].Start):
			j++
		default:
			xs = append(xs, a[i].Value)
			ys = append(ys, b[j].Value)
			i++
			j++
		}
	}
	return xs, ys
}

// AllPairs returns every unordered pair of distinct types, each ordered by
// name.
func AllPairs(types []model.MetricType) []Pair {
	uniq := make([]model.MetricType, 0, len(types))
	seen := make(map[model.MetricType]struct{}, len(types))
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	pairs := make([]Pair, 0, len(uniq)*(len(uniq)-1)/2)
	for i := range uniq {
		for j := i + 1; j < len(uniq); j++ {
			pairs = append(pairs, Pair{A: uniq[i], B: uniq[j]})
		}
	}
	return pairs
}

// Rank orders insights by |r| times tier weight, then coverage, then pair
// label. It sorts in place.
func Rank(insights []model.Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		si, sj := insights[i].Score(), insights[j].Score()
		if si != sj {
			return si > sj
		}
		if insights[i].Coverage != insights[j].Coverage {
			return insights[i].Coverage > insights[j].Coverage
		}
		return labelOf(insights[i]) < labelOf(insights[j])
	})
}

func labelOf(in model.Insight) string { return Pair{A: in.A, B: in.B}.Label() }
