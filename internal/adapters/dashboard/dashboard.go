// Package dashboard shapes store reads and insight reports into
// presentation-ready views. Everything here is a pure function of its input.
package dashboard

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/okian/vitals/internal/domain/correlation"
	model "github.com/okian/vitals/internal/domain/model"
)

// Status tells a UI how to render an insight card.
type Status string

// Card statuses. Insufficient data is distinct from a coefficient near zero.
const (
	StatusInsight          Status = "insight"
	StatusInsufficientData Status = "insufficient_data"
	StatusNoVariance       Status = "no_variance"
	StatusInvalidData      Status = "invalid_data"
)

var unitLabels = map[model.Unit]string{
	model.UnitCount:       "steps",
	model.UnitPerMinute:   "bpm",
	model.UnitMillisecond: "ms",
	model.UnitHour:        "hours",
	model.UnitMinute:      "minutes",
	model.UnitKilogram:    "kg",
	model.UnitKilocalorie: "kcal",
	model.UnitKilometer:   "km",
	model.UnitPercent:     "%",
	model.UnitCelsius:     "°C",
}

// Point is one chart value.
type Point struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
	Count int       `json:"n,omitempty"`
}

// Chart is a single metric series ready for plotting.
type Chart struct {
	Metric      model.MetricType `json:"metric"`
	Label       string           `json:"label"`
	Unit        string           `json:"unit"`
	Aggregation string           `json:"aggregation"`
	Points      []Point          `json:"points"`
	Summary     string           `json:"summary"`
}

// Card summarizes one metric pair.
type Card struct {
	Pair        string         `json:"pair"`
	Title       string         `json:"title"`
	Status      Status         `json:"status"`
	Coefficient float64        `json:"coefficient"`
	Direction   string         `json:"direction,omitempty"`
	Strength    string         `json:"strength,omitempty"`
	Tier        string         `json:"tier,omitempty"`
	Score       float64        `json:"score"`
	Window      string         `json:"window"`
	Coverage    string         `json:"coverage"`
	Detail      *model.Insight `json:"detail,omitempty"`
}

// View is a full dashboard payload.
type View struct {
	Charts   []Chart `json:"charts"`
	Insights []Card  `json:"insights"`
	Summary  string  `json:"summary"`
}

// Label returns the display name of t.
func Label(t model.MetricType) string {
	if info, ok := model.Info(t); ok && info.Label != "" {
		return info.Label
	}
	return string(t)
}

// UnitLabel returns the display unit of t, or "" when it has none.
func UnitLabel(t model.MetricType) string {
	info, ok := model.Info(t)
	if !ok {
		return ""
	}
	return unitLabel(info.Unit)
}

func unitLabel(u model.Unit) string {
	if l, ok := unitLabels[u]; ok {
		return l
	}
	return string(u)
}

func newChart(t model.MetricType, unit string, n int) Chart {
	return Chart{
		Metric:      t,
		Label:       Label(t),
		Unit:        unit,
		Aggregation: model.AggregationFor(t).String(),
		Points:      make([]Point, 0, n),
	}
}

// Series turns resampled buckets into a chart.
func Series(t model.MetricType, buckets []model.Bucket) Chart {
	c := newChart(t, UnitLabel(t), len(buckets))
	samples := 0
	for _, b := range buckets {
		c.Points = append(c.Points, Point{Time: b.Start, Value: b.Value, Count: b.Count})
		samples += b.Count
	}
	c.Summary = fmt.Sprintf("%s points from %s samples", humanize.Comma(int64(len(c.Points))), humanize.Comma(int64(samples)))
	return c
}

// RawSeries turns raw samples into a chart plotted at each sample's start.
// Raw metrics without a canonical unit take the unit of their first sample.
func RawSeries(t model.MetricType, samples []model.Sample) Chart {
	unit := UnitLabel(t)
	if unit == "" && len(samples) > 0 {
		unit = unitLabel(samples[0].Unit)
	}
	c := newChart(t, unit, len(samples))
	for _, s := range samples {
		c.Points = append(c.Points, Point{Time: s.Start, Value: s.Value})
	}
	c.Summary = humanize.Comma(int64(len(samples))) + " samples"
	return c
}

// Insights turns a report into cards: ranked insights first, then declined
// pairs in report order.
func Insights(rep correlation.Report) []Card {
	cards := make([]Card, 0, len(rep.Insights)+len(rep.Declined))
	for i := range rep.Insights {
		in := rep.Insights[i]
		cards = append(cards, Card{
			Pair:        correlation.Pair{A: in.A, B: in.B}.Label(),
			Title:       title(in.A, in.B),
			Status:      StatusInsight,
			Coefficient: round2(in.Coefficient),
			Direction:   direction(in.Coefficient),
			Strength:    strength(in.Coefficient),
			Tier:        in.Tier.String(),
			Score:       round2(in.Score()),
			Window:      WindowText(in.Window),
			Coverage:    CoverageText(in.Coverage, in.Window.Bucket),
			Detail:      &in,
		})
	}
	for _, d := range rep.Declined {
		status := StatusInsufficientData
		switch d.Reason {
		case correlation.ReasonNoVariance:
			status = StatusNoVariance
		case correlation.ReasonNonFinite:
			status = StatusInvalidData
		}
		cards = append(cards, Card{
			Pair:     d.Pair.Label(),
			Title:    title(d.Pair.A, d.Pair.B),
			Status:   status,
			Window:   WindowText(d.Window),
			Coverage: CoverageText(d.Coverage, d.Window.Bucket),
		})
	}
	return cards
}

// Build assembles a dashboard view.
func Build(charts []Chart, rep correlation.Report) View {
	if charts == nil {
		charts = []Chart{}
	}
	v := View{Charts: charts, Insights: Insights(rep)}
	v.Summary = fmt.Sprintf("%s across %s",
		humanize.Plural(len(rep.Insights), "insight", "insights"),
		humanize.Plural(len(charts), "metric", "metrics"),
	)
	return v
}

// WindowText renders a window as "Mar 1, 2024 to Mar 31, 2024".
func WindowText(w model.Window) string {
	if w.From.IsZero() && w.To.IsZero() {
		return ""
	}
	const layout = "Jan 2, 2006"
	return w.From.UTC().Format(layout) + " to " + w.To.UTC().Format(layout)
}

// CoverageText renders the number of shared buckets, e.g. "30 days" or
// "1,200 hours".
func CoverageText(n int, bucket time.Duration) string {
	var unit, units string
	switch bucket {
	case model.Hourly:
		unit, units = "hour", "hours"
	case model.Daily:
		unit, units = "day", "days"
	case 7 * model.Daily:
		unit, units = "week", "weeks"
	default:
		unit, units = "bucket", "buckets"
	}
	if n == 1 {
		return "1 " + unit
	}
	return humanize.Comma(int64(n)) + " " + units
}

func title(a, b model.MetricType) string {
	return Label(a) + " vs " + Label(b)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func direction(r float64) string {
	switch {
	case r > 0:
		return "positive"
	case r < 0:
		return "negative"
	default:
		return "none"
	}
}

func strength(r float64) string {
	switch a := math.Abs(r); {
	case a >= 0.7:
		return "strong"
	case a >= 0.4:
		return "moderate"
	default:
		return "weak"
	}
}
