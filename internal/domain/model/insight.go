package model

import "math"

// ConfidenceTier summarizes how far a coefficient can be trusted given the
// overlap and variance behind it. It is not a p-value.
type ConfidenceTier int

// Tiers, lowest first.
const (
	TierLow ConfidenceTier = iota
	TierMedium
	TierHigh
)

func (t ConfidenceTier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// Weight is the ranking multiplier for the tier.
func (t ConfidenceTier) Weight() float64 {
	switch t {
	case TierHigh:
		return 1.0
	case TierMedium:
		return 0.6
	default:
		return 0.3
	}
}

// MarshalText renders the tier label in JSON.
func (t ConfidenceTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Insight describes a candidate relationship between two metrics.
type Insight struct {
	A           MetricType     `json:"a"`
	B           MetricType     `json:"b"`
	Coefficient float64        `json:"coefficient"`
	Coverage    int            `json:"coverage"`
	Window      Window         `json:"window"`
	Tier        ConfidenceTier `json:"tier"`

	// CVA and CVB are the coefficients of variation of the aligned values.
	CVA float64 `json:"cv_a"`
	CVB float64 `json:"cv_b"`
	// CILow and CIHigh bound the coefficient at 95% (Fisher z).
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`
}

// Score is the composite ranking key.
func (i Insight) Score() float64 {
	return math.Abs(i.Coefficient) * i.Tier.Weight()
}
