package correlation

import "math"

// z-score of the two-sided 95% normal interval.
const z95 = 1.959963984540054

// moments holds the summary statistics of one aligned series.
type moments struct {
	mean float64
	ss   float64 // sum of squared deviations
}

func momentsOf(xs []float64) moments {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	m := moments{mean: sum / float64(len(xs))}
	for _, x := range xs {
		d := x - m.mean
		m.ss += d * d
	}
	return m
}

func (m moments) finite() bool {
	return !math.IsInf(m.mean, 0) && !math.IsNaN(m.mean) && !math.IsInf(m.ss, 0) && !math.IsNaN(m.ss)
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return false
		}
	}
	return true
}

// cv is the population coefficient of variation. A zero mean with spread
// is treated as unbounded variation and reported as MaxFloat64 so the value
// stays encodable.
func (m moments) cv(n int) float64 {
	std := math.Sqrt(m.ss / float64(n))
	if m.mean == 0 {
		if std == 0 {
			return 0
		}
		return math.MaxFloat64
	}
	return math.Min(std/math.Abs(m.mean), math.MaxFloat64)
}

// Pearson returns the product-moment correlation of xs and ys. ok is false
// when the slices differ in length, hold fewer than two values or either side
// has no variance, or when the values overflow.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	mx, my := momentsOf(xs), momentsOf(ys)
	if !mx.finite() || !my.finite() {
		return 0, false
	}
	r, ok = pearson(xs, ys, mx, my)
	if math.IsNaN(r) {
		return 0, false
	}
	return r, ok
}

func pearson(xs, ys []float64, mx, my moments) (float64, bool) {
	if mx.ss == 0 || my.ss == 0 {
		return 0, false
	}
	var sxy float64
	for i := range xs {
		sxy += (xs[i] - mx.mean) * (ys[i] - my.mean)
	}
	if math.IsInf(sxy, 0) {
		return math.NaN(), true
	}
	r := sxy / (math.Sqrt(mx.ss) * math.Sqrt(my.ss))
	return math.Max(-1, math.Min(1, r)), true
}

// fisherCI returns the 95% confidence interval of r over n observations.
func fisherCI(r float64, n int) (lo, hi float64) {
	if math.Abs(r) >= 1 {
		return r, r
	}
	if n <= 3 {
		return -1, 1
	}
	z := math.Atanh(r)
	se := 1 / math.Sqrt(float64(n-3))
	return math.Tanh(z - z95*se), math.Tanh(z + z95*se)
}
