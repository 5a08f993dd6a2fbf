package percentiles

import (
	"errors"
	"math"
)

var ErrEmptyInput = errors.New("cannot compute percentiles of an empty sample")

// Summary is the aggregated statistical summary of a sample: the eight
// canonical percentile points, mean, standard deviation and sample size.
type Summary struct {
	P5  float64 `json:"p5"`
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`

	Mean         float64 `json:"mean"`
	StdDeviation float64 `json:"stdDeviation"`
	SampleSize   int     `json:"sampleSize"`
}

// Point is one (percentile, value) breakpoint of a summary.
type Point struct {
	Percentile float64
	Value      float64
}

// Points returns the eight canonical breakpoints in ascending percentile
// order.
func (s Summary) Points() []Point {
	return []Point{
		{5, s.P5},
		{10, s.P10},
		{25, s.P25},
		{50, s.P50},
		{75, s.P75},
		{90, s.P90},
		{95, s.P95},
		{99, s.P99},
	}
}

// Compute calculates the summary of the given sample using linear
// interpolation between closest ranks. The input must be sorted ascending;
// the function is pure and deterministic.
func Compute(sorted []float64) (Summary, error) {
	if len(sorted) == 0 {
		return Summary{}, ErrEmptyInput
	}

	s := Summary{
		P5:         valueAt(sorted, 5),
		P10:        valueAt(sorted, 10),
		P25:        valueAt(sorted, 25),
		P50:        valueAt(sorted, 50),
		P75:        valueAt(sorted, 75),
		P90:        valueAt(sorted, 90),
		P95:        valueAt(sorted, 95),
		P99:        valueAt(sorted, 99),
		SampleSize: len(sorted),
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.Mean = sum / float64(len(sorted))

	// population variance, dividing by n
	var sqDiffSum float64
	for _, v := range sorted {
		diff := v - s.Mean
		sqDiffSum += diff * diff
	}
	s.StdDeviation = math.Sqrt(sqDiffSum / float64(len(sorted)))

	return s, nil
}

// valueAt estimates the p-th percentile of the ascending-sorted sample:
// the real-valued index (p/100)*(n-1) is linearly interpolated between the
// two neighboring order statistics.
func valueAt(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	idx := (p / 100) * float64(n-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if upper >= n {
		upper = n - 1
	}
	if lower == upper {
		return sorted[lower]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
