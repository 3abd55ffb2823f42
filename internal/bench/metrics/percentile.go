package metrics

import (
	"math"
	"sort"
	"strconv"
)

// DefaultPercentiles is the fixed set reported for every result.
var DefaultPercentiles = []float64{25, 50, 75, 90, 95, 99, 99.9}

// NearestRank returns sorted[floor(n*p/100)], clamped to the last element.
// No interpolation: this is the percentile definition used across reports.
func NearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(float64(n) * p / 100)
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func PercentileKey(p float64) string {
	return "p" + strconv.FormatFloat(p, 'f', -1, 64)
}

// Percentiles computes DefaultPercentiles over an ascending slice.
func Percentiles(sorted []float64) map[string]float64 {
	if len(sorted) == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(DefaultPercentiles))
	for _, p := range DefaultPercentiles {
		out[PercentileKey(p)] = NearestRank(sorted, p)
	}
	return out
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// SortedCopy returns an ascending copy, leaving values untouched.
func SortedCopy(values []float64) []float64 {
	return sortedCopy(values)
}

// Median averages the two middle values for even-sized input.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStddev uses the n-1 denominator; zero for fewer than two values.
func SampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
