package analysis

import (
	"encoding/json"
	"math"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"gonum.org/v1/gonum/stat/distuv"
)

// normalThreshold is the sample size from which the normal critical value replaces Student t.
const normalThreshold = 30

type ConfidenceInterval struct {
	Level  float64 `json:"level"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Margin float64 `json:"margin"`
}

type Normality struct {
	Test      string  `json:"test"`
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	IsNormal  bool    `json:"is_normal"`
}

// Summary describes the successful latencies of one result, all values in ms.
type Summary struct {
	SampleSize  int                `json:"sample_size"`
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	Mode        *float64           `json:"mode,omitempty"`
	StdDev      float64            `json:"std_dev"`
	Variance    float64            `json:"variance"`
	Skewness    float64            `json:"skewness"`
	Kurtosis    float64            `json:"kurtosis"`
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Range       float64            `json:"range"`
	Percentiles map[string]float64 `json:"percentiles"`
	CI95        ConfidenceInterval `json:"ci_95"`
	CI99        ConfidenceInterval `json:"ci_99"`
	IQR         float64            `json:"iqr"`
	LowerFence  float64            `json:"lower_fence"`
	UpperFence  float64            `json:"upper_fence"`
	Outliers    []float64          `json:"outliers"`
	MAD         float64            `json:"mad"`
	CV          float64            `json:"coefficient_of_variation"`
	Normality   Normality          `json:"normality"`
}

// MarshalJSON encodes an infinite coefficient of variation as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	aux := struct {
		alias
		CV *float64 `json:"coefficient_of_variation"`
	}{alias: alias(s)}
	if !math.IsInf(s.CV, 0) && !math.IsNaN(s.CV) {
		aux.CV = &s.CV
	}
	return json.Marshal(aux)
}

// Analyze derives a Summary from the successful executions of r.
// It needs at least two successful samples.
func Analyze(r *metrics.BenchmarkResult) (*Summary, error) {
	if r == nil {
		return nil, apperr.New(apperr.KindInsufficientData, "no result to analyze")
	}
	return AnalyzeDurations(metrics.SuccessfulDurationsMs(r.Executions))
}

func AnalyzeDurations(durationsMs []float64) (*Summary, error) {
	n := len(durationsMs)
	if n < 2 {
		return nil, apperr.Newf(apperr.KindInsufficientData, "need at least 2 successful executions, got %d", n)
	}

	sorted := metrics.SortedCopy(durationsMs)
	mean := metrics.Mean(sorted)
	stddev := metrics.SampleStddev(sorted)

	s := &Summary{
		SampleSize:  n,
		Mean:        mean,
		Median:      metrics.Median(sorted),
		Mode:        mode(sorted),
		StdDev:      stddev,
		Variance:    stddev * stddev,
		Min:         sorted[0],
		Max:         sorted[n-1],
		Percentiles: metrics.Percentiles(sorted),
		MAD:         mad(sorted),
	}
	s.Range = s.Max - s.Min
	s.Skewness, s.Kurtosis = moments(sorted, mean)

	if mean == 0 {
		s.CV = math.Inf(1)
	} else {
		s.CV = stddev / mean
	}

	s.CI95 = confidenceInterval(mean, stddev, n, 0.95)
	s.CI99 = confidenceInterval(mean, stddev, n, 0.99)

	q1 := metrics.NearestRank(sorted, 25)
	q3 := metrics.NearestRank(sorted, 75)
	s.IQR = q3 - q1
	s.LowerFence = q1 - 1.5*s.IQR
	s.UpperFence = q3 + 1.5*s.IQR
	s.Outliers = []float64{}
	for _, v := range sorted {
		if v < s.LowerFence || v > s.UpperFence {
			s.Outliers = append(s.Outliers, v)
		}
	}

	s.Normality = jarqueBera(n, s.Skewness, s.Kurtosis)

	return s, nil
}

func confidenceInterval(mean, stddev float64, n int, level float64) ConfidenceInterval {
	q := 1 - (1-level)/2

	var critical float64
	if n >= normalThreshold {
		critical = distuv.UnitNormal.Quantile(q)
	} else {
		critical = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(q)
	}

	margin := critical * stddev / math.Sqrt(float64(n))
	return ConfidenceInterval{
		Level:  level,
		Lower:  mean - margin,
		Upper:  mean + margin,
		Margin: margin,
	}
}

// mode returns the most frequent value when it occurs more than once; ties go to the smallest value.
func mode(sorted []float64) *float64 {
	var (
		best      float64
		bestCount = 1
		run       = 1
	)
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i] == sorted[i-1] {
			run++
			continue
		}
		if run > bestCount {
			best = sorted[i-1]
			bestCount = run
		}
		run = 1
	}
	if bestCount < 2 {
		return nil
	}
	return &best
}

func mad(sorted []float64) float64 {
	median := metrics.Median(sorted)
	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - median)
	}
	return metrics.Median(metrics.SortedCopy(deviations))
}

// moments returns population skewness and excess kurtosis; both are zero for constant input.
func moments(values []float64, mean float64) (skewness, kurtosis float64) {
	var m2, m3, m4 float64
	for _, v := range values {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	n := float64(len(values))
	m2 /= n
	m3 /= n
	m4 /= n
	if m2 == 0 {
		return 0, 0
	}
	return m3 / math.Pow(m2, 1.5), m4/(m2*m2) - 3
}

func jarqueBera(n int, skewness, excessKurtosis float64) Normality {
	stat := float64(n) / 6 * (skewness*skewness + excessKurtosis*excessKurtosis/4)
	p := 1 - distuv.ChiSquared{K: 2}.CDF(stat)
	return Normality{
		Test:      "jarque_bera",
		Statistic: stat,
		PValue:    p,
		IsNormal:  p > 0.05,
	}
}
