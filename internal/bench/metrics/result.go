package metrics

import (
	"time"

	"github.com/google/uuid"
)

// BenchmarkResult is the sealed outcome of one benchmark run.
// Aggregates are derived once in NewResult and never recomputed.
type BenchmarkResult struct {
	ID         uuid.UUID        `json:"id"`
	Executions []QueryExecution `json:"executions"`

	TotalRuns      int `json:"total_runs"`
	SuccessfulRuns int `json:"successful_runs"`
	FailedRuns     int `json:"failed_runs"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	MedianMs float64 `json:"median_ms"`
	StddevMs float64 `json:"stddev_ms"`
	CV       float64 `json:"coefficient_of_variation"`

	Percentiles         map[string]float64  `json:"percentiles"`
	ThroughputQPS       float64             `json:"throughput_qps"`
	LatencyDistribution LatencyDistribution `json:"latency_distribution"`
}

// NewResult copies executions and computes every aggregate.
// Only successful executions contribute to latency statistics.
func NewResult(executions []QueryExecution, start, end time.Time) *BenchmarkResult {
	frozen := make([]QueryExecution, len(executions))
	copy(frozen, executions)

	r := &BenchmarkResult{
		ID:          uuid.New(),
		Executions:  frozen,
		TotalRuns:   len(frozen),
		StartTime:   start,
		EndTime:     end,
		Percentiles: map[string]float64{},
	}

	durations := successfulDurationsMs(frozen)
	r.SuccessfulRuns = len(durations)
	r.FailedRuns = r.TotalRuns - r.SuccessfulRuns
	r.LatencyDistribution = NewLatencyDistribution(durations)

	if elapsed := end.Sub(start).Seconds(); elapsed > 0 {
		r.ThroughputQPS = float64(r.SuccessfulRuns) / elapsed
	}

	if len(durations) == 0 {
		return r
	}

	sorted := sortedCopy(durations)
	r.MinMs = sorted[0]
	r.MaxMs = sorted[len(sorted)-1]
	r.AvgMs = Mean(sorted)
	r.MedianMs = Median(sorted)
	r.StddevMs = SampleStddev(sorted)
	if r.AvgMs > 0 {
		r.CV = r.StddevMs / r.AvgMs
	}
	r.Percentiles = Percentiles(sorted)

	return r
}

func (r *BenchmarkResult) SuccessRate() float64 {
	if r.TotalRuns == 0 {
		return 0
	}
	return float64(r.SuccessfulRuns) / float64(r.TotalRuns) * 100
}

func (r *BenchmarkResult) Elapsed() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

func (r *BenchmarkResult) Percentile(p float64) float64 {
	return r.Percentiles[PercentileKey(p)]
}

// Errors counts failure messages of failed executions.
func (r *BenchmarkResult) Errors() map[string]int {
	out := make(map[string]int)
	for _, e := range r.Executions {
		if !e.Success {
			out[e.Error]++
		}
	}
	return out
}

// Merge combines results into one, re-basing run ids with a running offset
// so that they stay unique. The merged window spans the earliest start to the latest end.
func Merge(results ...*BenchmarkResult) *BenchmarkResult {
	var (
		all        []QueryExecution
		start, end time.Time
		offset     int
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, e := range r.Executions {
			e.RunID += offset
			all = append(all, e)
		}
		offset += len(r.Executions)
		if start.IsZero() || r.StartTime.Before(start) {
			start = r.StartTime
		}
		if r.EndTime.After(end) {
			end = r.EndTime
		}
	}
	return NewResult(all, start, end)
}
