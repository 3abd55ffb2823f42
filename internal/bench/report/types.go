package report

import (
	"runtime"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/analysis"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/monitor"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/stress"
)

const Version = "1"

// Document is the exported form of one benchmark run.
type Document struct {
	Summary             Summary                     `json:"summary"`
	Statistics          Statistics                  `json:"statistics"`
	LatencyDistribution metrics.LatencyDistribution `json:"latency_distribution"`
	Metadata            Metadata                    `json:"metadata"`
	Resources           *monitor.Summary            `json:"resources,omitempty"`
	Phases              []stress.Phase              `json:"phases,omitempty"`
	Executions          []metrics.QueryExecution    `json:"executions,omitempty"`
}

type Summary struct {
	Total           int     `json:"total"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	SuccessRate     float64 `json:"success_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	MinMs           float64 `json:"min_ms"`
	MaxMs           float64 `json:"max_ms"`
	AvgMs           float64 `json:"avg_ms"`
	MedianMs        float64 `json:"median_ms"`
	StddevMs        float64 `json:"stddev_ms"`
	CV              float64 `json:"coefficient_of_variation"`
	ThroughputQPS   float64 `json:"throughput_qps"`
}

type Statistics struct {
	Percentiles         map[string]float64                     `json:"percentiles"`
	ConfidenceIntervals map[string]analysis.ConfidenceInterval `json:"confidence_intervals,omitempty"`
	Analysis            *analysis.Summary                      `json:"analysis,omitempty"`
	Errors              map[string]int                         `json:"errors,omitempty"`
}

type Metadata struct {
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Strategy    string          `json:"strategy"`
	SQL         string          `json:"sql,omitempty"`
	Engine      EngineInfo      `json:"engine"`
	Environment EnvironmentInfo `json:"environment"`
}

type EngineInfo struct {
	Type       string `json:"type"`
	Connection string `json:"connection,omitempty"`
	Version    string `json:"version,omitempty"`
}

type EnvironmentInfo struct {
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
}

func NewEnvironmentInfo() EnvironmentInfo {
	return EnvironmentInfo{
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
	}
}
