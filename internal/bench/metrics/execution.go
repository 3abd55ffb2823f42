package metrics

import (
	"encoding/json"
	"math"
	"time"
)

// QueryExecution is one measured attempt of the benchmarked statement.
// Error is set iff Success is false.
type QueryExecution struct {
	RunID     int           `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"-"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Attempts  int           `json:"attempts"`
	RowCount  int64         `json:"row_count"`

	ExplainPlan json.RawMessage  `json:"explain_plan,omitempty"`
	BufferStats map[string]int64 `json:"buffer_stats,omitempty"`
	IOStats     map[string]any   `json:"io_stats,omitempty"`
}

func (e QueryExecution) DurationMs() float64 {
	return float64(e.Duration) / float64(time.Millisecond)
}

func (e QueryExecution) DurationUs() float64 {
	return float64(e.Duration) / float64(time.Microsecond)
}

func (e QueryExecution) MarshalJSON() ([]byte, error) {
	type alias QueryExecution
	return json.Marshal(struct {
		alias
		DurationMs float64 `json:"duration_ms"`
	}{
		alias:      alias(e),
		DurationMs: e.DurationMs(),
	})
}

func (e *QueryExecution) UnmarshalJSON(data []byte) error {
	type alias QueryExecution
	aux := struct {
		*alias
		DurationMs float64 `json:"duration_ms"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Duration = time.Duration(math.Round(aux.DurationMs * float64(time.Millisecond)))
	return nil
}

func successfulDurationsMs(executions []QueryExecution) []float64 {
	var durations []float64
	for _, e := range executions {
		if e.Success {
			durations = append(durations, e.DurationMs())
		}
	}
	return durations
}

// SuccessfulDurationsMs returns durations (ms) of successful executions in record order.
func SuccessfulDurationsMs(executions []QueryExecution) []float64 {
	return successfulDurationsMs(executions)
}
