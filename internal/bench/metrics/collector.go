package metrics

import (
	"sync"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

type State int

const (
	StateIdle State = iota
	StateCollecting
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateFinalized:
		return "finalized"
	default:
		return "idle"
	}
}

// LiveStats is a point-in-time view over the executions collected so far.
type LiveStats struct {
	State      string  `json:"state"`
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	AvgMs      float64 `json:"avg_ms"`
	MinMs      float64 `json:"min_ms"`
	MaxMs      float64 `json:"max_ms"`
	ElapsedSec float64 `json:"elapsed_seconds"`
}

// Collector accumulates executions between Start and End.
// All methods are safe for concurrent use.
type Collector struct {
	mu         sync.Mutex
	state      State
	executions []QueryExecution
	start      time.Time
	end        time.Time
	result     *BenchmarkResult
	now        func() time.Time
}

func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateCollecting
	c.executions = nil
	c.result = nil
	c.start = c.now()
	c.end = time.Time{}
}

func (c *Collector) Add(exec QueryExecution) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCollecting {
		return apperr.Newf(apperr.KindInvalidState, "cannot add execution: collector is %s", c.state)
	}
	c.executions = append(c.executions, exec)
	return nil
}

func (c *Collector) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCollecting {
		return apperr.Newf(apperr.KindInvalidState, "cannot end collection: collector is %s", c.state)
	}
	c.end = c.now()
	c.state = StateFinalized
	return nil
}

// Result computes the aggregate on first call and returns the cached value afterwards.
func (c *Collector) Result() (*BenchmarkResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateFinalized {
		return nil, apperr.Newf(apperr.KindInvalidState, "result unavailable: collector is %s", c.state)
	}
	if c.result == nil {
		c.result = NewResult(c.executions, c.start, c.end)
	}
	return c.result, nil
}

func (c *Collector) CurrentStats() LiveStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := LiveStats{State: c.state.String(), Total: len(c.executions)}

	var sum float64
	for _, e := range c.executions {
		if !e.Success {
			stats.Failed++
			continue
		}
		ms := e.DurationMs()
		if stats.Successful == 0 || ms < stats.MinMs {
			stats.MinMs = ms
		}
		if ms > stats.MaxMs {
			stats.MaxMs = ms
		}
		sum += ms
		stats.Successful++
	}
	if stats.Successful > 0 {
		stats.AvgMs = sum / float64(stats.Successful)
	}

	switch c.state {
	case StateCollecting:
		stats.ElapsedSec = c.now().Sub(c.start).Seconds()
	case StateFinalized:
		stats.ElapsedSec = c.end.Sub(c.start).Seconds()
	}
	return stats
}

func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateIdle
	c.executions = nil
	c.result = nil
	c.start = time.Time{}
	c.end = time.Time{}
}
