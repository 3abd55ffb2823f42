package runner

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
)

// Benchmark is implemented by every scheduling strategy.
type Benchmark interface {
	// SetSQL fails with an invalid state error while a run is in progress.
	SetSQL(query string, params suite.Params) error
	Run(ctx context.Context) (*metrics.BenchmarkResult, error)
	Stream(ctx context.Context) *Stream
	Status() Status
}

type Status struct {
	Strategy  string            `json:"strategy"`
	Running   bool              `json:"running"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	SQL       string            `json:"sql"`
	Stats     metrics.LiveStats `json:"stats"`
}

// Stream delivers executions as they are recorded. Executions is closed before
// the final result becomes available from Wait.
type Stream struct {
	Executions <-chan metrics.QueryExecution

	done   chan struct{}
	result *metrics.BenchmarkResult
	err    error
}

const streamBuffer = 64

// RunFunc performs a run, passing each recorded execution to emit.
type RunFunc func(ctx context.Context, emit func(metrics.QueryExecution)) (*metrics.BenchmarkResult, error)

// NewStream starts run in the background and exposes its executions as a channel.
func NewStream(ctx context.Context, run RunFunc) *Stream {
	ch := make(chan metrics.QueryExecution, streamBuffer)
	s := &Stream{Executions: ch, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.result, s.err = run(ctx, func(e metrics.QueryExecution) { ch <- e })
		close(ch)
	}()
	return s
}

// Wait drains any unread executions and returns the final result.
func (s *Stream) Wait() (*metrics.BenchmarkResult, error) {
	for range s.Executions {
	}
	<-s.done
	return s.result, s.err
}

// core holds the state shared by all strategies.
type core struct {
	strategy string
	driver   engine.Driver
	cfg      Config
	opts     options
	exec     *executor
	logger   *slog.Logger

	mu     sync.Mutex
	sql    string
	params suite.Params

	running   atomic.Bool
	completed atomic.Int64
	collector atomic.Pointer[metrics.Collector]
}

func newCore(strategy string, driver engine.Driver, cfg Config, opts []Option) *core {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("strategy", strategy)
	o.logger = logger

	c := &core{
		strategy: strategy,
		driver:   driver,
		cfg:      cfg,
		opts:     o,
		exec:     newExecutor(cfg, o),
		logger:   logger,
	}
	c.collector.Store(metrics.NewCollector())
	return c
}

func (c *core) SetSQL(query string, params suite.Params) error {
	if c.running.Load() {
		return apperr.NewInvalidState("cannot set SQL while benchmark is running")
	}
	if err := c.exec.formatter.Validate(query, params); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sql = query
	c.params = maps.Clone(params)
	return nil
}

// begin validates everything a run needs and marks the benchmark as running.
func (c *core) begin() (string, suite.Params, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	sql, params := c.sql, c.params
	c.mu.Unlock()

	if sql == "" {
		return "", nil, apperr.NewConfiguration("SQL query not set")
	}
	if err := c.exec.formatter.Validate(sql, params); err != nil {
		return "", nil, err
	}
	if !c.running.CompareAndSwap(false, true) {
		return "", nil, apperr.NewInvalidState("benchmark is already running")
	}

	c.completed.Store(0)
	collector := metrics.NewCollector()
	c.collector.Store(collector)
	collector.Start()
	return sql, params, nil
}

func (c *core) finish() {
	c.running.Store(false)
}

// record adds a measured execution to the collector and reports progress.
func (c *core) record(e metrics.QueryExecution, emit func(metrics.QueryExecution)) {
	if err := c.collector.Load().Add(e); err != nil {
		c.logger.Error("Failed to record execution", "run_id", e.RunID, "error", err)
		return
	}
	if emit != nil {
		emit(e)
	}

	completed := int(c.completed.Add(1))
	total := c.cfg.NumberOfRuns
	if completed%progressLogEvery == 0 || completed == total {
		c.logger.Info("Benchmark progress", "completed", completed, "total", total)
	}
	if c.opts.progress != nil {
		c.opts.progress(completed, total)
	}
}

// seal ends collection and returns the aggregate result.
func (c *core) seal() (*metrics.BenchmarkResult, error) {
	collector := c.collector.Load()
	if err := collector.End(); err != nil {
		return nil, err
	}
	return collector.Result()
}

func (c *core) Status() Status {
	c.mu.Lock()
	sql := c.sql
	c.mu.Unlock()

	return Status{
		Strategy:  c.strategy,
		Running:   c.running.Load(),
		Completed: int(c.completed.Load()),
		Total:     c.cfg.NumberOfRuns,
		SQL:       sql,
		Stats:     c.collector.Load().CurrentStats(),
	}
}
