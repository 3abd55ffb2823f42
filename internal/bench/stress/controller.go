package stress

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/monitor"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
)

// Phase is one segment of a stress run.
type Phase struct {
	Name        string    `json:"name"`
	Concurrency int       `json:"concurrency"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Runs        int       `json:"runs"`
}

type Result struct {
	Pattern   Pattern                  `json:"pattern"`
	Benchmark *metrics.BenchmarkResult `json:"benchmark"`
	Resources *monitor.Summary         `json:"resources,omitempty"`
	Phases    []Phase                  `json:"phases"`
}

type Option func(*options)

type options struct {
	runnerOpts []runner.Option
	sampler    monitor.Sampler
	logger     *slog.Logger
}

// WithRunnerOptions forwards options to every scheduler the controller starts.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(o *options) { o.runnerOpts = append(o.runnerOpts, opts...) }
}

func WithSampler(s monitor.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Controller runs a Pattern against a driver. It implements runner.Benchmark;
// executions from every phase are collected into one result with unique run ids.
type Controller struct {
	driver  engine.Driver
	cfg     runner.Config
	pattern   Pattern
	opts      options
	logger    *slog.Logger
	formatter *suite.Formatter

	mu     sync.Mutex
	sql    string
	params suite.Params
	cancel context.CancelFunc

	running   atomic.Bool
	stopped   atomic.Bool
	collector atomic.Pointer[metrics.Collector]

	sink *sink
}

var _ runner.Benchmark = (*Controller)(nil)

func NewController(driver engine.Driver, cfg runner.Config, pattern Pattern, opts ...Option) *Controller {
	o := options{sampler: monitor.NewSystemSampler(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Controller{
		driver:    driver,
		cfg:       cfg,
		pattern:   pattern,
		opts:      o,
		logger:    o.logger.With("strategy", "stress", "pattern", string(pattern.Kind)),
		formatter: runner.ResolveFormatter(o.runnerOpts...),
	}
	c.collector.Store(metrics.NewCollector())
	return c
}

func (c *Controller) SetSQL(query string, params suite.Params) error {
	if c.running.Load() {
		return apperr.NewInvalidState("cannot set SQL while stress test is running")
	}
	if err := c.formatter.Validate(query, params); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sql = query
	c.params = maps.Clone(params)
	return nil
}

// Stop cancels every load loop. Interrupted executions are dropped and
// RunStress returns the partial result without error.
func (c *Controller) Stop() {
	c.stopped.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) Run(ctx context.Context) (*metrics.BenchmarkResult, error) {
	res, err := c.RunStress(ctx)
	if res == nil {
		return nil, err
	}
	return res.Benchmark, err
}

func (c *Controller) Stream(ctx context.Context) *runner.Stream {
	return runner.NewStream(ctx, func(ctx context.Context, emit func(metrics.QueryExecution)) (*metrics.BenchmarkResult, error) {
		res, err := c.run(ctx, emit)
		if res == nil {
			return nil, err
		}
		return res.Benchmark, err
	})
}

func (c *Controller) RunStress(ctx context.Context) (*Result, error) {
	return c.run(ctx, nil)
}

func (c *Controller) Status() runner.Status {
	c.mu.Lock()
	sql := c.sql
	c.mu.Unlock()

	stats := c.collector.Load().CurrentStats()
	return runner.Status{
		Strategy:  "stress:" + string(c.pattern.Kind),
		Running:   c.running.Load(),
		Completed: stats.Total,
		SQL:       sql,
		Stats:     stats,
	}
}

func (c *Controller) run(ctx context.Context, emit func(metrics.QueryExecution)) (*Result, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.pattern.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	sql, params := c.sql, c.params
	c.mu.Unlock()
	if sql == "" {
		return nil, apperr.NewConfiguration("SQL query not set")
	}
	if !c.running.CompareAndSwap(false, true) {
		return nil, apperr.NewInvalidState("stress test is already running")
	}
	defer c.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()
	c.stopped.Store(false)

	collector := metrics.NewCollector()
	c.collector.Store(collector)
	c.sink = &sink{collector: collector, emit: emit, logger: c.logger}

	var mon *monitor.Monitor
	if c.pattern.MonitorResources {
		mon = monitor.New(c.opts.sampler, c.pattern.MonitorInterval, c.logger)
		if err := mon.Start(runCtx); err != nil {
			return nil, err
		}
		defer mon.Stop()
	}

	lr := &loadRun{Controller: c, sql: sql, params: params}
	if err := lr.warmup(runCtx); err != nil {
		return nil, fmt.Errorf("stress warmup failed: %w", err)
	}

	c.logger.Info("Starting stress test",
		"duration", c.pattern.Duration,
		"concurrency", c.pattern.Concurrency,
		"target_rate", c.pattern.TargetRate,
	)
	collector.Start()

	var loadErr error
	switch c.pattern.Kind {
	case Sustained:
		loadErr = lr.sustained(runCtx, "sustained", c.pattern.Duration, c.pattern.Concurrency)
	case Soak:
		loadErr = lr.sustained(runCtx, "soak", c.pattern.Duration, c.pattern.Concurrency)
	case RampUp:
		loadErr = lr.rampUp(runCtx)
	case Spike:
		loadErr = lr.spike(runCtx)
	}

	if err := collector.End(); err != nil {
		return nil, err
	}
	bench, err := collector.Result()
	if err != nil {
		return nil, err
	}

	result := &Result{Pattern: c.pattern, Benchmark: bench, Phases: lr.phases}
	if mon != nil {
		mon.Stop()
		summary := mon.Summary()
		result.Resources = &summary
	}

	switch {
	case loadErr == nil, c.stopped.Load() && interrupted(loadErr):
		c.logger.Info("Stress test finished",
			"total", bench.TotalRuns,
			"failed", bench.FailedRuns,
			"throughput_qps", bench.ThroughputQPS,
			"stopped", c.stopped.Load(),
		)
		return result, nil
	case interrupted(loadErr):
		c.logger.Warn("Stress test interrupted", "completed", bench.TotalRuns)
		return result, loadErr
	default:
		c.logger.Error("Stress test aborted", "error", loadErr)
		return nil, fmt.Errorf("stress test aborted: %w", loadErr)
	}
}

// sink assigns run ids from a running offset so ids stay unique across phases.
type sink struct {
	mu        sync.Mutex
	next      int
	collector *metrics.Collector
	emit      func(metrics.QueryExecution)
	logger    *slog.Logger
}

func (s *sink) add(e metrics.QueryExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.RunID = s.next
	if err := s.collector.Add(e); err != nil {
		s.logger.Error("Failed to record execution", "run_id", e.RunID, "error", err)
		return
	}
	s.next++
	if s.emit != nil {
		s.emit(e)
	}
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
