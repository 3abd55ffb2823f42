package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/pool"
)

// Sequential runs every execution in order on a single connection.
type Sequential struct {
	*core
}

var _ Benchmark = (*Sequential)(nil)

func NewSequential(driver engine.Driver, cfg Config, opts ...Option) *Sequential {
	return &Sequential{core: newCore("sequential", driver, cfg, opts)}
}

func (s *Sequential) Run(ctx context.Context) (*metrics.BenchmarkResult, error) {
	return s.run(ctx, nil)
}

func (s *Sequential) Stream(ctx context.Context) *Stream {
	return NewStream(ctx, s.run)
}

func (s *Sequential) run(ctx context.Context, emit func(metrics.QueryExecution)) (*metrics.BenchmarkResult, error) {
	sql, params, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.finish()

	s.logger.Info("Starting benchmark", "runs", s.cfg.NumberOfRuns, "warmup", s.cfg.WarmupRuns)

	p, err := pool.New(ctx, s.driver, s.opts.poolConfig(1))
	if err != nil {
		_, _ = s.seal()
		return nil, err
	}
	defer p.Close()

	runErr := s.exec.runSequence(ctx, p, sequence{
		sql:     sql,
		params:  params,
		warmups: s.cfg.WarmupRuns,
		runs:    s.cfg.NumberOfRuns,
	}, func(e metrics.QueryExecution) { s.record(e, emit) })

	result, err := s.seal()
	if err != nil {
		return nil, err
	}
	return finalize(s.core, result, runErr)
}

// finalize maps the outcome of a run: cancellation keeps the partial result,
// any other error aborts it.
func finalize(c *core, result *metrics.BenchmarkResult, runErr error) (*metrics.BenchmarkResult, error) {
	switch {
	case runErr == nil:
		c.logger.Info("Benchmark finished",
			"total", result.TotalRuns,
			"successful", result.SuccessfulRuns,
			"failed", result.FailedRuns,
			"throughput_qps", result.ThroughputQPS,
		)
		return result, nil
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		c.logger.Warn("Benchmark interrupted", "completed", result.TotalRuns, "total", c.cfg.NumberOfRuns)
		return result, runErr
	default:
		c.logger.Error("Benchmark aborted", "error", runErr)
		return nil, fmt.Errorf("%s benchmark aborted: %w", c.strategy, runErr)
	}
}
