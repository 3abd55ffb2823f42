package runner

import (
	"context"
	"errors"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/pool"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
	"github.com/alitto/pond"
)

// Concurrent fans executions out in batches; batch k+1 starts only after batch k completes.
type Concurrent struct {
	*core
	concurrency int
}

var _ Benchmark = (*Concurrent)(nil)

// NewConcurrent runs batches of concurrency executions. A non-positive concurrency
// falls back to Config.BatchSize and then DefaultBatchSize.
func NewConcurrent(driver engine.Driver, cfg Config, concurrency int, opts ...Option) *Concurrent {
	return &Concurrent{
		core:        newCore("concurrent", driver, cfg, opts),
		concurrency: concurrency,
	}
}

func (c *Concurrent) Run(ctx context.Context) (*metrics.BenchmarkResult, error) {
	return c.run(ctx, nil)
}

func (c *Concurrent) Stream(ctx context.Context) *Stream {
	return NewStream(ctx, c.run)
}

func (c *Concurrent) Width() int {
	return c.cfg.batchWidth(c.concurrency)
}

func (c *Concurrent) run(ctx context.Context, emit func(metrics.QueryExecution)) (*metrics.BenchmarkResult, error) {
	sql, params, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.finish()

	width := c.Width()
	c.logger.Info("Starting benchmark", "runs", c.cfg.NumberOfRuns, "warmup", c.cfg.WarmupRuns, "batch_width", width)

	p, err := pool.New(ctx, c.driver, c.opts.poolConfig(width))
	if err != nil {
		_, _ = c.seal()
		return nil, err
	}
	defer p.Close()

	workers := pond.New(width, 0, pond.MinWorkers(width))
	defer workers.StopAndWait()

	runErr := c.runBatches(ctx, workers, p, sql, params, width, emit)

	result, err := c.seal()
	if err != nil {
		return nil, err
	}
	return finalize(c.core, result, runErr)
}

func (c *Concurrent) runBatches(
	ctx context.Context,
	workers *pond.WorkerPool,
	p *pool.Pool,
	sql string,
	params suite.Params,
	width int,
	emit func(metrics.QueryExecution),
) error {
	for start := 0; start < c.cfg.WarmupRuns; start += width {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(width, c.cfg.WarmupRuns-start)
		if _, err := c.batch(ctx, workers, p, sql, params, start, n, false); err != nil {
			return err
		}
	}

	for start := 0; start < c.cfg.NumberOfRuns; start += width {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(width, c.cfg.NumberOfRuns-start)
		slots, err := c.batch(ctx, workers, p, sql, params, start, n, true)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, rec := range slots {
			c.record(rec, emit)
		}
	}
	return nil
}

// batch runs n executions concurrently and waits for all of them. Results are
// returned in run order.
func (c *Concurrent) batch(
	ctx context.Context,
	workers *pond.WorkerPool,
	p *pool.Pool,
	sql string,
	params suite.Params,
	firstRunID, n int,
	measured bool,
) ([]metrics.QueryExecution, error) {
	slots := make([]metrics.QueryExecution, n)
	errs := make([]error, n)

	group := workers.Group()
	for i := 0; i < n; i++ {
		group.Submit(func() {
			rec, err := c.exec.runOne(ctx, p, sql, params, firstRunID+i, measured)
			slots[i] = rec
			errs[i] = err
		})
	}
	group.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if !measured {
		for _, rec := range slots {
			if !rec.Success && ctx.Err() == nil {
				c.logger.Warn("Warmup execution failed", "run", rec.RunID, "error", rec.Error)
			}
		}
	}
	return slots, nil
}
