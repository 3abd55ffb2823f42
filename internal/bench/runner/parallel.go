package runner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/pool"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
	"golang.org/x/sync/errgroup"
)

// WorkRange is the share of runs assigned to one worker.
type WorkRange struct {
	Worker     int
	FirstRunID int
	Runs       int
	Warmups    int
}

// Distribute splits runs and warmups over workers: the first runs%workers
// workers get one extra run. Run id ranges partition [0, runs).
func Distribute(runs, warmups, workers int) []WorkRange {
	if workers < 1 {
		return nil
	}
	base, rem := runs/workers, runs%workers
	wBase, wRem := warmups/workers, warmups%workers

	ranges := make([]WorkRange, workers)
	offset := 0
	for i := range ranges {
		n := base
		if i < rem {
			n++
		}
		w := wBase
		if i < wRem {
			w++
		}
		ranges[i] = WorkRange{Worker: i, FirstRunID: offset, Runs: n, Warmups: w}
		offset += n
	}
	return ranges
}

// Parallel runs independent workers, each owning one connection and executing
// its share sequentially.
type Parallel struct {
	*core
	workers int
}

var _ Benchmark = (*Parallel)(nil)

func NewParallel(driver engine.Driver, cfg Config, workers int, opts ...Option) *Parallel {
	return &Parallel{
		core:    newCore("parallel", driver, cfg, opts),
		workers: workers,
	}
}

// Workers is the effective worker count, capped at the CPU count unless oversubscription is allowed.
func (p *Parallel) Workers() int {
	w := p.workers
	if !p.opts.allowOversubscribe {
		w = min(w, runtime.NumCPU())
	}
	return w
}

func (p *Parallel) Run(ctx context.Context) (*metrics.BenchmarkResult, error) {
	return p.run(ctx, nil)
}

func (p *Parallel) Stream(ctx context.Context) *Stream {
	return NewStream(ctx, p.run)
}

func (p *Parallel) run(ctx context.Context, emit func(metrics.QueryExecution)) (*metrics.BenchmarkResult, error) {
	if p.workers < 1 {
		return nil, apperr.Newf(apperr.KindConfiguration, "workers must be at least 1, got %d", p.workers)
	}
	sql, params, err := p.begin()
	if err != nil {
		return nil, err
	}
	defer p.finish()

	workers := p.Workers()
	if workers < p.workers {
		p.logger.Info("Capping workers at CPU count", "requested", p.workers, "workers", workers)
	}
	p.logger.Info("Starting benchmark", "runs", p.cfg.NumberOfRuns, "warmup", p.cfg.WarmupRuns, "workers", workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	var alive atomic.Int32
	channels := make([]<-chan metrics.QueryExecution, 0, workers)

	for _, wr := range Distribute(p.cfg.NumberOfRuns, p.cfg.WarmupRuns, workers) {
		ch := make(chan metrics.QueryExecution, streamBuffer)
		channels = append(channels, ch)
		alive.Add(1)
		g.Go(func() error {
			defer close(ch)
			defer alive.Add(-1)
			return p.worker(gctx, wr, sql, params, ch)
		})
	}

	stalled := p.collect(runCtx, cancel, merge(channels), &alive, emit)
	runErr := g.Wait()

	result, err := p.seal()
	if err != nil {
		return nil, err
	}

	if stalled {
		p.logger.Warn("Returning partial result after stall", "completed", result.TotalRuns, "total", p.cfg.NumberOfRuns)
		return result, nil
	}
	if runErr == nil {
		runErr = ctx.Err()
	}
	return finalize(p.core, result, runErr)
}

// worker owns a single-connection pool. A panic ends the worker and is logged;
// records already sent are kept.
func (p *Parallel) worker(ctx context.Context, wr WorkRange, sql string, params suite.Params, out chan<- metrics.QueryExecution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panicked", "worker", wr.Worker, "panic", r)
			err = nil
		}
	}()

	if wr.Runs == 0 && wr.Warmups == 0 {
		return nil
	}

	conns, err := pool.New(ctx, p.driver, p.opts.poolConfig(1))
	if err != nil {
		return err
	}
	defer conns.Close()

	err = p.exec.runSequence(ctx, conns, sequence{
		sql:        sql,
		params:     params,
		warmups:    wr.Warmups,
		firstRunID: wr.FirstRunID,
		runs:       wr.Runs,
	}, func(e metrics.QueryExecution) { out <- e })

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// collect drains the merged stream into the collector. While the stream is quiet it
// polls worker liveness every interval; past the stall timeout it cancels the workers.
func (p *Parallel) collect(
	ctx context.Context,
	cancel context.CancelFunc,
	merged <-chan metrics.QueryExecution,
	alive *atomic.Int32,
	emit func(metrics.QueryExecution),
) (stalled bool) {
	ticker := time.NewTicker(p.opts.livenessInterval)
	defer ticker.Stop()
	lastRecord := time.Now()

	for {
		select {
		case rec, ok := <-merged:
			if !ok {
				return stalled
			}
			p.record(rec, emit)
			lastRecord = time.Now()

		case <-ticker.C:
			quiet := time.Since(lastRecord)
			if quiet < p.opts.livenessInterval || stalled || ctx.Err() != nil {
				continue
			}
			n := alive.Load()
			p.logger.Debug("Waiting for workers", "alive", n, "quiet", quiet)
			if n == 0 {
				continue
			}
			if p.opts.stallTimeout > 0 && quiet >= p.opts.stallTimeout {
				p.logger.Warn("Workers stalled, cancelling run", "alive", n, "quiet", quiet)
				stalled = true
				cancel()
			}
		}
	}
}

// merge fans in worker channels; the result closes once every input has closed.
func merge(inputs []<-chan metrics.QueryExecution) <-chan metrics.QueryExecution {
	out := make(chan metrics.QueryExecution, streamBuffer)
	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range in {
				out <- rec
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
