package stress

import (
	"context"
	"errors"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// runsPerWorker is the size of a parallel round per unit of concurrency.
const runsPerWorker = 10

type loadRun struct {
	*Controller
	sql    string
	params suite.Params
	phases []Phase
}

func (lr *loadRun) runnerOptions() []runner.Option {
	opts := []runner.Option{runner.WithLogger(lr.logger), runner.WithOversubscribe()}
	return append(opts, lr.opts.runnerOpts...)
}

// single is the config used for one-off executions inside load loops.
func (lr *loadRun) single() runner.Config {
	cfg := lr.cfg
	cfg.NumberOfRuns = 1
	cfg.WarmupRuns = 0
	return cfg
}

func (lr *loadRun) warmup(ctx context.Context) error {
	if lr.cfg.WarmupRuns == 0 {
		return nil
	}
	s, err := runner.NewSession(ctx, lr.driver, lr.single(), lr.sql, lr.params, lr.runnerOptions()...)
	if err != nil {
		return err
	}
	defer s.Close()

	for i := 0; i < lr.cfg.WarmupRuns; i++ {
		if ctx.Err() != nil {
			return nil
		}
		rec, err := s.Execute(ctx, i, false)
		if err != nil {
			return err
		}
		if !rec.Success && ctx.Err() == nil {
			lr.logger.Warn("Warmup execution failed", "run", i, "error", rec.Error)
		}
	}
	return nil
}

func (lr *loadRun) begin(name string, concurrency int) (Phase, int) {
	lr.logger.Info("Starting phase", "phase", name, "concurrency", concurrency)
	return Phase{Name: name, Concurrency: concurrency, Start: time.Now()}, lr.sink.count()
}

func (lr *loadRun) end(ph Phase, before int) {
	ph.End = time.Now()
	ph.Runs = lr.sink.count() - before
	lr.phases = append(lr.phases, ph)
}

// sustained keeps concurrency loops issuing single executions until d has
// elapsed. With a target rate, issues are paced by one shared limiter.
func (lr *loadRun) sustained(ctx context.Context, name string, d time.Duration, concurrency int) error {
	if d <= 0 {
		return nil
	}
	ph, before := lr.begin(name, concurrency)
	defer func() { lr.end(ph, before) }()

	deadline := ph.Start.Add(d)
	var limiter *rate.Limiter
	if lr.pattern.TargetRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(lr.pattern.TargetRate), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	for range concurrency {
		g.Go(func() error {
			return lr.loop(gctx, deadline, limiter)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (lr *loadRun) loop(ctx context.Context, deadline time.Time, limiter *rate.Limiter) error {
	s, err := runner.NewSession(ctx, lr.driver, lr.single(), lr.sql, lr.params, lr.runnerOptions()...)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer s.Close()

	paceCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil
		}
		if limiter != nil {
			if err := limiter.Wait(paceCtx); err != nil {
				return nil
			}
		}
		rec, err := s.Execute(ctx, 0, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		lr.sink.add(rec)
	}
	return nil
}

// round runs one Process-Parallel pass of concurrency × runsPerWorker executions.
func (lr *loadRun) round(ctx context.Context, concurrency int) error {
	cfg := lr.cfg
	cfg.NumberOfRuns = concurrency * runsPerWorker
	cfg.WarmupRuns = 0

	p := runner.NewParallel(lr.driver, cfg, concurrency, lr.runnerOptions()...)
	if err := p.SetSQL(lr.sql, lr.params); err != nil {
		return err
	}
	stream := p.Stream(ctx)
	for e := range stream.Executions {
		lr.sink.add(e)
	}
	_, err := stream.Wait()
	return err
}

func (lr *loadRun) ramp(ctx context.Context, name string, total time.Duration, steps []int) error {
	stepDur := total / time.Duration(len(steps))
	for i, concurrency := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		ph, before := lr.begin(name, concurrency)
		lr.logger.Debug("Ramp step", "step", i+1, "steps", len(steps), "concurrency", concurrency)
		err := lr.round(ctx, concurrency)
		lr.end(ph, before)
		if err != nil {
			return err
		}
		if err := sleep(ctx, stepDur-time.Since(ph.Start)); err != nil {
			return err
		}
	}
	return nil
}

func (lr *loadRun) rampUp(ctx context.Context) error {
	start := time.Now()
	maxC := lr.pattern.Concurrency

	up := make([]int, rampSteps)
	for i := range up {
		up[i] = StepConcurrency(i, maxC)
	}
	if err := lr.ramp(ctx, "ramp_up", lr.pattern.RampUpTime, up); err != nil {
		return err
	}

	if err := lr.sustained(ctx, "sustained", lr.pattern.Duration-time.Since(start), maxC); err != nil {
		return err
	}

	if lr.pattern.RampDownTime > 0 {
		down := make([]int, rampSteps)
		for i := range down {
			down[i] = up[rampSteps-1-i]
		}
		return lr.ramp(ctx, "ramp_down", lr.pattern.RampDownTime, down)
	}
	return nil
}

// spike holds the baseline for half of the non-spike window, bursts at the
// spike concurrency, then returns to baseline for the remainder.
func (lr *loadRun) spike(ctx context.Context) error {
	start := time.Now()
	spikeDur := lr.pattern.spikeDuration()
	baseline := lr.pattern.Concurrency

	if err := lr.sustained(ctx, "baseline", (lr.pattern.Duration-spikeDur)/2, baseline); err != nil {
		return err
	}

	burst := lr.pattern.spikeConcurrency()
	ph, before := lr.begin("spike", burst)
	spikeEnd := time.Now().Add(spikeDur)
	var err error
	for err == nil && time.Now().Before(spikeEnd) {
		err = lr.round(ctx, burst)
	}
	lr.end(ph, before)
	if err != nil {
		return err
	}

	return lr.sustained(ctx, "baseline", lr.pattern.Duration-time.Since(start), baseline)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// interrupted reports whether err only reflects cancellation of the run.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
