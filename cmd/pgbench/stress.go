package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/monitor"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/stress"
	"github.com/DjordjeVuckovic/pgbench/internal/config"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	stressFlags benchFlags
	stressOpts  struct {
		pattern     string
		duration    time.Duration
		rate        float64
		concurrency int
		rampUp      time.Duration
		rampDown    time.Duration
		multiplier  float64
		spike       time.Duration
		monitor     bool
		interval    time.Duration
	}
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Drive a time-shaped load pattern (sustained, ramp_up, spike, soak)",
	Args:  cobra.NoArgs,
	RunE:  runStress,
}

func init() {
	stressFlags.register(stressCmd)
	fs := stressCmd.Flags()
	fs.StringVar(&stressOpts.pattern, "pattern", "", "sustained, ramp_up, spike or soak")
	fs.DurationVar(&stressOpts.duration, "duration", 0, "total load duration")
	fs.Float64Var(&stressOpts.rate, "rate", 0, "target executions per second, 0 for unpaced")
	fs.IntVar(&stressOpts.concurrency, "concurrency", 0, "base concurrency")
	fs.DurationVar(&stressOpts.rampUp, "ramp-up", 0, "ramp-up time (ramp_up)")
	fs.DurationVar(&stressOpts.rampDown, "ramp-down", 0, "ramp-down time (ramp_up)")
	fs.Float64Var(&stressOpts.multiplier, "spike-multiplier", 0, "concurrency multiplier during the spike")
	fs.DurationVar(&stressOpts.spike, "spike-duration", 0, "spike length")
	fs.BoolVar(&stressOpts.monitor, "monitor", true, "sample host CPU, memory, disk and network")
	fs.DurationVar(&stressOpts.interval, "monitor-interval", 0, "resource sampling interval")
}

func runStress(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, &stressFlags)
	if err != nil {
		return err
	}

	cfg.Strategy = config.StrategyStress
	p := &cfg.Stress
	changed := cmd.Flags().Changed
	if changed("pattern") {
		p.Kind = stress.Kind(stressOpts.pattern)
	}
	if changed("duration") {
		p.Duration = stressOpts.duration
	}
	if changed("rate") {
		p.TargetRate = stressOpts.rate
	}
	if changed("concurrency") {
		p.Concurrency = stressOpts.concurrency
	}
	if changed("ramp-up") {
		p.RampUpTime = stressOpts.rampUp
	}
	if changed("ramp-down") {
		p.RampDownTime = stressOpts.rampDown
	}
	if changed("spike-multiplier") {
		p.SpikeMultiplier = stressOpts.multiplier
	}
	if changed("spike-duration") {
		p.SpikeDuration = stressOpts.spike
	}
	if changed("monitor") {
		p.MonitorResources = stressOpts.monitor
	}
	if changed("monitor-interval") {
		p.MonitorInterval = stressOpts.interval
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	w, err := openWorkload(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	var extra []runner.Option
	if stressFlags.progress {
		bar := progressbar.Default(-1, "stress:"+string(p.Kind))
		defer bar.Finish()
		extra = append(extra, runner.WithListener(runner.ListenerFunc(func(_ context.Context, ev runner.Event) error {
			if ev.Type == runner.AfterExecution && !ev.Warmup {
				return bar.Add(1)
			}
			return nil
		})))
	}

	ctrl := stress.NewController(w.driver, cfg.Benchmark, *p,
		stress.WithRunnerOptions(w.runnerOptions(extra...)...),
		stress.WithSampler(monitor.NewSystemSampler()),
		stress.WithLogger(slog.Default()),
	)
	if err := ctrl.SetSQL(w.sql, w.params); err != nil {
		return err
	}

	status, err := startStatusServer(ctx, cfg, ctrl, w)
	if err != nil {
		return err
	}

	slog.Info("Starting stress test", "pattern", p.Kind, "duration", p.Duration, "concurrency", p.Concurrency, "target_rate", p.TargetRate)
	res, runErr := ctrl.RunStress(ctx)
	if res == nil || res.Benchmark == nil {
		return runErr
	}
	if runErr != nil {
		slog.Warn("Stress test interrupted, reporting partial result", "error", runErr, "executions", res.Benchmark.TotalRuns)
	}

	opts := report.Options{
		Strategy:  "stress:" + string(p.Kind),
		Resources: res.Resources,
		Phases:    res.Phases,
	}
	if err := publish(ctx, cfg, w, res.Benchmark, opts, status); err != nil {
		return err
	}
	return runErr
}
