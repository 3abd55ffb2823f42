package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/internal/config"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	runFlags       benchFlags
	runStrategy    string
	runConcurrency int
	runWorkers     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a fixed number of executions with the sequential, concurrent or parallel strategy",
	Args:  cobra.NoArgs,
	RunE:  runBenchmark,
}

func init() {
	runFlags.register(runCmd)
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "sequential, concurrent or parallel")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "in-flight executions per batch (concurrent)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "independent workers (parallel)")
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, &runFlags)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy = runStrategy
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = runConcurrency
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = runWorkers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	w, err := openWorkload(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	var extra []runner.Option
	if runFlags.progress {
		bar := progressbar.Default(int64(cfg.Benchmark.NumberOfRuns), cfg.Strategy)
		defer bar.Finish()
		extra = append(extra, runner.WithProgress(func(completed, _ int) {
			_ = bar.Set(completed)
		}))
	}

	bench, err := newBenchmark(cfg, w.driver, w.runnerOptions(extra...)...)
	if err != nil {
		return err
	}
	if err := bench.SetSQL(w.sql, w.params); err != nil {
		return err
	}

	status, err := startStatusServer(ctx, cfg, bench, w)
	if err != nil {
		return err
	}

	slog.Info("Starting benchmark", "strategy", cfg.Strategy, "runs", cfg.Benchmark.NumberOfRuns, "warmup", cfg.Benchmark.WarmupRuns)
	result, runErr := bench.Run(ctx)
	if result == nil {
		return runErr
	}
	if runErr != nil {
		slog.Warn("Benchmark interrupted, reporting partial result", "error", runErr, "executions", result.TotalRuns)
	}

	if err := publish(ctx, cfg, w, result, report.Options{Strategy: cfg.Strategy}, status); err != nil {
		return err
	}
	return runErr
}

func newBenchmark(cfg *config.Config, driver engine.Driver, opts ...runner.Option) (runner.Benchmark, error) {
	switch cfg.Strategy {
	case config.StrategySequential:
		return runner.NewSequential(driver, cfg.Benchmark, opts...), nil
	case config.StrategyConcurrent:
		return runner.NewConcurrent(driver, cfg.Benchmark, cfg.Concurrency, opts...), nil
	case config.StrategyParallel:
		return runner.NewParallel(driver, cfg.Benchmark, cfg.ParallelWorkers(), opts...), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// publish builds the document for result and hands it to every sink. When the
// status server is running it keeps serving the result until ctx ends.
func publish(ctx context.Context, cfg *config.Config, w *workload, result *metrics.BenchmarkResult, opts report.Options, status *statusServer) error {
	opts.SQL = w.sql
	opts.Engine = w.engine
	opts.Analyze = cfg.Output.Analyze
	opts.IncludeExecutions = cfg.Output.IncludeExecutions || cfg.Archive != ""

	doc, err := report.Generate(result, opts)
	if err != nil {
		return err
	}
	if err := emit(context.WithoutCancel(ctx), cfg, doc, status); err != nil {
		return err
	}

	if status != nil {
		slog.Info("Serving results until interrupted", "port", cfg.API.Port)
		status.wait()
	}
	return nil
}
