package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
	"github.com/DjordjeVuckovic/pgbench/internal/config"
)

// workload is an opened driver plus the statement to benchmark.
type workload struct {
	driver    engine.Driver
	engine    report.EngineInfo
	sql       string
	params    suite.Params
	formatter *suite.Formatter
}

func openWorkload(ctx context.Context, cfg *config.Config) (*workload, error) {
	w := &workload{sql: cfg.Query, formatter: suite.NewFormatter()}

	if cfg.Workload != "" {
		loaded, err := suite.LoadFromFile(cfg.Workload)
		if err != nil {
			return nil, fmt.Errorf("load workload %s: %w", cfg.Workload, err)
		}
		w.sql = loaded.Workload.Query
		w.params = loaded.Workload.Params
		w.formatter = loaded.Formatter
		slog.Info("Loaded workload", "name", loaded.Workload.Name, "path", cfg.Workload)
	}

	spec, err := cfg.EngineSpec()
	if err != nil {
		return nil, err
	}
	driver, err := engine.Open(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("open %s driver: %w", spec.Type, err)
	}
	w.driver = driver
	w.engine = report.EngineInfo{Type: driver.Name(), Connection: spec.DSN}

	slog.Info("Connected", "driver", driver.Name(), "max_conns", spec.MaxConns)
	return w, nil
}

func (w *workload) runnerOptions(extra ...runner.Option) []runner.Option {
	opts := []runner.Option{
		runner.WithFormatter(w.formatter),
		runner.WithLogger(slog.Default()),
	}
	return append(opts, extra...)
}

func (w *workload) Close() {
	if err := w.driver.Close(); err != nil {
		slog.Warn("Failed to close driver", "error", err)
	}
}

// healthPinger exposes the driver ping to the status server when the driver supports it.
func (w *workload) healthPinger() engine.Pinger {
	p, _ := w.driver.(engine.Pinger)
	return p
}
