package runner

import (
	"context"
	"log/slog"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
)

type EventType string

const (
	BeforeExecution EventType = "before_execution"
	AfterExecution  EventType = "after_execution"
)

type Event struct {
	Type      EventType
	RunID     int
	Warmup    bool
	Statement string
	// Execution is set for AfterExecution only.
	Execution *metrics.QueryExecution
}

// Listener observes executions. Errors and panics are logged and never affect the run.
type Listener interface {
	OnEvent(ctx context.Context, ev Event) error
}

type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

func notify(ctx context.Context, logger *slog.Logger, listeners []Listener, ev Event) {
	for _, l := range listeners {
		callListener(ctx, logger, l, ev)
	}
}

func callListener(ctx context.Context, logger *slog.Logger, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Listener panicked", "event", ev.Type, "run_id", ev.RunID, "panic", r)
		}
	}()
	if err := l.OnEvent(ctx, ev); err != nil {
		logger.Warn("Listener failed", "event", ev.Type, "run_id", ev.RunID, "error", err)
	}
}
