package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/pool"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

var errConnectionLost = apperr.New(apperr.KindConnection, "connection lost during execution")

// executor applies the timeout and retry policy to single runs.
type executor struct {
	cfg            Config
	formatter      *suite.Formatter
	listeners      []Listener
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

func newExecutor(cfg Config, o options) *executor {
	f := o.formatter
	if f == nil {
		f = suite.NewFormatter()
	}
	return &executor{
		cfg:            cfg,
		formatter:      f,
		listeners:      o.listeners,
		retryBaseDelay: o.retryBaseDelay,
		logger:         o.logger,
	}
}

func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindTransient, apperr.KindUnknown:
		return true
	default:
		return false
	}
}

func errorKind(err error) string {
	if k := apperr.KindOf(err); k != apperr.KindUnknown {
		return k.String()
	}
	return apperr.KindTransient.String()
}

// execute performs one logical run on conn. Transient errors are retried up to
// RetryOnError times; timeouts and fatal errors are recorded immediately.
func (e *executor) execute(ctx context.Context, conn engine.Conn, sql string, params suite.Params, runID int, measured bool) metrics.QueryExecution {
	rec := metrics.QueryExecution{RunID: runID, StartTime: time.Now()}

	statement, err := e.formatter.Format(sql, params)
	if err != nil {
		rec.EndTime = time.Now()
		rec.Error = err.Error()
		rec.ErrorKind = errorKind(err)
		return rec
	}

	notify(ctx, e.logger, e.listeners, Event{Type: BeforeExecution, RunID: runID, Warmup: !measured, Statement: statement})

	opts := e.cfg.execOptions(measured)
	var (
		result       *engine.Execution
		lastErr      error
		attemptStart time.Time
	)
	op := func() error {
		rec.Attempts++
		attemptStart = time.Now()
		res, err := conn.Execute(ctx, statement, opts)
		if err == nil {
			result = res
			return nil
		}
		lastErr = err
		if retryable(err) && ctx.Err() == nil {
			e.logger.Debug("Retrying execution", "run_id", runID, "attempt", rec.Attempts, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: e.retryBaseDelay}, uint64(e.cfg.RetryOnError)),
		ctx,
	)
	retryErr := backoff.Retry(op, b)
	rec.EndTime = time.Now()

	if result != nil {
		rec.Success = true
		rec.Duration = result.Latency
		rec.RowCount = result.RowCount
		if measured {
			rec.ExplainPlan = result.ExplainPlan
			rec.BufferStats = result.BufferStats
			rec.IOStats = result.IOStats
		}
	} else {
		if lastErr == nil {
			lastErr = retryErr
		}
		rec.Duration = rec.EndTime.Sub(attemptStart)
		if attemptStart.IsZero() {
			rec.Duration = 0
		}
		rec.Error = lastErr.Error()
		rec.ErrorKind = errorKind(lastErr)
	}

	notify(ctx, e.logger, e.listeners, Event{Type: AfterExecution, RunID: runID, Warmup: !measured, Statement: statement, Execution: &rec})
	return rec
}

// runOne acquires a pooled connection for a single run. The returned error is
// non-nil only when no connection could be acquired.
func (e *executor) runOne(ctx context.Context, p *pool.Pool, sql string, params suite.Params, runID int, measured bool) (metrics.QueryExecution, error) {
	var (
		rec      metrics.QueryExecution
		executed bool
	)
	err := p.Acquire(ctx, func(conn engine.Conn) error {
		executed = true
		rec = e.execute(ctx, conn, sql, params, runID, measured)
		if rec.ErrorKind == apperr.KindConnection.String() {
			return errConnectionLost
		}
		return nil
	})
	if err != nil && !executed {
		return rec, err
	}
	return rec, nil
}

type sequence struct {
	sql        string
	params     suite.Params
	warmups    int
	firstRunID int
	runs       int
}

// runSequence executes warmups and then measured runs in order on p.
// Warmup failures are logged only. Runs interrupted by cancellation are not emitted.
func (e *executor) runSequence(ctx context.Context, p *pool.Pool, seq sequence, emit func(metrics.QueryExecution)) error {
	for i := 0; i < seq.warmups; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := e.runOne(ctx, p, seq.sql, seq.params, i, false)
		if err != nil {
			return err
		}
		if !rec.Success && ctx.Err() == nil {
			e.logger.Warn("Warmup execution failed", "run", i, "error", rec.Error)
		}
	}

	for i := 0; i < seq.runs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := e.runOne(ctx, p, seq.sql, seq.params, seq.firstRunID+i, true)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(rec)
	}
	return nil
}
