package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine/enginetest"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
	"github.com/DjordjeVuckovic/pgbench/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = apperr.Wrap(apperr.KindTransient, "deadlock detected", errors.New("40P01"))
	errFatal     = apperr.Wrap(apperr.KindFatal, "syntax error", errors.New("42601"))
)

func fastOpts(extra ...Option) []Option {
	return append([]Option{
		WithRetryBaseDelay(time.Millisecond),
		WithAcquireRetryDelay(time.Millisecond),
	}, extra...)
}

func config(runs, warmup, retry int) Config {
	return Config{NumberOfRuns: runs, WarmupRuns: warmup, RetryOnError: retry}
}

func runIDs(r *metrics.BenchmarkResult) []int {
	ids := make([]int, 0, len(r.Executions))
	for _, e := range r.Executions {
		ids = append(ids, e.RunID)
	}
	sort.Ints(ids)
	return ids
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.NumberOfRuns)
	assert.Equal(t, 5, cfg.WarmupRuns)
	assert.Equal(t, 3, cfg.RetryOnError)
	assert.Nil(t, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		msg  string
	}{
		{"zero runs", Config{NumberOfRuns: 0}, "number_of_runs"},
		{"negative warmup", Config{NumberOfRuns: 1, WarmupRuns: -1}, "warmup_runs"},
		{"zero timeout", Config{NumberOfRuns: 1, Timeout: utils.Ptr(time.Duration(0))}, "timeout"},
		{"negative retry", Config{NumberOfRuns: 1, RetryOnError: -1}, "retry_on_error"},
		{"zero batch size", Config{NumberOfRuns: 1, BatchSize: utils.Ptr(0)}, "batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestInvalidConfig_NoQueryIssued(t *testing.T) {
	cfg := Config{NumberOfRuns: 0, WarmupRuns: -1, Timeout: utils.Ptr(time.Duration(0)), RetryOnError: -1}

	strategies := map[string]func(d *enginetest.Driver) Benchmark{
		"sequential": func(d *enginetest.Driver) Benchmark { return NewSequential(d, cfg, fastOpts()...) },
		"concurrent": func(d *enginetest.Driver) Benchmark { return NewConcurrent(d, cfg, 4, fastOpts()...) },
		"parallel":   func(d *enginetest.Driver) Benchmark { return NewParallel(d, cfg, 2, fastOpts()...) },
	}
	for name, build := range strategies {
		t.Run(name, func(t *testing.T) {
			d := enginetest.New(enginetest.Constant(0))
			b := build(d)
			require.NoError(t, b.SetSQL("SELECT 1", nil))

			result, err := b.Run(context.Background())

			assert.Nil(t, result)
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
			assert.Zero(t, d.Calls())
			assert.Zero(t, d.Connects())
		})
	}
}

func TestRun_WithoutSQL(t *testing.T) {
	_, err := NewSequential(enginetest.New(nil), config(1, 0, 0)).Run(context.Background())
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestSetSQL_UnresolvedPlaceholder(t *testing.T) {
	b := NewSequential(enginetest.New(nil), config(1, 0, 0))
	err := b.SetSQL("SELECT * FROM t WHERE id = {{id}}", nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestSequential_RecordsExactlyRuns(t *testing.T) {
	d := enginetest.New(enginetest.Constant(0))
	b := NewSequential(d, config(20, 5, 0), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, result.TotalRuns)
	assert.Equal(t, result.TotalRuns, result.SuccessfulRuns+result.FailedRuns)
	assert.Equal(t, 25, d.Calls(), "warmups run but are not recorded")
	assert.Equal(t, seq(20), runIDs(result))
	for i, e := range result.Executions {
		assert.Equal(t, i, e.RunID, "sequential records stay in run order")
	}
	assert.Equal(t, 1, d.MaxOpenConns())
	assert.Zero(t, d.OpenConns(), "connections are closed after the run")
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	d := enginetest.New(enginetest.FailFirst(2, errTransient, 0))
	b := NewSequential(d, config(1, 0, 2), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Executions, 1)
	rec := result.Executions[0]
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Error)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, 3, d.Calls())
}

func TestRetry_Exhausted(t *testing.T) {
	d := enginetest.New(enginetest.FailFirst(100, errTransient, 0))
	b := NewSequential(d, config(2, 0, 2), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err, "per-execution failures never abort the run")

	assert.Equal(t, 2, result.FailedRuns)
	for _, rec := range result.Executions {
		assert.False(t, rec.Success)
		assert.Equal(t, 3, rec.Attempts)
		assert.Equal(t, "transient", rec.ErrorKind)
		assert.Contains(t, rec.Error, "deadlock detected")
	}
	assert.Zero(t, result.SuccessRate())
}

func TestRetry_LinearBackoff(t *testing.T) {
	b := &linearBackOff{base: 500 * time.Millisecond}
	assert.Equal(t, 500*time.Millisecond, b.NextBackOff())
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 1500*time.Millisecond, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 500*time.Millisecond, b.NextBackOff())
}

func TestRetry_FatalNotRetried(t *testing.T) {
	d := enginetest.New(enginetest.FailFirst(1, errFatal, 0))
	b := NewSequential(d, config(2, 0, 3), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedRuns)
	assert.Equal(t, 1, result.Executions[0].Attempts)
	assert.Equal(t, "fatal", result.Executions[0].ErrorKind)
	assert.True(t, result.Executions[1].Success)
	assert.Equal(t, 2, d.Calls())
}

func TestRetry_TimeoutNotRetried(t *testing.T) {
	d := enginetest.New(enginetest.Constant(200 * time.Millisecond))
	cfg := config(1, 0, 3)
	cfg.Timeout = utils.Ptr(5 * time.Millisecond)
	b := NewSequential(d, cfg, fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT pg_sleep(1)", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err)

	rec := result.Executions[0]
	assert.False(t, rec.Success)
	assert.Equal(t, "timeout", rec.ErrorKind)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 5*time.Millisecond, d.Options()[0].Timeout)
}

func TestDiagnostics_MeasuredRunsOnly(t *testing.T) {
	d := enginetest.New(enginetest.Constant(0))
	cfg := config(2, 3, 0)
	cfg.CollectExplain = true
	cfg.CollectBuffers = true
	b := NewSequential(d, cfg, fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err)

	opts := d.Options()
	require.Len(t, opts, 5)
	for _, o := range opts[:3] {
		assert.False(t, o.CollectExplain)
	}
	for _, o := range opts[3:] {
		assert.True(t, o.CollectExplain)
		assert.True(t, o.CollectBuffers)
	}
	assert.NotEmpty(t, result.Executions[0].ExplainPlan)
	assert.Equal(t, int64(1), result.Executions[0].BufferStats["shared_hit"])
}

func TestFormatter_ProvidersPerExecution(t *testing.T) {
	f := suite.NewFormatter()
	require.NoError(t, f.SetProvider("id", suite.Sequence(1)))
	f.SetStatic("table", "users")

	d := enginetest.New(enginetest.Constant(0))
	b := NewSequential(d, config(3, 0, 0), fastOpts(WithFormatter(f))...)
	require.NoError(t, b.SetSQL("SELECT * FROM {{table}} WHERE id = {{id}} AND flag = {{flag}}", suite.Params{"flag": true}))

	_, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SELECT * FROM users WHERE id = 1 AND flag = true",
		"SELECT * FROM users WHERE id = 2 AND flag = true",
		"SELECT * FROM users WHERE id = 3 AND flag = true",
	}, d.Statements())
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordingListener) OnEvent(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *recordingListener) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func TestListeners_FailuresDoNotAffectRun(t *testing.T) {
	rec := &recordingListener{}
	failing := ListenerFunc(func(context.Context, Event) error { return errors.New("listener down") })
	panicking := ListenerFunc(func(context.Context, Event) error { panic("listener bug") })

	d := enginetest.New(enginetest.Constant(0))
	b := NewSequential(d, config(3, 1, 0), fastOpts(WithListener(failing), WithListener(panicking), WithListener(rec))...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessfulRuns)

	events := rec.Events()
	require.Len(t, events, 8)
	assert.Equal(t, BeforeExecution, events[0].Type)
	assert.True(t, events[0].Warmup)
	assert.Equal(t, AfterExecution, events[7].Type)
	assert.False(t, events[7].Warmup)
	require.NotNil(t, events[7].Execution)
	assert.Equal(t, 2, events[7].Execution.RunID)
}

func TestProgressAndStatus(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []int
	)
	d := enginetest.New(enginetest.Constant(0))
	b := NewSequential(d, config(5, 0, 0), fastOpts(WithProgress(func(completed, total int) {
		mu.Lock()
		calls = append(calls, completed)
		mu.Unlock()
		assert.Equal(t, 5, total)
	}))...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	_, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls)
	status := b.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 5, status.Completed)
	assert.Equal(t, "SELECT 1", status.SQL)
	assert.Equal(t, "finalized", status.Stats.State)
}

func TestSetSQL_WhileRunning(t *testing.T) {
	d := enginetest.New(enginetest.Constant(5 * time.Millisecond))
	b := NewSequential(d, config(20, 0, 0), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	stream := b.Stream(context.Background())
	<-stream.Executions

	assert.True(t, b.Status().Running)
	assert.ErrorIs(t, b.SetSQL("SELECT 2", nil), apperr.ErrInvalidState)
	_, err := b.Run(context.Background())
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	result, err := stream.Wait()
	require.NoError(t, err)
	assert.Equal(t, 20, result.TotalRuns)
}

func TestStream_DeliversEveryExecution(t *testing.T) {
	strategies := map[string]func(d *enginetest.Driver) Benchmark{
		"sequential": func(d *enginetest.Driver) Benchmark { return NewSequential(d, config(30, 2, 0), fastOpts()...) },
		"concurrent": func(d *enginetest.Driver) Benchmark { return NewConcurrent(d, config(30, 2, 0), 4, fastOpts()...) },
		"parallel": func(d *enginetest.Driver) Benchmark {
			return NewParallel(d, config(30, 2, 0), 3, fastOpts(WithOversubscribe())...)
		},
	}
	for name, build := range strategies {
		t.Run(name, func(t *testing.T) {
			b := build(enginetest.New(enginetest.Constant(0)))
			require.NoError(t, b.SetSQL("SELECT 1", nil))

			stream := b.Stream(context.Background())
			var got []int
			for e := range stream.Executions {
				got = append(got, e.RunID)
			}
			result, err := stream.Wait()
			require.NoError(t, err)

			sort.Ints(got)
			assert.Equal(t, seq(30), got)
			assert.Equal(t, 30, result.TotalRuns)
		})
	}
}

func TestSequential_ConnectionFailureAborts(t *testing.T) {
	errLost := apperr.New(apperr.KindConnection, "server closed the connection")
	d := enginetest.New(enginetest.FailFirst(1, errLost, 0))
	d.ConnectErr = func(attempt int) error {
		if attempt == 0 {
			return nil
		}
		return errors.New("connection refused")
	}
	b := NewSequential(d, config(5, 0, 0), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	result, err := b.Run(context.Background())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperr.ErrConnection)
	assert.Equal(t, 1, d.Calls())
}

func TestSequential_UnreachableDatabase(t *testing.T) {
	d := enginetest.New(nil)
	d.ConnectErr = func(int) error { return errors.New("connection refused") }
	b := NewSequential(d, config(5, 0, 0), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	_, err := b.Run(context.Background())

	assert.ErrorIs(t, err, apperr.ErrConnection)
	assert.False(t, b.Status().Running)
}

func TestSequential_Cancellation(t *testing.T) {
	d := enginetest.New(enginetest.Constant(10 * time.Millisecond))
	b := NewSequential(d, config(1000, 0, 0), fastOpts()...)
	require.NoError(t, b.SetSQL("SELECT 1", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	result, err := b.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result)
	assert.Less(t, result.TotalRuns, 1000)
	assert.Zero(t, result.FailedRuns, "interrupted executions are not recorded")
}

func TestSession_Execute(t *testing.T) {
	d := enginetest.New(enginetest.FailFirst(1, errTransient, 0))
	s, err := NewSession(context.Background(), d, config(1, 0, 1), "SELECT {{n}}", suite.Params{"n": 7}, fastOpts()...)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Execute(context.Background(), 42, true)
	require.NoError(t, err)

	assert.True(t, rec.Success)
	assert.Equal(t, 42, rec.RunID)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, []string{"SELECT 7", "SELECT 7"}, d.Statements())
}

func TestSession_Validation(t *testing.T) {
	d := enginetest.New(nil)

	_, err := NewSession(context.Background(), d, config(0, 0, 0), "SELECT 1", nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	_, err = NewSession(context.Background(), d, config(1, 0, 0), "SELECT {{missing}}", nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Zero(t, d.Connects())
}
