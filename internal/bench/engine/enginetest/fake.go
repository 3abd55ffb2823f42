// Package enginetest provides a scripted in-memory driver for scheduler tests.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
)

// ScriptFunc decides the outcome of the n-th Execute call (0-based, counted across connections).
type ScriptFunc func(call int, statement string) (time.Duration, error)

func Constant(latency time.Duration) ScriptFunc {
	return func(int, string) (time.Duration, error) { return latency, nil }
}

// FailFirst fails the first n calls with err, then succeeds with latency.
func FailFirst(n int, err error, latency time.Duration) ScriptFunc {
	return func(call int, _ string) (time.Duration, error) {
		if call < n {
			return 0, err
		}
		return latency, nil
	}
}

type Driver struct {
	Script ScriptFunc
	// ConnectErr, when set, is consulted on every Connect with the 0-based attempt number.
	ConnectErr func(attempt int) error
	PingErr    func() error

	mu         sync.Mutex
	calls      int
	connects   int
	open       int
	maxOpen    int
	closed     bool
	statements []string
	options    []engine.ExecOptions
}

var _ engine.Driver = (*Driver)(nil)

func New(script ScriptFunc) *Driver {
	return &Driver{Script: script}
}

func (d *Driver) Connect(context.Context) (engine.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := d.connects
	d.connects++
	if d.ConnectErr != nil {
		if err := d.ConnectErr(attempt); err != nil {
			return nil, err
		}
	}
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return &conn{driver: d}, nil
}

func (d *Driver) Ping(context.Context) error {
	if d.PingErr != nil {
		return d.PingErr()
	}
	return nil
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func (d *Driver) OpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Driver) MaxOpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

func (d *Driver) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.statements))
	copy(out, d.statements)
	return out
}

func (d *Driver) Options() []engine.ExecOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]engine.ExecOptions, len(d.options))
	copy(out, d.options)
	return out
}

func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) next(statement string, opts engine.ExecOptions) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	call := d.calls
	d.calls++
	d.statements = append(d.statements, statement)
	d.options = append(d.options, opts)
	if d.Script == nil {
		return 0, nil
	}
	return d.Script(call, statement)
}

type conn struct {
	driver *Driver
	closed bool
}

func (c *conn) Execute(ctx context.Context, statement string, opts engine.ExecOptions) (*engine.Execution, error) {
	if c.closed {
		return nil, apperr.New(apperr.KindConnection, "fake connection is closed")
	}

	latency, err := c.driver.next(statement, opts)
	if err != nil {
		return nil, err
	}

	wait := latency
	timedOut := opts.Timeout > 0 && latency > opts.Timeout
	if timedOut {
		wait = opts.Timeout
	}

	start := time.Now()
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindFatal, "execution canceled", ctx.Err())
		}
	}
	if timedOut {
		return nil, apperr.New(apperr.KindTimeout, "statement timeout")
	}

	exec := &engine.Execution{RowCount: 1, Latency: time.Since(start)}
	if opts.CollectExplain {
		exec.ExplainPlan = []byte(`[{"Plan":{"Node Type":"Result"}}]`)
	}
	if opts.CollectBuffers {
		exec.BufferStats = map[string]int64{"shared_hit": 1}
	}
	if opts.CollectIOTiming {
		exec.IOStats = map[string]any{"read_time_ms": 0.0}
	}
	return exec, nil
}

func (c *conn) Ping(context.Context) error {
	if c.driver.PingErr != nil {
		if err := c.driver.PingErr(); err != nil {
			return apperr.Wrap(apperr.KindConnection, "fake ping", err)
		}
	}
	return nil
}

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.driver.mu.Lock()
	c.driver.open--
	c.driver.mu.Unlock()
	return nil
}
