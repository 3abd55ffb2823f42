package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultAcquireAttempts = 3
	DefaultRetryDelay      = time.Second
)

type Config struct {
	Size            int
	AcquireAttempts int
	RetryDelay      time.Duration
	HealthCheck     bool
}

func DefaultConfig(size int) Config {
	return Config{
		Size:            size,
		AcquireAttempts: DefaultAcquireAttempts,
		RetryDelay:      DefaultRetryDelay,
		HealthCheck:     true,
	}
}

type Stats struct {
	Open      int   `json:"open"`
	Idle      int   `json:"idle"`
	InUse     int   `json:"in_use"`
	Acquires  int64 `json:"acquires"`
	Failures  int64 `json:"failures"`
	Discarded int64 `json:"discarded"`
}

// Pool bounds the number of connections handed out by a driver and reuses idle ones.
type Pool struct {
	driver engine.Driver
	cfg    Config
	sem    chan struct{}

	mu     sync.Mutex
	idle   []engine.Conn
	open   int
	closed bool

	acquires  atomic.Int64
	failures  atomic.Int64
	discarded atomic.Int64
}

// New validates connectivity by opening one connection up front.
func New(ctx context.Context, driver engine.Driver, cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, apperr.Newf(apperr.KindConfiguration, "pool size must be at least 1, got %d", cfg.Size)
	}
	if cfg.AcquireAttempts < 1 {
		cfg.AcquireAttempts = DefaultAcquireAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	p := &Pool{
		driver: driver,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.Size),
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "database unreachable", err)
	}
	if cfg.HealthCheck {
		if err := conn.Ping(ctx); err != nil {
			_ = conn.Close()
			return nil, apperr.Wrap(apperr.KindConnection, "database unreachable", err)
		}
	}
	p.idle = append(p.idle, conn)
	p.open = 1

	return p, nil
}

// Acquire runs fn with a pooled connection. The connection is returned on every
// exit path; it is discarded instead when fn reports a connection-class error or panics.
func (p *Pool) Acquire(ctx context.Context, fn func(engine.Conn) error) (err error) {
	if p.isClosed() {
		return apperr.New(apperr.KindConnection, "pool is closed")
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire connection: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	conn, err := p.get(ctx)
	if err != nil {
		p.failures.Add(1)
		return apperr.Wrap(apperr.KindConnection,
			fmt.Sprintf("all %d connection attempts failed", p.cfg.AcquireAttempts), err)
	}
	p.acquires.Add(1)

	defer func() {
		if r := recover(); r != nil {
			p.discard(conn)
			panic(r)
		}
		if apperr.KindOf(err) == apperr.KindConnection {
			p.discard(conn)
			return
		}
		p.put(conn)
	}()

	return fn(conn)
}

func (p *Pool) get(ctx context.Context) (engine.Conn, error) {
	var conn engine.Conn
	op := func() error {
		if p.isClosed() {
			return backoff.Permanent(errors.New("pool is closed"))
		}
		c, err := p.take(ctx)
		if err != nil {
			slog.Debug("Connection attempt failed", "error", err)
			return err
		}
		conn = c
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), uint64(p.cfg.AcquireAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return conn, nil
}

// take pops a healthy idle connection or opens a new one.
func (p *Pool) take(ctx context.Context) (engine.Conn, error) {
	p.mu.Lock()
	var conn engine.Conn
	if n := len(p.idle); n > 0 {
		conn = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if conn == nil {
		return p.connect(ctx)
	}
	if p.cfg.HealthCheck {
		if err := conn.Ping(ctx); err != nil {
			p.discard(conn)
			return nil, fmt.Errorf("health check: %w", err)
		}
	}
	return conn, nil
}

func (p *Pool) connect(ctx context.Context) (engine.Conn, error) {
	conn, err := p.driver.Connect(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.open++
	p.mu.Unlock()
	return conn, nil
}

func (p *Pool) put(conn engine.Conn) {
	p.mu.Lock()
	if !p.closed {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.open--
	p.mu.Unlock()
	_ = conn.Close()
}

func (p *Pool) discard(conn engine.Conn) {
	p.discarded.Add(1)
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
	if err := conn.Close(); err != nil {
		slog.Warn("Failed to close discarded connection", "error", err)
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Open:      p.open,
		Idle:      len(p.idle),
		InUse:     p.open - len(p.idle),
		Acquires:  p.acquires.Load(),
		Failures:  p.failures.Load(),
		Discarded: p.discarded.Load(),
	}
}

// Close closes idle connections; connections in use are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
