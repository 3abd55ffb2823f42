package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/storage/pg"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// serverTimeoutGrace lets statement_timeout fire on the server before the
// client deadline tears down the connection.
const serverTimeoutGrace = time.Second

type PgDriver struct {
	name string
	pool *pg.ConnectionPool
}

func NewPgDriver(ctx context.Context, name string, cfg pg.PoolConfig) (*PgDriver, error) {
	pool, err := pg.NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "postgres unreachable", err)
	}
	return &PgDriver{name: name, pool: pool}, nil
}

var _ Driver = (*PgDriver)(nil)

func (d *PgDriver) Connect(ctx context.Context) (Conn, error) {
	c, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "pg connect", err)
	}
	return &pgConn{conn: c, timeout: -1}, nil
}

func (d *PgDriver) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *PgDriver) Name() string { return d.name }

func (d *PgDriver) Close() error {
	d.pool.Close()
	return nil
}

type pgConn struct {
	conn *pgxpool.Conn
	// timeout is the statement_timeout currently set on the session, -1 when unknown.
	timeout time.Duration
}

func (c *pgConn) Execute(ctx context.Context, statement string, opts ExecOptions) (*Execution, error) {
	if c.conn.Conn().IsClosed() {
		return nil, apperr.New(apperr.KindConnection, "pg connection is closed")
	}
	if err := c.applyTimeout(ctx, opts.Timeout); err != nil {
		return nil, err
	}

	clientTimeout := opts.Timeout
	if clientTimeout > 0 {
		clientTimeout += serverTimeoutGrace
	}
	execCtx, cancel := withTimeout(ctx, clientTimeout)
	defer cancel()

	start := time.Now()
	rows, err := c.conn.Query(execCtx, statement)
	if err != nil {
		return nil, classifyPgError(fmt.Errorf("pg exec: %w", err))
	}
	var count int64
	for rows.Next() {
		count++
	}
	rows.Close()
	latency := time.Since(start)
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(fmt.Errorf("pg exec: %w", err))
	}
	if count == 0 {
		count = rows.CommandTag().RowsAffected()
	}

	exec := &Execution{RowCount: count, Latency: latency}
	if opts.Diagnostics() {
		c.collectDiagnostics(ctx, statement, opts, exec)
	}
	return exec, nil
}

func (c *pgConn) applyTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout < 0 {
		timeout = 0
	}
	if c.timeout == timeout {
		return nil
	}
	if _, err := c.conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return classifyPgError(fmt.Errorf("set statement_timeout: %w", err))
	}
	c.timeout = timeout
	return nil
}

// collectDiagnostics runs EXPLAIN ANALYZE as a separate statement. Failures are
// recorded as missing diagnostics, never as failed executions.
func (c *pgConn) collectDiagnostics(ctx context.Context, statement string, opts ExecOptions, exec *Execution) {
	explain := "EXPLAIN (ANALYZE, FORMAT JSON) " + statement
	if opts.CollectBuffers || opts.CollectIOTiming {
		explain = "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) " + statement
	}

	var raw []byte
	if err := c.conn.QueryRow(ctx, explain).Scan(&raw); err != nil {
		return
	}

	if opts.CollectExplain {
		exec.ExplainPlan = json.RawMessage(raw)
	}

	var plans []struct {
		Plan map[string]any `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &plans); err != nil || len(plans) == 0 {
		return
	}
	root := plans[0].Plan

	if opts.CollectBuffers {
		exec.BufferStats = bufferStats(root)
	}
	if opts.CollectIOTiming {
		exec.IOStats = ioStats(root)
	}
}

var bufferKeys = map[string]string{
	"Shared Hit Blocks":     "shared_hit",
	"Shared Read Blocks":    "shared_read",
	"Shared Dirtied Blocks": "shared_dirtied",
	"Shared Written Blocks": "shared_written",
	"Local Hit Blocks":      "local_hit",
	"Local Read Blocks":     "local_read",
	"Temp Read Blocks":      "temp_read",
	"Temp Written Blocks":   "temp_written",
}

func bufferStats(plan map[string]any) map[string]int64 {
	out := make(map[string]int64)
	for key, name := range bufferKeys {
		if v, ok := plan[key].(float64); ok {
			out[name] = int64(v)
		}
	}
	return out
}

var ioKeys = map[string]string{
	"I/O Read Time":         "read_time_ms",
	"I/O Write Time":        "write_time_ms",
	"Shared I/O Read Time":  "read_time_ms",
	"Shared I/O Write Time": "write_time_ms",
	"Temp I/O Read Time":    "temp_read_time_ms",
	"Temp I/O Write Time":   "temp_write_time_ms",
}

func ioStats(plan map[string]any) map[string]any {
	out := make(map[string]any)
	for key, name := range ioKeys {
		if v, ok := plan[key]; ok {
			out[name] = v
		}
	}
	return out
}

func (c *pgConn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.KindConnection, "pg ping", err)
	}
	return nil
}

func (c *pgConn) Close() error {
	c.conn.Release()
	return nil
}

// classifyPgError maps a pgx error onto an apperr kind. Anything not recognised
// as a timeout, fatal SQL error or lost connection is transient.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			return apperr.Wrap(apperr.KindTimeout, "statement timeout", err)
		case hasClass(pgErr.Code, "08", "57P"):
			return apperr.Wrap(apperr.KindConnection, "connection lost", err)
		case hasClass(pgErr.Code, "42", "22", "0A", "23", "2B", "3F"):
			return apperr.Wrap(apperr.KindFatal, "query error", err)
		default:
			return apperr.Wrap(apperr.KindTransient, "query error", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperr.Wrap(apperr.KindTimeout, "statement timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindFatal, "execution canceled", err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return apperr.Wrap(apperr.KindConnection, "connection lost", err)
	}

	return apperr.Wrap(apperr.KindTransient, "query error", err)
}

func hasClass(code string, classes ...string) bool {
	for _, class := range classes {
		if len(code) >= len(class) && code[:len(class)] == class {
			return true
		}
	}
	return false
}
