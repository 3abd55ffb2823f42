package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

// dialect covers what differs between database/sql backends.
type dialect interface {
	setTimeout(ctx context.Context, conn *sql.Conn, timeout time.Duration) error
	explain(ctx context.Context, conn *sql.Conn, statement string) (json.RawMessage, error)
	classify(err error) error
}

// SQLDriver adapts a database/sql backend to the Driver interface.
type SQLDriver struct {
	name    string
	db      *sql.DB
	dialect dialect
}

var _ Driver = (*SQLDriver)(nil)

func openSQLDriver(ctx context.Context, name, driverName, dsn string, maxConns int, d dialect) (*SQLDriver, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, fmt.Sprintf("open %s", driverName), err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.KindConnection, fmt.Sprintf("%s unreachable", driverName), err)
	}
	return &SQLDriver{name: name, db: db, dialect: d}, nil
}

func (d *SQLDriver) Connect(ctx context.Context) (Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, d.name+" connect", err)
	}
	return &sqlConn{conn: c, dialect: d.dialect, timeout: -1}, nil
}

func (d *SQLDriver) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *SQLDriver) DB() *sql.DB { return d.db }

func (d *SQLDriver) Name() string { return d.name }

func (d *SQLDriver) Close() error {
	return d.db.Close()
}

type sqlConn struct {
	conn    *sql.Conn
	dialect dialect
	timeout time.Duration
}

func (c *sqlConn) Execute(ctx context.Context, statement string, opts ExecOptions) (*Execution, error) {
	if c.timeout != opts.Timeout {
		if err := c.dialect.setTimeout(ctx, c.conn, opts.Timeout); err != nil {
			return nil, c.dialect.classify(fmt.Errorf("set timeout: %w", err))
		}
		c.timeout = opts.Timeout
	}

	execCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := c.conn.QueryContext(execCtx, statement)
	if err != nil {
		return nil, c.dialect.classify(fmt.Errorf("sql exec: %w", err))
	}
	var count int64
	for rows.Next() {
		count++
	}
	closeErr := rows.Close()
	latency := time.Since(start)
	if err := rows.Err(); err != nil {
		return nil, c.dialect.classify(fmt.Errorf("sql exec: %w", err))
	}
	if closeErr != nil {
		return nil, c.dialect.classify(fmt.Errorf("sql exec: %w", closeErr))
	}

	exec := &Execution{RowCount: count, Latency: latency}
	if opts.CollectExplain {
		if plan, err := c.dialect.explain(ctx, c.conn, statement); err == nil {
			exec.ExplainPlan = plan
		}
	}
	return exec, nil
}

func (c *sqlConn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return apperr.Wrap(apperr.KindConnection, "sql ping", err)
	}
	return nil
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}
