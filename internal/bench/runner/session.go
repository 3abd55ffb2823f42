package runner

import (
	"context"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/pool"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
)

// Session issues single executions on one connection under the configured
// timeout and retry policy. It is not safe for concurrent use.
type Session struct {
	exec   *executor
	pool   *pool.Pool
	sql    string
	params suite.Params
}

func NewSession(ctx context.Context, driver engine.Driver, cfg Config, sql string, params suite.Params, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	exec := newExecutor(cfg, o)
	if err := exec.formatter.Validate(sql, params); err != nil {
		return nil, err
	}

	p, err := pool.New(ctx, driver, o.poolConfig(1))
	if err != nil {
		return nil, err
	}
	return &Session{exec: exec, pool: p, sql: sql, params: params}, nil
}

// Execute performs one run. Only a failure to acquire the connection is returned
// as an error; query failures are part of the record.
func (s *Session) Execute(ctx context.Context, runID int, measured bool) (metrics.QueryExecution, error) {
	return s.exec.runOne(ctx, s.pool, s.sql, s.params, runID, measured)
}

func (s *Session) Close() error {
	return s.pool.Close()
}
