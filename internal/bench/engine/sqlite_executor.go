package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/mattn/go-sqlite3"
)

func NewSQLiteDriver(ctx context.Context, name, dsn string, maxConns int) (*SQLDriver, error) {
	return openSQLDriver(ctx, name, "sqlite3", dsn, maxConns, sqliteDialect{})
}

type sqliteDialect struct{}

// SQLite has no server-side statement timeout; the context deadline interrupts the statement.
func (sqliteDialect) setTimeout(context.Context, *sql.Conn, time.Duration) error {
	return nil
}

type sqlitePlanStep struct {
	ID     int    `json:"id"`
	Parent int    `json:"parent"`
	Detail string `json:"detail"`
}

func (sqliteDialect) explain(ctx context.Context, conn *sql.Conn, statement string) (json.RawMessage, error) {
	rows, err := conn.QueryContext(ctx, "EXPLAIN QUERY PLAN "+statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []sqlitePlanStep{}
	for rows.Next() {
		var (
			step    sqlitePlanStep
			notused int
		)
		if err := rows.Scan(&step.ID, &step.Parent, &notused, &step.Detail); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(steps)
}

func (sqliteDialect) classify(err error) error {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrInterrupt:
			return apperr.Wrap(apperr.KindTimeout, "statement interrupted", err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return apperr.Wrap(apperr.KindTransient, "query error", err)
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return apperr.Wrap(apperr.KindConnection, "database unavailable", err)
		default:
			return apperr.Wrap(apperr.KindFatal, "query error", err)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, "statement timeout", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindFatal, "execution canceled", err)
	case errors.Is(err, sql.ErrConnDone):
		return apperr.Wrap(apperr.KindConnection, "connection lost", err)
	}
	return apperr.Wrap(apperr.KindTransient, "query error", err)
}
