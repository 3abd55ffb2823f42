package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/go-sql-driver/mysql"
)

func NewMySQLDriver(ctx context.Context, name, dsn string, maxConns int) (*SQLDriver, error) {
	return openSQLDriver(ctx, name, "mysql", dsn, maxConns, mysqlDialect{})
}

type mysqlDialect struct{}

// max_execution_time only applies to SELECT; the context deadline covers the rest.
func (mysqlDialect) setTimeout(ctx context.Context, conn *sql.Conn, timeout time.Duration) error {
	_, err := conn.ExecContext(ctx, fmt.Sprintf("SET SESSION max_execution_time = %d", timeout.Milliseconds()))
	return err
}

func (mysqlDialect) explain(ctx context.Context, conn *sql.Conn, statement string) (json.RawMessage, error) {
	var plan string
	if err := conn.QueryRowContext(ctx, "EXPLAIN FORMAT=JSON "+statement).Scan(&plan); err != nil {
		return nil, err
	}
	return json.RawMessage(plan), nil
}

var mysqlFatalCodes = map[uint16]bool{
	1044: true, // access denied to database
	1048: true, // column cannot be null
	1049: true, // unknown database
	1051: true, // unknown table
	1052: true, // ambiguous column
	1054: true, // unknown column
	1062: true, // duplicate entry
	1064: true, // syntax error
	1109: true, // unknown table in multi delete
	1142: true, // command denied
	1146: true, // table does not exist
	1365: true, // division by 0
}

func (mysqlDialect) classify(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch {
		case myErr.Number == 3024 || myErr.Number == 1317:
			return apperr.Wrap(apperr.KindTimeout, "statement timeout", err)
		case mysqlFatalCodes[myErr.Number]:
			return apperr.Wrap(apperr.KindFatal, "query error", err)
		default:
			return apperr.Wrap(apperr.KindTransient, "query error", err)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, "statement timeout", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindFatal, "execution canceled", err)
	case errors.Is(err, mysql.ErrInvalidConn), errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return apperr.Wrap(apperr.KindConnection, "connection lost", err)
	}
	return apperr.Wrap(apperr.KindTransient, "query error", err)
}
