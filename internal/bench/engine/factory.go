package engine

import (
	"context"
	"fmt"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/storage/pg"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

type Spec struct {
	Name     string
	Type     string
	DSN      string
	MaxConns int
}

// Pinger is implemented by every driver returned from Open.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Open(ctx context.Context, spec Spec) (Driver, error) {
	name := spec.Name
	if name == "" {
		name = spec.Type
	}

	switch spec.Type {
	case TypePostgres, "postgresql", "":
		return NewPgDriver(ctx, name, pg.PoolConfig{ConnStr: spec.DSN, MaxConns: int32(spec.MaxConns)})
	case TypeMySQL:
		return NewMySQLDriver(ctx, name, spec.DSN, spec.MaxConns)
	case TypeSQLite, "sqlite3":
		return NewSQLiteDriver(ctx, name, spec.DSN, spec.MaxConns)
	default:
		return nil, apperr.NewConfiguration(fmt.Sprintf("unsupported driver type %q", spec.Type))
	}
}
