package engine

import (
	"context"
	"encoding/json"
	"time"
)

// Driver opens physical connections to one database.
type Driver interface {
	Connect(ctx context.Context) (Conn, error)
	Name() string
	Close() error
}

// Conn executes statements on a single connection. Errors returned by Execute
// carry an apperr kind: timeout, transient, fatal or connection.
type Conn interface {
	Execute(ctx context.Context, statement string, opts ExecOptions) (*Execution, error)
	Ping(ctx context.Context) error
	Close() error
}

type ExecOptions struct {
	// Timeout bounds a single statement; zero disables it.
	Timeout         time.Duration
	CollectExplain  bool
	CollectBuffers  bool
	CollectIOTiming bool
}

func (o ExecOptions) Diagnostics() bool {
	return o.CollectExplain || o.CollectBuffers || o.CollectIOTiming
}

type Execution struct {
	RowCount    int64
	Latency     time.Duration
	ExplainPlan json.RawMessage
	BufferStats map[string]int64
	IOStats     map[string]any
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
