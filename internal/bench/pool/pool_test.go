package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(size int) Config {
	cfg := DefaultConfig(size)
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(context.Background(), enginetest.New(nil), testConfig(0))
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestNew_Unreachable(t *testing.T) {
	d := enginetest.New(nil)
	d.ConnectErr = func(int) error { return errors.New("connection refused") }

	_, err := New(context.Background(), d, testConfig(1))

	assert.ErrorIs(t, err, apperr.ErrConnection)
	assert.Equal(t, 1, d.Connects())
}

func TestNew_FailedHealthCheck(t *testing.T) {
	d := enginetest.New(nil)
	d.PingErr = func() error { return errors.New("ping failed") }

	_, err := New(context.Background(), d, testConfig(1))

	assert.ErrorIs(t, err, apperr.ErrConnection)
	assert.Zero(t, d.OpenConns())
}

func TestAcquire_ReusesIdleConnection(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(enginetest.Constant(0))
	p, err := New(ctx, d, testConfig(2))
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 5; i++ {
		err := p.Acquire(ctx, func(c engine.Conn) error {
			_, err := c.Execute(ctx, "SELECT 1", engine.ExecOptions{})
			return err
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, d.Connects())
	stats := p.Stats()
	assert.Equal(t, int64(5), stats.Acquires)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Idle)
	assert.Zero(t, stats.InUse)
}

func TestAcquire_BoundedBySize(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(enginetest.Constant(5 * time.Millisecond))
	p, err := New(ctx, d, testConfig(3))
	require.NoError(t, err)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Acquire(ctx, func(c engine.Conn) error {
				_, err := c.Execute(ctx, "SELECT 1", engine.ExecOptions{})
				return err
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, d.MaxOpenConns(), 3)
	assert.Equal(t, 12, d.Calls())
}

func TestAcquire_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(nil)
	d.ConnectErr = func(attempt int) error {
		if attempt == 0 {
			return nil
		}
		return errors.New("too many connections")
	}
	p, err := New(ctx, d, testConfig(2))
	require.NoError(t, err)
	defer p.Close()

	called := false
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- p.Acquire(ctx, func(engine.Conn) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	err = p.Acquire(ctx, func(engine.Conn) error {
		called = true
		return nil
	})
	close(release)
	require.NoError(t, <-done)

	assert.ErrorIs(t, err, apperr.ErrConnection)
	assert.False(t, called)
	assert.Equal(t, 1+DefaultAcquireAttempts, d.Connects())
	assert.Equal(t, int64(1), p.Stats().Failures)
}

func TestAcquire_RecoversAfterTransientConnectFailure(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(nil)
	d.ConnectErr = func(attempt int) error {
		if attempt == 1 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}
	p, err := New(ctx, d, testConfig(1))
	require.NoError(t, err)
	defer p.Close()

	// force the pooled connection out so Acquire has to reconnect
	err = p.Acquire(ctx, func(engine.Conn) error { return apperr.ErrConnection })
	require.ErrorIs(t, err, apperr.ErrConnection)

	err = p.Acquire(ctx, func(engine.Conn) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, d.Connects())
	assert.Equal(t, int64(1), p.Stats().Discarded)
}

func TestAcquire_ReleasesOnPanic(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(nil)
	p, err := New(ctx, d, testConfig(1))
	require.NoError(t, err)
	defer p.Close()

	assert.Panics(t, func() {
		_ = p.Acquire(ctx, func(engine.Conn) error { panic("boom") })
	})

	assert.Zero(t, d.OpenConns())
	require.NoError(t, p.Acquire(ctx, func(engine.Conn) error { return nil }))
}

func TestAcquire_QueryErrorKeepsConnection(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(nil)
	p, err := New(ctx, d, testConfig(1))
	require.NoError(t, err)
	defer p.Close()

	err = p.Acquire(ctx, func(engine.Conn) error { return apperr.ErrFatal })

	assert.ErrorIs(t, err, apperr.ErrFatal)
	assert.Equal(t, 1, p.Stats().Idle)
	assert.Equal(t, 1, d.Connects())
}

func TestAcquire_UnhealthyIdleIsReplaced(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(nil)
	p, err := New(ctx, d, testConfig(1))
	require.NoError(t, err)
	defer p.Close()

	pings := 0
	d.PingErr = func() error {
		pings++
		if pings == 1 {
			return errors.New("server closed the connection")
		}
		return nil
	}

	require.NoError(t, p.Acquire(ctx, func(engine.Conn) error { return nil }))
	assert.Equal(t, 2, d.Connects())
	assert.Equal(t, int64(1), p.Stats().Discarded)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	d := enginetest.New(nil)
	p, err := New(ctx, d, testConfig(1))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Zero(t, d.OpenConns())
	assert.ErrorIs(t, p.Acquire(ctx, func(engine.Conn) error { return nil }), apperr.ErrConnection)
}

func TestAcquire_ContextCanceledWhileWaiting(t *testing.T) {
	d := enginetest.New(nil)
	p, err := New(context.Background(), d, testConfig(1))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	go func() {
		_ = p.Acquire(context.Background(), func(engine.Conn) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err = p.Acquire(ctx, func(engine.Conn) error { return nil })
	close(release)

	assert.ErrorIs(t, err, context.Canceled)
}
