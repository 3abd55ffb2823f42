package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepSampler struct {
	calls atomic.Int32
	fail  bool
}

func (s *stepSampler) Sample(context.Context) (Sample, error) {
	n := float64(s.calls.Add(1))
	if s.fail && int(n)%2 == 0 {
		return Sample{}, errors.New("counter unavailable")
	}
	return Sample{CPUPercent: n * 10, MemoryPercent: 50, MemoryUsedMB: 100 * n}, nil
}

func TestMonitor_CollectsUntilStopped(t *testing.T) {
	sampler := &stepSampler{}
	m := New(sampler, 5*time.Millisecond, nil)

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return len(m.Samples()) >= 3 }, time.Second, time.Millisecond)
	m.Stop()

	n := len(m.Samples())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(m.Samples()), "no samples after Stop returns")

	for _, s := range m.Samples() {
		assert.False(t, s.Timestamp.IsZero())
	}
}

func TestMonitor_StartTwice(t *testing.T) {
	m := New(&stepSampler{}, time.Hour, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.ErrorIs(t, m.Start(context.Background()), apperr.ErrInvalidState)
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	m := New(&stepSampler{}, 0, nil)
	assert.NotPanics(t, m.Stop)
	assert.Equal(t, DefaultInterval, m.interval)
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	m := New(&stepSampler{}, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))

	cancel()
	m.Stop()
	assert.Len(t, m.Samples(), 1, "first sample is taken immediately")
}

func TestMonitor_SamplerErrorsSkipped(t *testing.T) {
	m := New(&stepSampler{fail: true}, 2*time.Millisecond, nil)
	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return len(m.Samples()) >= 2 }, time.Second, time.Millisecond)
	m.Stop()

	for _, s := range m.Samples() {
		assert.NotZero(t, s.CPUPercent)
	}
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Timestamp: t0, CPUPercent: 10, MemoryPercent: 40, NetworkSentMB: 1},
		{Timestamp: t0.Add(time.Second), CPUPercent: 30, MemoryPercent: 50, NetworkSentMB: 2},
		{Timestamp: t0.Add(2 * time.Second), CPUPercent: 20, MemoryPercent: 60, NetworkSentMB: 6},
	}

	s := Summarize(samples)

	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, t0, s.Start)
	assert.Equal(t, t0.Add(2*time.Second), s.End)
	assert.Equal(t, Stat{Min: 10, Max: 30, Avg: 20}, s.CPUPercent)
	assert.Equal(t, Stat{Min: 40, Max: 60, Avg: 50}, s.MemoryPercent)
	assert.Equal(t, Stat{Min: 1, Max: 6, Avg: 3}, s.NetworkSentMB)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSystemSampler(t *testing.T) {
	if testing.Short() {
		t.Skip("reads host counters")
	}
	s, err := NewSystemSampler().Sample(context.Background())
	require.NoError(t, err)
	assert.Greater(t, s.MemoryUsedMB, 0.0)
	assert.GreaterOrEqual(t, s.MemoryPercent, 0.0)
}
