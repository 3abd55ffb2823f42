// Package monitor samples host resource usage while a load test runs.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

const DefaultInterval = time.Second

// Sample is one reading of host utilization. Disk and network figures are
// cumulative counters in megabytes.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  float64   `json:"memory_used_mb"`
	DiskReadMB    float64   `json:"disk_read_mb"`
	DiskWriteMB   float64   `json:"disk_write_mb"`
	NetworkSentMB float64   `json:"network_sent_mb"`
	NetworkRecvMB float64   `json:"network_recv_mb"`
}

type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// Monitor polls a Sampler on a fixed interval into an append-only log.
type Monitor struct {
	sampler  Sampler
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	samples []Sample
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(sampler Sampler, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sampler: sampler, interval: interval, logger: logger}
}

// Start takes a first sample immediately and keeps sampling until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return apperr.NewInvalidState("resource monitor is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.samples = nil
	m.done = make(chan struct{})

	go m.loop(ctx, m.done)
	m.logger.Info("Started resource monitoring", "interval", m.interval)
	return nil
}

// Stop cancels sampling and waits for the loop to exit. It is a no-op when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Debug("Stopped resource monitoring", "samples", len(m.Samples()))
}

func (m *Monitor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.sample(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	s, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("Resource monitoring error", "error", err)
		}
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
}

func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

func (m *Monitor) Summary() Summary {
	return Summarize(m.Samples())
}
