package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

const bytesPerMB = 1024 * 1024

// SystemSampler reads host counters through gopsutil. CPU percent is measured
// since the previous call, so the first reading may be 0.
type SystemSampler struct{}

var _ Sampler = SystemSampler{}

func NewSystemSampler() SystemSampler {
	return SystemSampler{}
}

func (SystemSampler) Sample(ctx context.Context) (Sample, error) {
	s := Sample{Timestamp: time.Now()}

	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, fmt.Errorf("reading cpu usage: %w", err)
	}
	if len(cpus) > 0 {
		s.CPUPercent = cpus[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("reading memory usage: %w", err)
	}
	s.MemoryPercent = vm.UsedPercent
	s.MemoryUsedMB = float64(vm.Used) / bytesPerMB

	// disk and network counters are missing in some containers
	if counters, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, c := range counters {
			s.DiskReadMB += float64(c.ReadBytes) / bytesPerMB
			s.DiskWriteMB += float64(c.WriteBytes) / bytesPerMB
		}
	}
	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		s.NetworkSentMB = float64(counters[0].BytesSent) / bytesPerMB
		s.NetworkRecvMB = float64(counters[0].BytesRecv) / bytesPerMB
	}
	return s, nil
}
