package monitor

import "time"

type Stat struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

type Summary struct {
	Samples       int       `json:"samples"`
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
	CPUPercent    Stat      `json:"cpu_percent"`
	MemoryPercent Stat      `json:"memory_percent"`
	MemoryUsedMB  Stat      `json:"memory_used_mb"`
	DiskReadMB    Stat      `json:"disk_read_mb"`
	DiskWriteMB   Stat      `json:"disk_write_mb"`
	NetworkSentMB Stat      `json:"network_sent_mb"`
	NetworkRecvMB Stat      `json:"network_recv_mb"`
}

// Summarize reduces samples to min/max/avg per metric. An empty log yields a zero Summary.
func Summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	pick := func(f func(Sample) float64) Stat {
		st := Stat{Min: f(samples[0]), Max: f(samples[0])}
		var sum float64
		for _, s := range samples {
			v := f(s)
			st.Min = min(st.Min, v)
			st.Max = max(st.Max, v)
			sum += v
		}
		st.Avg = sum / float64(len(samples))
		return st
	}

	return Summary{
		Samples:       len(samples),
		Start:         samples[0].Timestamp,
		End:           samples[len(samples)-1].Timestamp,
		CPUPercent:    pick(func(s Sample) float64 { return s.CPUPercent }),
		MemoryPercent: pick(func(s Sample) float64 { return s.MemoryPercent }),
		MemoryUsedMB:  pick(func(s Sample) float64 { return s.MemoryUsedMB }),
		DiskReadMB:    pick(func(s Sample) float64 { return s.DiskReadMB }),
		DiskWriteMB:   pick(func(s Sample) float64 { return s.DiskWriteMB }),
		NetworkSentMB: pick(func(s Sample) float64 { return s.NetworkSentMB }),
		NetworkRecvMB: pick(func(s Sample) float64 { return s.NetworkRecvMB }),
	}
}
