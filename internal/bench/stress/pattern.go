// Package stress shapes benchmark load over wall-clock time.
package stress

import (
	"errors"
	"fmt"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

type Kind string

const (
	Sustained Kind = "sustained"
	RampUp    Kind = "ramp_up"
	Spike     Kind = "spike"
	Soak      Kind = "soak"
)

func (k Kind) Valid() bool {
	switch k {
	case Sustained, RampUp, Spike, Soak:
		return true
	}
	return false
}

const rampSteps = 10

// Pattern describes the offered load of a stress test.
type Pattern struct {
	Kind     Kind          `yaml:"kind" json:"kind"`
	Duration time.Duration `yaml:"duration" json:"duration"`
	// TargetRate caps issued executions per second across all loops. Zero means unpaced.
	TargetRate      float64       `yaml:"target_rate" json:"target_rate,omitempty"`
	RampUpTime      time.Duration `yaml:"ramp_up_time" json:"ramp_up_time,omitempty"`
	RampDownTime    time.Duration `yaml:"ramp_down_time" json:"ramp_down_time,omitempty"`
	SpikeMultiplier float64       `yaml:"spike_multiplier" json:"spike_multiplier,omitempty"`
	// SpikeDuration defaults to a tenth of Duration.
	SpikeDuration    time.Duration `yaml:"spike_duration" json:"spike_duration,omitempty"`
	Concurrency      int           `yaml:"concurrency" json:"concurrency"`
	MonitorResources bool          `yaml:"monitor_resources" json:"monitor_resources"`
	MonitorInterval  time.Duration `yaml:"monitor_interval" json:"monitor_interval,omitempty"`
}

func DefaultPattern() Pattern {
	return Pattern{
		Kind:             Sustained,
		Duration:         60 * time.Second,
		RampUpTime:       10 * time.Second,
		SpikeMultiplier:  3,
		Concurrency:      10,
		MonitorResources: true,
		MonitorInterval:  time.Second,
	}
}

func (p Pattern) Validate() error {
	var errs []error
	if !p.Kind.Valid() {
		errs = append(errs, fmt.Errorf("unknown stress test kind %q", p.Kind))
	}
	if p.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %s", p.Duration))
	}
	if p.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", p.Concurrency))
	}
	if p.TargetRate < 0 {
		errs = append(errs, fmt.Errorf("target_rate must not be negative, got %g", p.TargetRate))
	}
	if p.RampUpTime < 0 || p.RampDownTime < 0 {
		errs = append(errs, errors.New("ramp times must not be negative"))
	}
	if p.Kind == RampUp && p.RampUpTime == 0 {
		errs = append(errs, errors.New("ramp_up_time is required for ramp_up"))
	}
	if p.Kind == Spike {
		if p.SpikeMultiplier < 1 {
			errs = append(errs, fmt.Errorf("spike_multiplier must be at least 1, got %g", p.SpikeMultiplier))
		}
		if p.SpikeDuration < 0 || p.SpikeDuration > p.Duration {
			errs = append(errs, fmt.Errorf("spike_duration must be within [0, duration], got %s", p.SpikeDuration))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "invalid load pattern", err)
	}
	return nil
}

// StepConcurrency is the concurrency of ramp step i (0-based) out of rampSteps.
func StepConcurrency(step, maxConcurrency int) int {
	c := int(float64(step+1)/rampSteps*float64(maxConcurrency) + 0.5)
	return max(1, c)
}

func (p Pattern) spikeDuration() time.Duration {
	if p.SpikeDuration > 0 {
		return p.SpikeDuration
	}
	return p.Duration / 10
}

func (p Pattern) spikeConcurrency() int {
	return max(1, int(p.SpikeMultiplier*float64(p.Concurrency)+0.5))
}
