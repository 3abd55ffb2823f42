package runner

import (
	"strings"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
)

const (
	DefaultRuns         = 100
	DefaultWarmupRuns   = 5
	DefaultRetryOnError = 3
	DefaultBatchSize    = 10

	DefaultRetryBaseDelay   = 500 * time.Millisecond
	DefaultLivenessInterval = time.Second
	progressLogEvery        = 100
)

// Config is shared read-only by every execution of a run.
type Config struct {
	NumberOfRuns int `yaml:"number_of_runs" json:"number_of_runs"`
	WarmupRuns   int `yaml:"warmup_runs" json:"warmup_runs"`
	// Timeout bounds each statement; nil means no timeout.
	Timeout      *time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	RetryOnError int            `yaml:"retry_on_error" json:"retry_on_error"`
	// BatchSize is the concurrent batch width used when no concurrency is given.
	BatchSize *int `yaml:"batch_size" json:"batch_size,omitempty"`

	CollectExplain  bool `yaml:"collect_explain" json:"collect_explain"`
	CollectBuffers  bool `yaml:"collect_buffers" json:"collect_buffers"`
	CollectIOTiming bool `yaml:"collect_io_timing" json:"collect_io_timing"`
}

func DefaultConfig() Config {
	return Config{
		NumberOfRuns: DefaultRuns,
		WarmupRuns:   DefaultWarmupRuns,
		RetryOnError: DefaultRetryOnError,
	}
}

// Validate reports every invalid field at once as a configuration error.
func (c Config) Validate() error {
	var problems []string
	if c.NumberOfRuns < 1 {
		problems = append(problems, "number_of_runs must be at least 1")
	}
	if c.WarmupRuns < 0 {
		problems = append(problems, "warmup_runs must not be negative")
	}
	if c.Timeout != nil && *c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.RetryOnError < 0 {
		problems = append(problems, "retry_on_error must not be negative")
	}
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		problems = append(problems, "batch_size must be positive")
	}

	if len(problems) > 0 {
		return apperr.NewConfiguration("invalid benchmark config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout == nil {
		return 0
	}
	return *c.Timeout
}

// execOptions enables diagnostics for measured runs only.
func (c Config) execOptions(measured bool) engine.ExecOptions {
	opts := engine.ExecOptions{Timeout: c.timeout()}
	if measured {
		opts.CollectExplain = c.CollectExplain
		opts.CollectBuffers = c.CollectBuffers
		opts.CollectIOTiming = c.CollectIOTiming
	}
	return opts
}

func (c Config) batchWidth(concurrency int) int {
	switch {
	case concurrency > 0:
		return concurrency
	case c.BatchSize != nil && *c.BatchSize > 0:
		return *c.BatchSize
	default:
		return DefaultBatchSize
	}
}
