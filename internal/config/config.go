// Package config loads CLI configuration from a YAML file and PGBENCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/DjordjeVuckovic/pgbench/internal/api/server"
	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/engine"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/stress"
	"gopkg.in/yaml.v3"
)

const (
	StrategySequential = "sequential"
	StrategyConcurrent = "concurrent"
	StrategyParallel   = "parallel"
	// StrategyStress is set by the stress command; the load pattern decides the fan-out.
	StrategyStress = "stress"

	FormatTable = "table"
	FormatJSON  = "json"
)

type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	Benchmark runner.Config  `yaml:"benchmark"`

	Strategy    string `yaml:"strategy"`
	Concurrency int    `yaml:"concurrency"`
	Workers     int    `yaml:"workers"`

	// Query is used when no workload file is given.
	Query    string `yaml:"query"`
	Workload string `yaml:"workload"`

	Stress  stress.Pattern   `yaml:"stress"`
	Output  OutputConfig     `yaml:"output"`
	S3      *report.S3Config `yaml:"s3"`
	Archive string           `yaml:"archive"`
	API     APIConfig        `yaml:"api"`

	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

type OutputConfig struct {
	Format            string `yaml:"format"`
	Path              string `yaml:"path"`
	IncludeExecutions bool   `yaml:"include_executions"`
	Analyze           bool   `yaml:"analyze"`
}

type APIConfig struct {
	Enabled       bool `yaml:"enabled"`
	server.Config `yaml:",inline"`
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: engine.TypePostgres,
			Host:   "localhost",
		},
		Benchmark: runner.DefaultConfig(),
		Strategy:  StrategySequential,
		Stress:    stress.DefaultPattern(),
		Output: OutputConfig{
			Format:  FormatTable,
			Analyze: true,
		},
		API:      APIConfig{Config: server.DefaultConfig()},
		LogLevel: "info",
	}
}

// Load reads path over the defaults (when path is set) and then applies the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.Wrap(apperr.KindConfiguration, "parse config YAML", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}

	setString("PGBENCH_DRIVER", &c.Database.Driver)
	setString("PGBENCH_DSN", &c.Database.DSN)
	setString("PGBENCH_HOST", &c.Database.Host)
	setInt("PGBENCH_PORT", &c.Database.Port)
	setString("PGBENCH_DB", &c.Database.Name)
	setString("PGBENCH_USER", &c.Database.User)
	setString("PGBENCH_PASSWORD", &c.Database.Password)
	setInt("PGBENCH_RUNS", &c.Benchmark.NumberOfRuns)
	setInt("PGBENCH_WARMUP", &c.Benchmark.WarmupRuns)
	setString("PGBENCH_LOG_LEVEL", &c.LogLevel)

	if err := c.API.ApplyEnv(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return apperr.Wrap(apperr.KindConfiguration, "invalid environment", errors.Join(errs...))
	}
	return nil
}

// Validate checks everything a relational benchmark run needs.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Benchmark.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Strategy {
	case StrategySequential, StrategyConcurrent, StrategyParallel, StrategyStress:
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q", c.Strategy))
	}
	if c.Concurrency < 0 {
		errs = append(errs, errors.New("concurrency must not be negative"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must not be negative"))
	}
	switch c.Output.Format {
	case FormatTable, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output.Format))
	}
	if c.Query == "" && c.Workload == "" {
		errs = append(errs, errors.New("a query or a workload file is required"))
	}
	if c.S3 != nil && c.S3.Bucket == "" {
		errs = append(errs, errors.New("s3.bucket is required when s3 is configured"))
	}
	if _, err := c.DSN(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return apperr.Wrap(apperr.KindConfiguration, "invalid configuration", errors.Join(errs...))
	}
	return nil
}

// DSN returns the explicit DSN or builds one from the discrete connection fields.
func (c *Config) DSN() (string, error) {
	db := c.Database
	if db.DSN != "" {
		return db.DSN, nil
	}

	switch db.Driver {
	case engine.TypePostgres, "postgresql", "":
		if db.Name == "" {
			return "", errors.New("database name is required")
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(db.Host, strconv.Itoa(portOr(db.Port, 5432))),
			Path:   "/" + db.Name,
		}
		if db.User != "" {
			u.User = url.UserPassword(db.User, db.Password)
			if db.Password == "" {
				u.User = url.User(db.User)
			}
		}
		return u.String(), nil
	case engine.TypeMySQL:
		if db.Name == "" {
			return "", errors.New("database name is required")
		}
		var b strings.Builder
		if db.User != "" {
			b.WriteString(db.User)
			if db.Password != "" {
				b.WriteString(":" + db.Password)
			}
			b.WriteString("@")
		}
		fmt.Fprintf(&b, "tcp(%s)/%s?parseTime=true", net.JoinHostPort(db.Host, strconv.Itoa(portOr(db.Port, 3306))), db.Name)
		return b.String(), nil
	case engine.TypeSQLite, "sqlite3":
		if db.Name == "" {
			return "", errors.New("sqlite database path is required")
		}
		return db.Name, nil
	default:
		return "", fmt.Errorf("unsupported driver type %q", db.Driver)
	}
}

func (c *Config) EngineSpec() (engine.Spec, error) {
	dsn, err := c.DSN()
	if err != nil {
		return engine.Spec{}, apperr.Wrap(apperr.KindConfiguration, "database", err)
	}
	return engine.Spec{
		Type:     c.Database.Driver,
		DSN:      dsn,
		MaxConns: c.poolSize(),
	}, nil
}

// ParallelWorkers defaults to one worker per CPU.
func (c *Config) ParallelWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// poolSize is large enough for the widest fan-out of the configured strategy.
func (c *Config) poolSize() int {
	if c.Database.MaxConns > 0 {
		return c.Database.MaxConns
	}
	n := 1
	switch c.Strategy {
	case StrategyConcurrent:
		n = c.Concurrency
		if n == 0 && c.Benchmark.BatchSize != nil {
			n = *c.Benchmark.BatchSize
		}
		if n == 0 {
			n = runner.DefaultBatchSize
		}
	case StrategyParallel:
		n = c.ParallelWorkers()
	case StrategyStress:
		n = c.Stress.Concurrency
		if c.Stress.Kind == stress.Spike && c.Stress.SpikeMultiplier > 1 {
			n = max(n, int(float64(c.Stress.Concurrency)*c.Stress.SpikeMultiplier+0.5))
		}
	}
	return max(n, 1)
}

func portOr(port, def int) int {
	if port > 0 {
		return port
	}
	return def
}
