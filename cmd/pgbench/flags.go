package main

import (
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/config"
	"github.com/DjordjeVuckovic/pgbench/pkg/utils"
	"github.com/spf13/cobra"
)

// benchFlags are shared by run and stress. Only flags the user set override the config.
type benchFlags struct {
	query    string
	workload string
	driver   string
	dsn      string

	runs    int
	warmup  int
	timeout time.Duration
	retry   int
	batch   int

	explain  bool
	buffers  bool
	ioTiming bool

	format     string
	output     string
	executions bool
	noAnalyze  bool
	archive    string
	s3Bucket   string
	s3Prefix   string

	api     bool
	apiPort string

	progress bool
}

func (f *benchFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.query, "query", "q", "", "SQL statement to benchmark")
	fs.StringVarP(&f.workload, "workload", "w", "", "YAML workload file with query and value providers")
	fs.StringVar(&f.driver, "driver", "", "database driver (postgres, mysql, sqlite)")
	fs.StringVar(&f.dsn, "dsn", "", "database connection string")

	fs.IntVar(&f.runs, "runs", 0, "measured executions")
	fs.IntVar(&f.warmup, "warmup", 0, "unrecorded warmup executions")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-statement timeout")
	fs.IntVar(&f.retry, "retry", 0, "retries for transient errors")
	fs.IntVar(&f.batch, "batch-size", 0, "concurrent batch width when --concurrency is unset")

	fs.BoolVar(&f.explain, "explain", false, "collect EXPLAIN plans (postgres)")
	fs.BoolVar(&f.buffers, "buffers", false, "collect buffer statistics (postgres)")
	fs.BoolVar(&f.ioTiming, "io-timing", false, "collect I/O timing (postgres)")

	fs.StringVar(&f.format, "format", "", "stdout format (table, json)")
	fs.StringVarP(&f.output, "output", "o", "", "write the JSON report to this path")
	fs.BoolVar(&f.executions, "include-executions", false, "include raw executions in the JSON report")
	fs.BoolVar(&f.noAnalyze, "no-analyze", false, "skip the statistical analysis")
	fs.StringVar(&f.archive, "archive", "", "SQLite file to archive the run in")
	fs.StringVar(&f.s3Bucket, "s3-bucket", "", "upload the JSON report to this S3 bucket")
	fs.StringVar(&f.s3Prefix, "s3-prefix", "", "key prefix for S3 uploads")

	fs.BoolVar(&f.api, "api", false, "serve live status over HTTP while running")
	fs.StringVar(&f.apiPort, "api-port", "", "status server port")

	fs.BoolVar(&f.progress, "progress", true, "show a progress bar")
}

func (f *benchFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("query") {
		cfg.Query = f.query
	}
	if changed("workload") {
		cfg.Workload = f.workload
	}
	if changed("driver") {
		cfg.Database.Driver = f.driver
	}
	if changed("dsn") {
		cfg.Database.DSN = f.dsn
	}
	if changed("runs") {
		cfg.Benchmark.NumberOfRuns = f.runs
	}
	if changed("warmup") {
		cfg.Benchmark.WarmupRuns = f.warmup
	}
	if changed("timeout") {
		cfg.Benchmark.Timeout = utils.Ptr(f.timeout)
	}
	if changed("retry") {
		cfg.Benchmark.RetryOnError = f.retry
	}
	if changed("batch-size") {
		cfg.Benchmark.BatchSize = utils.Ptr(f.batch)
	}
	if changed("explain") {
		cfg.Benchmark.CollectExplain = f.explain
	}
	if changed("buffers") {
		cfg.Benchmark.CollectBuffers = f.buffers
	}
	if changed("io-timing") {
		cfg.Benchmark.CollectIOTiming = f.ioTiming
	}
	if changed("format") {
		cfg.Output.Format = f.format
	}
	if changed("output") {
		cfg.Output.Path = f.output
	}
	if changed("include-executions") {
		cfg.Output.IncludeExecutions = f.executions
	}
	if changed("no-analyze") {
		cfg.Output.Analyze = !f.noAnalyze
	}
	if changed("archive") {
		cfg.Archive = f.archive
	}
	if changed("s3-bucket") {
		if cfg.S3 == nil {
			cfg.S3 = &report.S3Config{}
		}
		cfg.S3.Bucket = f.s3Bucket
	}
	if changed("s3-prefix") && cfg.S3 != nil {
		cfg.S3.Prefix = f.s3Prefix
	}
	if changed("api") {
		cfg.API.Enabled = f.api
	}
	if changed("api-port") {
		cfg.API.Port = f.apiPort
	}
}
