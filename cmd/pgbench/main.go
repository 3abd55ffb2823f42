package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DjordjeVuckovic/pgbench/internal/config"
	"github.com/DjordjeVuckovic/pgbench/pkg/config/env"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	flagConfig   string
	flagEnvFile  string
	flagLogLevel string
	flagLogJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "pgbench",
	Short: "Query latency and throughput benchmark",
	Long: `pgbench repeatedly executes a SQL statement against PostgreSQL, MySQL or SQLite
and reports latency percentiles, throughput and a statistical analysis of the timings.

Examples:
  pgbench run -q "SELECT count(*) FROM orders" --runs 500
  pgbench run -w workloads/lookup.yaml --strategy parallel --workers 8 -o result.json
  pgbench stress -q "SELECT 1" --pattern spike --duration 2m --concurrency 4
  pgbench analyze result-a.json result-b.json`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := env.LoadDotEnv(flagEnvFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		setupLogger(flagLogLevel, flagLogJSON)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with PGBENCH_* variables")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log as JSON")

	rootCmd.AddCommand(runCmd, stressCmd, analyzeCmd, runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("pgbench failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string, asJSON bool) {
	if level == "" {
		level = os.Getenv("PGBENCH_LOG_LEVEL")
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads --config and the environment and then applies the command's flags.
func loadConfig(cmd *cobra.Command, flags *benchFlags) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	flags.apply(cmd, cfg)
	return cfg, nil
}
