package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/spf13/cobra"
)

var (
	analyzeFormat string
	analyzeOutput string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <report.json>...",
	Short: "Re-analyze saved JSON reports, merging several into one",
	Long: `Analyze loads reports written with --include-executions, merges their executions
into one result and prints the statistics of the combined run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "table", "stdout format (table, json)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write the merged JSON report to this path")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var (
		results  []*metrics.BenchmarkResult
		strategy string
		sql      string
	)
	for _, path := range args {
		doc, err := report.ReadJSON(path)
		if err != nil {
			return err
		}
		r, err := doc.Result()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
		slog.Debug("Loaded report", "path", path, "executions", r.TotalRuns)

		if strategy == "" {
			strategy, sql = doc.Metadata.Strategy, doc.Metadata.SQL
		} else if strategy != doc.Metadata.Strategy {
			strategy = "mixed"
		}
	}

	merged := metrics.Merge(results...)
	doc, err := report.Generate(merged, report.Options{
		Strategy: strategy,
		SQL:      sql,
		Analyze:  true,
	})
	if err != nil {
		return err
	}

	if analyzeFormat == "json" {
		if err := report.EncodeJSON(doc, os.Stdout); err != nil {
			return err
		}
	} else {
		report.WriteTable(doc, os.Stdout)
	}

	if analyzeOutput != "" {
		if err := report.WriteJSON(doc, analyzeOutput); err != nil {
			return err
		}
		slog.Info("Report written", "path", analyzeOutput)
	}
	return nil
}
