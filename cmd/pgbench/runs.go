package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/archive"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/spf13/cobra"
)

var (
	runsArchive string
	runsLimit   int
)

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List archived runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := archive.Open(runsArchive)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if len(args) == 1 {
			doc, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			report.WriteTable(doc, os.Stdout)
			return nil
		}

		records, err := a.List(ctx, runsLimit, 0)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tStarted\tStrategy\tTotal\tFailed\tQPS\tAvg ms\tp95 ms")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%.3f\t%.3f\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Strategy, r.Total, r.Failed, r.ThroughputQPS, r.AvgMs, r.P95Ms)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsArchive, "archive", "pgbench.db", "SQLite archive file")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to list")
}
