package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
)

func WriteTable(doc *Document, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "\n=== Query Benchmark (%s) ===\n\n", orDash(doc.Metadata.Strategy))
	if doc.Metadata.SQL != "" {
		fmt.Fprintf(tw, "SQL: %s\n\n", doc.Metadata.SQL)
	}

	writeSummaryTable(tw, doc)
	writeLatencyTable(tw, doc)
	writeDistributionTable(tw, doc)
	if doc.Statistics.Analysis != nil {
		writeAnalysisTable(tw, doc)
	}
	if len(doc.Statistics.Errors) > 0 {
		writeErrorTable(tw, doc)
	}
	if len(doc.Phases) > 0 {
		writePhaseTable(tw, doc)
	}
	if doc.Resources != nil && doc.Resources.Samples > 0 {
		writeResourceTable(tw, doc)
	}

	tw.Flush()
}

func writeHeader(tw *tabwriter.Writer, header ...string) {
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))
}

func writeRow(tw *tabwriter.Writer, row ...string) {
	fmt.Fprintln(tw, strings.Join(row, "\t"))
}

func writeSummaryTable(tw *tabwriter.Writer, doc *Document) {
	s := doc.Summary
	fmt.Fprintf(tw, "Summary\n\n")
	writeHeader(tw, "Total", "Successful", "Failed", "Success", "Duration", "Throughput")
	writeRow(tw,
		fmt.Sprintf("%d", s.Total),
		fmt.Sprintf("%d", s.Successful),
		fmt.Sprintf("%d", s.Failed),
		fmt.Sprintf("%.1f%%", s.SuccessRate),
		fmt.Sprintf("%.2fs", s.DurationSeconds),
		fmt.Sprintf("%.2f qps", s.ThroughputQPS),
	)
	fmt.Fprintln(tw)
}

func writeLatencyTable(tw *tabwriter.Writer, doc *Document) {
	s := doc.Summary
	p := doc.Statistics.Percentiles
	fmt.Fprintf(tw, "Latency (successful executions)\n\n")
	writeHeader(tw, "Min", "p50", "p90", "p95", "p99", "p99.9", "Max", "Mean", "Stddev", "CV")
	writeRow(tw,
		fmtMs(s.MinMs),
		fmtMs(p["p50"]),
		fmtMs(p["p90"]),
		fmtMs(p["p95"]),
		fmtMs(p["p99"]),
		fmtMs(p["p99.9"]),
		fmtMs(s.MaxMs),
		fmtMs(s.AvgMs),
		fmtMs(s.StddevMs),
		fmt.Sprintf("%.3f", s.CV),
	)
	fmt.Fprintln(tw)
}

func writeDistributionTable(tw *tabwriter.Writer, doc *Document) {
	fmt.Fprintf(tw, "Latency Distribution\n\n")
	writeHeader(tw, "Bucket", "Count", "Share")
	total := doc.LatencyDistribution.Total()
	for _, b := range doc.LatencyDistribution {
		share := 0.0
		if total > 0 {
			share = float64(b.Count) / float64(total) * 100
		}
		writeRow(tw, b.Label, fmt.Sprintf("%d", b.Count), fmt.Sprintf("%.1f%%", share))
	}
	fmt.Fprintln(tw)
}

func writeAnalysisTable(tw *tabwriter.Writer, doc *Document) {
	a := doc.Statistics.Analysis
	fmt.Fprintf(tw, "Statistical Analysis (n=%d)\n\n", a.SampleSize)
	writeHeader(tw, "Metric", "Value")

	mode := "-"
	if a.Mode != nil {
		mode = fmtMs(*a.Mode)
	}
	writeRow(tw, "Median", fmtMs(a.Median))
	writeRow(tw, "Mode", mode)
	writeRow(tw, "Variance", fmt.Sprintf("%.4f", a.Variance))
	writeRow(tw, "Skewness", fmt.Sprintf("%.4f", a.Skewness))
	writeRow(tw, "Kurtosis", fmt.Sprintf("%.4f", a.Kurtosis))
	writeRow(tw, "95% CI", fmt.Sprintf("[%s, %s]", fmtMs(a.CI95.Lower), fmtMs(a.CI95.Upper)))
	writeRow(tw, "99% CI", fmt.Sprintf("[%s, %s]", fmtMs(a.CI99.Lower), fmtMs(a.CI99.Upper)))
	writeRow(tw, "IQR", fmtMs(a.IQR))
	writeRow(tw, "MAD", fmtMs(a.MAD))
	writeRow(tw, "Outliers", fmt.Sprintf("%d", len(a.Outliers)))
	writeRow(tw, "CV", fmtCV(a.CV))
	writeRow(tw, "Normality", fmt.Sprintf("%s p=%.4f normal=%t", a.Normality.Test, a.Normality.PValue, a.Normality.IsNormal))
	fmt.Fprintln(tw)
}

func writeErrorTable(tw *tabwriter.Writer, doc *Document) {
	fmt.Fprintf(tw, "Errors\n\n")
	writeHeader(tw, "Count", "Error")

	msgs := make([]string, 0, len(doc.Statistics.Errors))
	for msg := range doc.Statistics.Errors {
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		ci, cj := doc.Statistics.Errors[msgs[i]], doc.Statistics.Errors[msgs[j]]
		if ci != cj {
			return ci > cj
		}
		return msgs[i] < msgs[j]
	})
	for _, msg := range msgs {
		writeRow(tw, fmt.Sprintf("%d", doc.Statistics.Errors[msg]), msg)
	}
	fmt.Fprintln(tw)
}

func writePhaseTable(tw *tabwriter.Writer, doc *Document) {
	fmt.Fprintf(tw, "Phases\n\n")
	writeHeader(tw, "Phase", "Concurrency", "Runs", "Duration")
	for _, ph := range doc.Phases {
		writeRow(tw,
			ph.Name,
			fmt.Sprintf("%d", ph.Concurrency),
			fmt.Sprintf("%d", ph.Runs),
			fmt.Sprintf("%.2fs", ph.End.Sub(ph.Start).Seconds()),
		)
	}
	fmt.Fprintln(tw)
}

func writeResourceTable(tw *tabwriter.Writer, doc *Document) {
	r := doc.Resources
	fmt.Fprintf(tw, "Resources (%d samples)\n\n", r.Samples)
	writeHeader(tw, "Metric", "Min", "Max", "Avg")
	rows := []struct {
		name string
		min  float64
		max  float64
		avg  float64
	}{
		{"CPU %", r.CPUPercent.Min, r.CPUPercent.Max, r.CPUPercent.Avg},
		{"Memory %", r.MemoryPercent.Min, r.MemoryPercent.Max, r.MemoryPercent.Avg},
		{"Memory used MB", r.MemoryUsedMB.Min, r.MemoryUsedMB.Max, r.MemoryUsedMB.Avg},
		{"Disk read MB", r.DiskReadMB.Min, r.DiskReadMB.Max, r.DiskReadMB.Avg},
		{"Disk write MB", r.DiskWriteMB.Min, r.DiskWriteMB.Max, r.DiskWriteMB.Avg},
		{"Net sent MB", r.NetworkSentMB.Min, r.NetworkSentMB.Max, r.NetworkSentMB.Avg},
		{"Net recv MB", r.NetworkRecvMB.Min, r.NetworkRecvMB.Max, r.NetworkRecvMB.Avg},
	}
	for _, row := range rows {
		writeRow(tw, row.name, fmt.Sprintf("%.2f", row.min), fmt.Sprintf("%.2f", row.max), fmt.Sprintf("%.2f", row.avg))
	}
	fmt.Fprintln(tw)
}

func fmtMs(ms float64) string {
	if ms == 0 {
		return "-"
	}
	if ms < 1 {
		return fmt.Sprintf("%.1fµs", ms*1000)
	}
	if ms < 1000 {
		return fmt.Sprintf("%.2fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

func fmtCV(cv float64) string {
	if math.IsInf(cv, 0) {
		return "inf"
	}
	return fmt.Sprintf("%.3f", cv)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
