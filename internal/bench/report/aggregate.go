package report

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/analysis"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/monitor"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/stress"
)

type Options struct {
	Strategy          string
	SQL               string
	Engine            EngineInfo
	IncludeExecutions bool
	// Analyze adds the statistical summary when there are enough samples.
	Analyze   bool
	Resources *monitor.Summary
	Phases    []stress.Phase
}

// Generate builds the export document for r. It fails only when analysis was
// requested and could not run for a reason other than too few samples.
func Generate(r *metrics.BenchmarkResult, opts Options) (*Document, error) {
	doc := &Document{
		Summary: Summary{
			Total:           r.TotalRuns,
			Successful:      r.SuccessfulRuns,
			Failed:          r.FailedRuns,
			SuccessRate:     r.SuccessRate(),
			DurationSeconds: r.Elapsed().Seconds(),
			MinMs:           r.MinMs,
			MaxMs:           r.MaxMs,
			AvgMs:           r.AvgMs,
			MedianMs:        r.MedianMs,
			StddevMs:        r.StddevMs,
			CV:              r.CV,
			ThroughputQPS:   r.ThroughputQPS,
		},
		Statistics: Statistics{
			Percentiles: r.Percentiles,
		},
		LatencyDistribution: r.LatencyDistribution,
		Metadata: Metadata{
			ID:          r.ID.String(),
			Version:     Version,
			Timestamp:   time.Now().UTC(),
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			Strategy:    opts.Strategy,
			SQL:         opts.SQL,
			Engine:      opts.Engine,
			Environment: NewEnvironmentInfo(),
		},
		Resources: opts.Resources,
		Phases:    opts.Phases,
	}
	doc.Metadata.Engine.Connection = RedactDSN(opts.Engine.Connection)

	if errs := r.Errors(); len(errs) > 0 {
		doc.Statistics.Errors = errs
	}
	if opts.IncludeExecutions {
		doc.Executions = r.Executions
	}

	if opts.Analyze {
		s, err := analysis.Analyze(r)
		switch {
		case err == nil:
			doc.Statistics.Analysis = s
			doc.Statistics.ConfidenceIntervals = map[string]analysis.ConfidenceInterval{
				"95": s.CI95,
				"99": s.CI99,
			}
		case errors.Is(err, apperr.ErrInsufficientData):
		default:
			return nil, err
		}
	}
	return doc, nil
}

// Result rebuilds a BenchmarkResult from the raw executions of a document.
func (d *Document) Result() (*metrics.BenchmarkResult, error) {
	if len(d.Executions) == 0 && d.Summary.Total > 0 {
		return nil, apperr.New(apperr.KindInsufficientData, "document has no raw executions")
	}
	return metrics.NewResult(d.Executions, d.Metadata.StartTime, d.Metadata.EndTime), nil
}

var (
	userinfoPassword = regexp.MustCompile(`^([^:@/]+):[^@]*@`)
	kvPassword       = regexp.MustCompile(`(?i)(password=)(\S+)`)
)

// RedactDSN hides the password of a URL, key/value or user:pass@ style DSN.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil {
			return u.Redacted()
		}
	}
	if kvPassword.MatchString(dsn) {
		return kvPassword.ReplaceAllString(dsn, "${1}xxxxx")
	}
	return userinfoPassword.ReplaceAllString(dsn, "${1}:xxxxx@")
}
