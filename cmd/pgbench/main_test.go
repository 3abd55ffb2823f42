package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/archive"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestRunAndAnalyze_SQLite(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end CLI run")
	}
	t.Setenv("ENV_PATH", "")
	dir := t.TempDir()
	db := filepath.Join(dir, "target.db")
	out := filepath.Join(dir, "result.json")
	store := filepath.Join(dir, "runs.db")

	rootCmd.SetArgs([]string{
		"run",
		"--driver", "sqlite",
		"--dsn", db,
		"-q", "SELECT 1",
		"--runs", "12",
		"--warmup", "2",
		"--strategy", "parallel",
		"--workers", "3",
		"--progress=false",
		"--include-executions",
		"--format", "json",
		"-o", out,
		"--archive", store,
		"--log-level", "error",
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	doc, err := report.ReadJSON(out)
	require.NoError(t, err)
	assert.Equal(t, 12, doc.Summary.Total)
	assert.Equal(t, 12, doc.Summary.Successful)
	assert.Equal(t, "parallel", doc.Metadata.Strategy)
	assert.Len(t, doc.Executions, 12)

	a, err := archive.Open(store)
	require.NoError(t, err)
	defer a.Close()
	archived, err := a.Load(context.Background(), doc.Metadata.ID)
	require.NoError(t, err)
	assert.Len(t, archived.Executions, 12)

	merged := filepath.Join(dir, "merged.json")
	rootCmd.SetArgs([]string{"analyze", out, out, "-o", merged, "--format", "json", "--log-level", "error"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	combined, err := report.ReadJSON(merged)
	require.NoError(t, err)
	assert.Equal(t, 24, combined.Summary.Total)
	require.NotNil(t, combined.Statistics.Analysis)
}
