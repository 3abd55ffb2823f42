package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/api/server"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/archive"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/pkg/pagination"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStatus runner.Status

func (f fixedStatus) Status() runner.Status { return runner.Status(f) }

type unhealthy struct{}

func (unhealthy) Healthy(context.Context) bool { return false }

func newTestServer(h *Handler) *echo.Echo {
	s := server.NewServer(echo.New(), server.DefaultConfig())
	h.Register(s.Echo)
	return s.Echo
}

func get(t *testing.T, e *echo.Echo, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sampleDoc(t *testing.T) *report.Document {
	t.Helper()
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	var execs []metrics.QueryExecution
	for i := 0; i < 5; i++ {
		execs = append(execs, metrics.QueryExecution{RunID: i, StartTime: start, Duration: time.Duration(i+1) * time.Millisecond, Success: true, Attempts: 1})
	}
	doc, err := report.Generate(metrics.NewResult(execs, start, start.Add(time.Second)), report.Options{Strategy: "parallel", IncludeExecutions: true})
	require.NoError(t, err)
	return doc
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(NewHandler()), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, newTestServer(NewHandler(WithHealthChecker(unhealthy{}))), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	h := NewHandler()
	e := newTestServer(h)

	rec := get(t, e, "/status")
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.Attach(fixedStatus{Strategy: "sequential", Running: true, Completed: 3, Total: 10})
	rec = get(t, e, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st runner.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "sequential", st.Strategy)
	assert.True(t, st.Running)
	assert.Equal(t, 3, st.Completed)
}

func TestResult(t *testing.T) {
	h := NewHandler()
	e := newTestServer(h)

	rec := get(t, e, "/result")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	doc := sampleDoc(t)
	h.Publish(doc)
	rec = get(t, e, "/result")
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, doc.Summary, got.Summary)
	assert.Equal(t, doc.Metadata.ID, got.Metadata.ID)
	assert.Contains(t, rec.Body.String(), `"<1ms"`)
}

func TestRuns(t *testing.T) {
	a, err := archive.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	doc := sampleDoc(t)
	require.NoError(t, a.Save(context.Background(), doc))

	e := newTestServer(NewHandler(WithRunStore(a)))

	rec := get(t, e, "/runs?page=1&size=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var page pagination.OffsetResult[archive.RunRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, doc.Metadata.ID, page.Items[0].ID)
	assert.Equal(t, int64(1), page.Total)
	assert.False(t, page.HasMore)

	rec = get(t, e, "/runs/"+doc.Metadata.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var got report.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Executions, 5)

	assert.Equal(t, http.StatusNotFound, get(t, e, "/runs/unknown").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/runs?size=zero").Code)
}

func TestRuns_WithoutArchive(t *testing.T) {
	e := newTestServer(NewHandler())
	assert.Equal(t, http.StatusNotFound, get(t, e, "/runs").Code)
}
