// Package api exposes benchmark progress and results over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/archive"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/runner"
	"github.com/DjordjeVuckovic/pgbench/pkg/pagination"
	"github.com/DjordjeVuckovic/pgbench/pkg/server"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 2 * time.Second

type StatusSource interface {
	Status() runner.Status
}

// RunStore is the read side of the run archive.
type RunStore interface {
	List(ctx context.Context, limit, offset int) ([]archive.RunRecord, error)
	Count(ctx context.Context) (int64, error)
	Load(ctx context.Context, id string) (*report.Document, error)
}

type Handler struct {
	health server.HealthChecker
	runs   RunStore

	mu     sync.RWMutex
	source StatusSource
	last   *report.Document
}

type Option func(*Handler)

func WithHealthChecker(hc server.HealthChecker) Option {
	return func(h *Handler) { h.health = hc }
}

func WithRunStore(rs RunStore) Option {
	return func(h *Handler) { h.runs = rs }
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{health: server.NewOkHealthChecker()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach makes src the benchmark reported by /status.
func (h *Handler) Attach(src StatusSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = src
}

// Publish replaces the document served by /result.
func (h *Handler) Publish(doc *report.Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = doc
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/status", h.Status)
	e.GET("/result", h.Result)

	runs := e.Group("/runs")
	runs.GET("", h.ListRuns)
	runs.GET("/:id", h.GetRun)
}

func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if !h.health.Healthy(ctx) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Status(c echo.Context) error {
	h.mu.RLock()
	src := h.source
	h.mu.RUnlock()

	if src == nil {
		return apperr.NewInvalidState("no benchmark attached")
	}
	return c.JSON(http.StatusOK, src.Status())
}

func (h *Handler) Result(c echo.Context) error {
	h.mu.RLock()
	doc := h.last
	h.mu.RUnlock()

	if doc == nil {
		return apperr.New(apperr.KindInsufficientData, "no result available yet")
	}
	return writeDocument(c, doc)
}

func (h *Handler) ListRuns(c echo.Context) error {
	if h.runs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run archive is not enabled")
	}

	var req pagination.OffsetRequest
	for name, dst := range map[string]*int{"page": &req.Page, "size": &req.Size} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperr.Newf(apperr.KindConfiguration, "%s must be an integer", name)
		}
		*dst = n
	}
	req.Normalize()

	ctx := c.Request().Context()
	total, err := h.runs.Count(ctx)
	if err != nil {
		return err
	}
	records, err := h.runs.List(ctx, req.Size, req.Offset())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewOffsetResult(records, total, req))
}

func (h *Handler) GetRun(c echo.Context) error {
	if h.runs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run archive is not enabled")
	}

	doc, err := h.runs.Load(c.Request().Context(), c.Param("id"))
	if errors.Is(err, archive.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return writeDocument(c, doc)
}

// writeDocument uses the report encoder so bucket labels match the exported files.
func writeDocument(c echo.Context, doc *report.Document) error {
	data, err := report.Marshal(doc)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, data)
}
