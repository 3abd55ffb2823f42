package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/DjordjeVuckovic/pgbench/internal/api"
	"github.com/DjordjeVuckovic/pgbench/internal/api/server"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/archive"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	"github.com/DjordjeVuckovic/pgbench/internal/config"
	"github.com/DjordjeVuckovic/pgbench/internal/storage/pg"
	pkgserver "github.com/DjordjeVuckovic/pgbench/pkg/server"
	"github.com/labstack/echo/v4"
)

// emit writes doc to stdout and to every configured sink. Sink failures are
// collected so that one broken destination does not hide the others.
// The archive always receives the raw executions; the other sinks only when
// include_executions is set.
func emit(ctx context.Context, cfg *config.Config, doc *report.Document, status *statusServer) error {
	out := doc
	if !cfg.Output.IncludeExecutions {
		trimmed := *doc
		trimmed.Executions = nil
		out = &trimmed
	}

	switch cfg.Output.Format {
	case config.FormatJSON:
		if err := report.EncodeJSON(out, os.Stdout); err != nil {
			return err
		}
	default:
		report.WriteTable(out, os.Stdout)
	}

	var failed []error
	if cfg.Output.Path != "" {
		if err := report.WriteJSON(out, cfg.Output.Path); err != nil {
			failed = append(failed, err)
		} else {
			slog.Info("Report written", "path", cfg.Output.Path)
		}
	}

	if cfg.Archive != "" {
		if err := archiveDocument(ctx, cfg.Archive, doc); err != nil {
			failed = append(failed, err)
		} else {
			slog.Info("Run archived", "path", cfg.Archive, "id", doc.Metadata.ID)
		}
	}

	if cfg.S3 != nil && cfg.S3.Bucket != "" {
		u, err := report.NewS3Uploader(ctx, *cfg.S3)
		if err == nil {
			var key string
			key, err = u.Upload(ctx, out)
			if err == nil {
				slog.Info("Report uploaded", "bucket", cfg.S3.Bucket, "key", key)
			}
		}
		if err != nil {
			failed = append(failed, err)
		}
	}

	if status != nil {
		status.handler.Publish(out)
	}

	if len(failed) > 0 {
		for _, err := range failed {
			slog.Error("Failed to export report", "error", err)
		}
		return fmt.Errorf("%d report export(s) failed: %w", len(failed), failed[0])
	}
	return nil
}

func archiveDocument(ctx context.Context, path string, doc *report.Document) error {
	a, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Save(ctx, doc)
}

type statusServer struct {
	handler *api.Handler
	done    chan error
}

// startStatusServer serves /status for src until ctx ends. It returns nil when the API is disabled.
func startStatusServer(ctx context.Context, cfg *config.Config, src api.StatusSource, w *workload) (*statusServer, error) {
	if !cfg.API.Enabled {
		return nil, nil
	}
	if err := cfg.API.Validate(); err != nil {
		return nil, err
	}

	opts := []api.Option{}
	if p := w.healthPinger(); p != nil {
		opts = append(opts, api.WithHealthChecker(pkgserver.Checkers{pg.NewHealthChecker(p)}))
	}
	if cfg.Archive != "" {
		a, err := archive.Open(cfg.Archive)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			a.Close()
		}()
		opts = append(opts, api.WithRunStore(a))
	}

	h := api.NewHandler(opts...)
	h.Attach(src)

	s := server.NewServer(echo.New(), cfg.API.Config)
	h.Register(s.Echo)

	st := &statusServer{handler: h, done: make(chan error, 1)}
	go func() { st.done <- s.Start(ctx) }()
	return st, nil
}

// wait blocks until the server stops. The server stops when its context ends.
func (s *statusServer) wait() {
	if s == nil {
		return
	}
	if err := <-s.done; err != nil {
		slog.Error("Status server failed", "error", err)
	}
}
