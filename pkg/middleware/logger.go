package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type LoggerOpts func(*loggerOptions)

type loggerOptions struct {
	logger *slog.Logger
	skip   map[string]bool
}

// WithSlogLogger sends request logs to l instead of slog.Default.
func WithSlogLogger(l *slog.Logger) LoggerOpts {
	return func(o *loggerOptions) { o.logger = l }
}

// WithSkipPaths logs nothing for successful requests to the given paths.
func WithSkipPaths(paths ...string) LoggerOpts {
	return func(o *loggerOptions) {
		for _, p := range paths {
			o.skip[p] = true
		}
	}
}

func Logger(opts ...LoggerOpts) echo.MiddlewareFunc {
	o := loggerOptions{skip: map[string]bool{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return middleware.RequestLoggerWithConfig(requestLoggerConfig(o))
}

func requestLoggerConfig(o loggerOptions) middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogLatency:  true,
		LogURI:      true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				if o.skip[c.Path()] {
					return nil
				}
				o.logger.LogAttrs(ctx, slog.LevelInfo, "REQUEST",
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency),
				)
			} else {
				o.logger.LogAttrs(ctx, slog.LevelError, "REQUEST_ERROR",
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.String("err", v.Error.Error()),
				)
			}
			return nil
		},
	}
}
