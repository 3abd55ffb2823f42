package runner

import (
	"log/slog"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/pool"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/suite"
)

// ProgressFunc is called after each measured execution is recorded.
type ProgressFunc func(completed, total int)

type Option func(*options)

type options struct {
	retryBaseDelay     time.Duration
	acquireRetryDelay  time.Duration
	livenessInterval   time.Duration
	stallTimeout       time.Duration
	allowOversubscribe bool
	listeners          []Listener
	progress           ProgressFunc
	formatter          *suite.Formatter
	logger             *slog.Logger
}

func defaultOptions() options {
	return options{
		retryBaseDelay:    DefaultRetryBaseDelay,
		acquireRetryDelay: pool.DefaultRetryDelay,
		livenessInterval:  DefaultLivenessInterval,
		logger:            slog.Default(),
	}
}

// WithRetryBaseDelay sets the linear backoff unit: attempt n waits n times d.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *options) { o.retryBaseDelay = d }
}

func WithAcquireRetryDelay(d time.Duration) Option {
	return func(o *options) { o.acquireRetryDelay = d }
}

func WithListener(l Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithFormatter supplies placeholder providers and static values.
func WithFormatter(f *suite.Formatter) Option {
	return func(o *options) { o.formatter = f }
}

func WithLivenessInterval(d time.Duration) Option {
	return func(o *options) { o.livenessInterval = d }
}

// WithStallTimeout cancels a parallel run whose workers produce nothing for d. Zero disables it.
func WithStallTimeout(d time.Duration) Option {
	return func(o *options) { o.stallTimeout = d }
}

// WithOversubscribe allows more parallel workers than CPUs.
func WithOversubscribe() Option {
	return func(o *options) { o.allowOversubscribe = true }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ResolveFormatter returns the formatter a strategy built with opts would use.
func ResolveFormatter(opts ...Option) *suite.Formatter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.formatter == nil {
		return suite.NewFormatter()
	}
	return o.formatter
}

func (o options) poolConfig(size int) pool.Config {
	cfg := pool.DefaultConfig(size)
	cfg.RetryDelay = o.acquireRetryDelay
	return cfg
}
