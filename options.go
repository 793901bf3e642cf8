package ecstore

import "github.com/neketka/ecstore/internal/pool"

type options struct {
	pool    *pool.Pool
	logger  *Logger
	metrics MetricsCollector
}

// Option configures Storage construction.
type Option func(*options)

// WithPool binds the storage to a private block pool instead of the
// process-wide one.
func WithPool(p *Pool) Option {
	return func(o *options) {
		if p != nil {
			o.pool = p.inner
		}
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}
