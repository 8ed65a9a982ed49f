package txfilter

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"reqtx/internal/domain/transaction"
)

// ErrorWriter renders the response for a request whose pipeline failed.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Options is the per-endpoint configuration of a Filter. The zero value
// begins ReadCommitted transactions and logs without the request URL.
type Options struct {
	IsolationLevel transaction.IsolationLevel
	// LogRequestURL adds the request URL to every lifecycle log line.
	LogRequestURL bool
	// RollbackOnServerError treats a handler that responds with a 5xx status
	// as failed even if it returned no error.
	RollbackOnServerError bool
	ErrorWriter           ErrorWriter
	Metrics               *Metrics
	TracerProvider        trace.TracerProvider
}

type Option func(*Options)

func WithIsolationLevel(level transaction.IsolationLevel) Option {
	return func(o *Options) { o.IsolationLevel = level }
}

func WithRequestURLLogging(enabled bool) Option {
	return func(o *Options) { o.LogRequestURL = enabled }
}

func WithRollbackOnServerError(enabled bool) Option {
	return func(o *Options) { o.RollbackOnServerError = enabled }
}

func WithErrorWriter(w ErrorWriter) Option {
	return func(o *Options) { o.ErrorWriter = w }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) { o.TracerProvider = tp }
}
