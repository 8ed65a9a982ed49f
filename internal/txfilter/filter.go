// Package txfilter runs an HTTP request inside one database transaction.
//
// A Filter hooks three points of the request pipeline:
//
//   - OnEntry begins the transaction and publishes it in the request Items.
//   - OnExit runs the rest of the pipeline and commits once it succeeded.
//   - OnError rolls back and disposes a still-active transaction.
//
// OnExit and OnError are mutually exclusive for one request. Middleware and
// Handle drive the three hooks for net/http handlers.
package txfilter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/errs"
	"reqtx/internal/ports"
	"reqtx/internal/reqctx"
)

const tracerName = "reqtx/internal/txfilter"

var (
	ErrSessionRequired = errors.New("transaction filter requires a session")
	ErrItemsRequired   = errors.New("request items are required")
	ErrTransactionOpen = errors.New("request already has a transaction")
	ErrNilTransaction  = errors.New("session returned a nil transaction")
)

// CommitError reports that the pipeline succeeded but the commit did not.
// The filter does not roll back after a failed commit.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return "commit transaction: " + e.Err.Error() }
func (e *CommitError) Unwrap() error { return e.Err }

type Filter struct {
	session ports.Session
	opts    Options
	tracer  trace.Tracer
	now     func() time.Time
}

func New(session ports.Session, opts ...Option) *Filter {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	tp := o.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Filter{
		session: session,
		opts:    o,
		tracer:  tp.Tracer(tracerName),
		now:     time.Now,
	}
}

func (f *Filter) Options() Options {
	return f.opts
}

// lifecycle is the filter's private slot in the request Items.
type lifecycle struct {
	startedAt time.Time
	span      trace.Span
	ended     bool
}

func (l *lifecycle) end(outcome string, err error) {
	if l == nil || l.ended {
		return
	}
	l.ended = true

	l.span.SetAttributes(attribute.String("reqtx.outcome", outcome))
	if err != nil {
		l.span.RecordError(err)
		l.span.SetStatus(codes.Error, outcome)
	} else {
		l.span.SetStatus(codes.Ok, "")
	}
	l.span.End()
}

// OnEntry begins a transaction with the configured isolation level and stores
// the session and the transaction in items. The returned context carries the
// transaction span and must be used for the rest of the pipeline. Errors from
// the session are returned to the caller.
func (f *Filter) OnEntry(ctx context.Context, items *reqctx.Items) (context.Context, error) {
	if items == nil {
		return ctx, ErrItemsRequired
	}
	if f.session == nil {
		return ctx, ErrSessionRequired
	}
	if _, ok := reqctx.Get[ports.Transaction](items); ok {
		return ctx, ErrTransactionOpen
	}

	isolation := f.opts.IsolationLevel.String()
	ctx, span := f.tracer.Start(ctx, "db.transaction",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("db.transaction.isolation_level", isolation)),
	)
	state := &lifecycle{startedAt: f.now(), span: span}
	reqctx.Set(items, state)

	logCtx := f.logContext(ctx, items)
	logging.Info(logCtx, "beginning transaction", slog.String("isolation_level", isolation))

	reqctx.Set(items, f.session)
	tx, err := f.session.BeginTransaction(ctx, f.opts.IsolationLevel)
	if err == nil && tx == nil {
		err = ErrNilTransaction
	}
	if err != nil {
		f.opts.Metrics.count(outcomeBeginFailed, isolation)
		state.end(outcomeBeginFailed, err)
		return ctx, errs.Wrap(err, "begin transaction")
	}

	reqctx.Set(items, tx)
	f.opts.Metrics.count(outcomeBegun, isolation)
	return ctx, nil
}

// OnExit runs proceed and commits the request transaction if proceed
// succeeded. An error from proceed is returned untouched and nothing is
// committed; the caller is expected to hand it to OnError. A commit failure is
// returned as *CommitError.
func (f *Filter) OnExit(ctx context.Context, items *reqctx.Items, proceed func(context.Context) error) error {
	if proceed != nil {
		if err := proceed(ctx); err != nil {
			return err
		}
	}

	tx, ok := reqctx.Get[ports.Transaction](items)
	if !ok {
		return nil
	}

	state, _ := reqctx.Get[*lifecycle](items)
	logCtx := f.logContext(ctx, items)
	isolation := f.opts.IsolationLevel.String()

	if err := tx.Commit(ctx); err != nil {
		elapsed := f.elapsed(state)
		logging.Error(logCtx, "commit transaction failed",
			slog.Int64("elapsed_ms", elapsed.Milliseconds()),
			slog.Any("err", errs.Loggable(err)),
		)
		f.opts.Metrics.observe(outcomeCommitFailed, isolation, elapsed)
		state.end(outcomeCommitFailed, err)
		return &CommitError{Err: err}
	}

	elapsed := f.elapsed(state)
	logging.Info(logCtx, "transaction committed", slog.Int64("elapsed_ms", elapsed.Milliseconds()))
	f.opts.Metrics.observe(outcomeCommitted, isolation, elapsed)
	state.end(outcomeCommitted, nil)
	return nil
}

// OnError rolls back and disposes the request transaction when it is still
// active. Failures while rolling back are logged and swallowed so that cause
// stays the error the caller sees.
//
// A cause of ErrTransactionOpen means OnEntry refused to begin, so the open
// transaction belongs to another filter and is left alone.
func (f *Filter) OnError(ctx context.Context, items *reqctx.Items, cause error) {
	logCtx := f.logContext(ctx, items)
	if errors.Is(cause, ErrTransactionOpen) {
		logging.Warn(logCtx, "transaction owned by another filter, not rolling back", slog.Any("err", errs.Loggable(cause)))
		return
	}

	logging.Warn(logCtx, "error occurred, rolling back transaction", slog.Any("err", errs.Loggable(cause)))

	state, _ := reqctx.Get[*lifecycle](items)
	tx, ok := reqctx.Get[ports.Transaction](items)
	if !ok || !tx.IsActive() {
		state.end(outcomeRollbackSkipped, cause)
		return
	}

	isolation := f.opts.IsolationLevel.String()
	if err := f.rollback(ctx, tx); err != nil {
		elapsed := f.elapsed(state)
		logging.Error(logCtx, "rollback transaction failed",
			slog.Int64("elapsed_ms", elapsed.Milliseconds()),
			slog.Any("err", errs.Loggable(err)),
		)
		f.opts.Metrics.observe(outcomeRollbackFailed, isolation, elapsed)
		state.end(outcomeRollbackFailed, errors.Join(cause, err))
		return
	}

	elapsed := f.elapsed(state)
	logging.Info(logCtx, "transaction rolled back", slog.Int64("elapsed_ms", elapsed.Milliseconds()))
	f.opts.Metrics.observe(outcomeRolledBack, isolation, elapsed)
	state.end(outcomeRolledBack, cause)
}

func (f *Filter) rollback(ctx context.Context, tx ports.Transaction) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic during rollback: %w", errs.Recovered(v))
		}
	}()

	// The request may already be cancelled; the rollback still has to run.
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		return errs.Wrap(err, "rollback")
	}
	if err := tx.Dispose(); err != nil {
		return errs.Wrap(err, "dispose")
	}
	return nil
}

func (f *Filter) elapsed(state *lifecycle) time.Duration {
	if state == nil {
		return 0
	}
	return f.now().Sub(state.startedAt)
}

func (f *Filter) logContext(ctx context.Context, items *reqctx.Items) context.Context {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "txfilter"))
	if f.opts.LogRequestURL {
		if info, ok := reqctx.Get[reqctx.RequestInfo](items); ok && info.URL != "" {
			logCtx = logging.WithAttrs(logCtx, slog.String("url", info.URL))
		}
	}
	return logging.WithTelemetry(logCtx)
}
