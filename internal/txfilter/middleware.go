package txfilter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/errs"
	"reqtx/internal/ports"
	"reqtx/internal/reqctx"
)

// HandlerFunc is an HTTP handler that reports failure by returning an error.
// A returned error rolls the request transaction back.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// StatusError marks a response the handler completed with a server error status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("handler responded with status %d", e.Code)
}

// Middleware wraps next so that it runs inside a transaction. A panic in next
// rolls the transaction back and is re-raised afterwards.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return f.Handle(func(w http.ResponseWriter, r *http.Request) error {
		next.ServeHTTP(w, r)
		return nil
	})
}

// Handle runs h inside a transaction.
//
// The response written by h is buffered and only sent after the commit went
// through, so a failed commit still turns into an error response. On the error
// path the buffered response is dropped and the ErrorWriter renders err,
// except for a StatusError where the handler's own response is sent.
//
// When the request already runs inside a transaction opened by an outer
// filter, h joins it: nothing is begun, committed or rolled back here, and an
// error from h is handed to the outer filter, which rolls back.
func (f *Filter) Handle(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items, ctx := reqctx.Ensure(r.Context())
		if _, ok := reqctx.Get[ports.Transaction](items); ok {
			f.join(w, r.WithContext(ctx), items, h)
			return
		}
		reqctx.Set(items, reqctx.RequestInfo{Method: r.Method, URL: displayURL(r)})

		ctx, err := f.OnEntry(ctx, items)
		r = r.WithContext(ctx)
		if err != nil {
			f.OnError(ctx, items, err)
			f.writeError(w, r, err)
			return
		}

		buf := newBufferedResponse()
		err = f.OnExit(ctx, items, func(context.Context) (runErr error) {
			defer func() {
				if v := recover(); v != nil {
					runErr = errs.Recovered(v)
				}
			}()

			if err := h(buf, r); err != nil {
				return err
			}
			if joined, ok := reqctx.Get[joinedFailure](items); ok {
				return joined.err
			}
			if f.opts.RollbackOnServerError && buf.status() >= http.StatusInternalServerError {
				return &StatusError{Code: buf.status()}
			}
			return nil
		})

		var commitErr *CommitError
		switch {
		case err == nil:
			buf.flushTo(w)
		case errors.As(err, &commitErr):
			f.writeError(w, r, err)
		default:
			f.OnError(ctx, items, err)
			if v, ok := panicValue(err); ok {
				panic(v)
			}

			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				buf.flushTo(w)
				return
			}
			f.writeError(w, r, err)
		}
	})
}

// joinedFailure records the error of a handler that ran inside an outer
// filter's transaction.
type joinedFailure struct {
	err error
}

func (f *Filter) join(w http.ResponseWriter, r *http.Request, items *reqctx.Items, h HandlerFunc) {
	logging.Debug(f.logContext(r.Context(), items), "joining request transaction")

	if err := h(w, r); err != nil {
		if _, ok := reqctx.Get[joinedFailure](items); !ok {
			reqctx.Set(items, joinedFailure{err: err})
		}
		f.writeError(w, r, err)
	}
}

func panicValue(err error) (any, bool) {
	var se *errs.StackError
	if !errors.As(err, &se) {
		return nil, false
	}
	return se.PanicValue()
}

func (f *Filter) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if f.opts.ErrorWriter != nil {
		f.opts.ErrorWriter(w, r, err)
		return
	}
	WriteJSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

type errorResponse struct {
	Error string `json:"error"`
}

func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func displayURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// bufferedResponse holds a handler's response until the transaction outcome
// is known. Streaming (http.Flusher) is not supported.
type bufferedResponse struct {
	header      http.Header
	code        int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.code = code
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) status() int {
	if !b.wroteHeader {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	w.WriteHeader(b.status())
	_, _ = w.Write(b.body.Bytes())
}
