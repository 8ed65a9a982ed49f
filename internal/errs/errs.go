package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// Recovered turns a value returned by recover() into an error carrying the
// stack of the panicking goroutine. It must be called from the deferred
// function that recovered, otherwise the stack points elsewhere.
func Recovered(v any) error {
	if v == nil {
		return nil
	}

	var cause error
	switch val := v.(type) {
	case error:
		cause = val
	default:
		cause = fmt.Errorf("%v", val)
	}

	return &StackError{
		err:       cause,
		stack:     debug.Stack(),
		recovered: v,
	}
}

// StackError wraps an error and stores a stack trace.
type StackError struct {
	err       error
	stack     []byte
	recovered any
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// PanicValue returns the original value passed to panic, if the error was
// built by Recovered.
func (e *StackError) PanicValue() (any, bool) {
	return e.recovered, e.recovered != nil
}

// LogValue makes slog encode the error as structured fields.
// Usage: slog.Any("err", errs.Loggable(err))
type loggable struct{ err error }

func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}

	var se *StackError
	if errors.As(l.err, &se) {
		if _, ok := se.PanicValue(); ok {
			attrs = append(attrs, slog.Bool("panic", true))
		}
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}

	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, e.Error())
	}
	return out
}
