package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// TimeoutMiddleware cancels the request context after timeout. Handlers
// are expected to observe ctx.Done().
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PanicError is a recovered panic. Source is the file:line of the panic
// site.
type PanicError struct {
	Value  any
	Source string
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// RecoverMiddleware turns a panic into a *PanicError handed to onPanic,
// which is then responsible for logging it. Without onPanic the panic is
// logged here and answered with a bare 500. http.ErrAbortHandler is
// re-raised.
func RecoverMiddleware(logger *slog.Logger, onPanic func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err := &PanicError{
					Value:  rec,
					Source: panicSource(),
					Stack:  string(debug.Stack()),
				}

				if onPanic == nil {
					logger.Error("panic recovered",
						slog.String("request_id", GetRequestID(r.Context())),
						slog.String("error", err.Error()),
						slog.String("err_source", err.Source),
						slog.String("stack", err.Stack),
					)
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				onPanic(w, r, err)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// panicSource returns the first frame below runtime.gopanic, which is
// where the panic was raised. It must be called from the deferred
// function that recovered.
func panicSource() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	inPanic := false
	for {
		frame, more := frames.Next()
		if frame.Function == "runtime.gopanic" {
			inPanic = true
		} else if inPanic && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if !more {
			return ""
		}
	}
}
