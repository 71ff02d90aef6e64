// Package server holds the HTTP server and the middleware stack every
// request passes through before dispatch.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures New.
type Options struct {
	Port    int
	Timeout time.Duration
	Logger  *slog.Logger

	// OnPanic writes the response for a recovered panic
	OnPanic func(w http.ResponseWriter, r *http.Request, err error)

	// Tracing wraps handlers with OpenTelemetry instrumentation
	Tracing bool
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	if opts.Timeout > 0 {
		r.Use(TimeoutMiddleware(opts.Timeout))
	}
	r.Use(RecoverMiddleware(logger, opts.OnPanic))
	r.Use(middleware.StripSlashes)

	if opts.Tracing {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "spynl",
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				}))
		})
	}

	return &Server{
		Router: r,
		Port:   opts.Port,
		logger: logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.http.Shutdown(ctx)
}
