// Package runtime provides the App composition root: it loads plugins,
// mounts their endpoints behind the middleware stack and manages the
// lifecycle of the HTTP server and its background watchers.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/escalate"
	"github.com/SoftwearDevelopment/spynl/internal/metrics"
	"github.com/SoftwearDevelopment/spynl/internal/monitoring"
	"github.com/SoftwearDevelopment/spynl/internal/origin"
	"github.com/SoftwearDevelopment/spynl/internal/pkg/config"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/registration"
	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/server"
	"github.com/SoftwearDevelopment/spynl/internal/telemetry"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

// App is a configured Spynl application. It can be embedded in a larger
// program through Handler or run standalone with Start.
type App struct {
	// Dependencies (injected via options)
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	level      *slog.LevelVar
	catalog    *plugin.Catalog
	reporter   monitoring.Reporter
	metrics    *metrics.Collector
	bodyParser request.BodyParser

	// Built by New
	codecs    *codec.Registry
	endpoints *endpoint.Registry
	schemas   *validation.Store
	validator *validation.Validator
	unifier   *request.Unifier
	escalator *escalate.Escalator
	guard     atomic.Pointer[origin.Guard]
	loader    *plugin.Loader
	incidents *monitoring.IncidentStore
	sentry    *monitoring.Sentry
	server    *server.Server
	tracer    func(context.Context) error

	// Lifecycle management
	mu      sync.Mutex
	cancel  context.CancelFunc
	watcher *config.Watcher
}

// New creates an App, loads the enabled plugins and mounts their
// endpoints. Plugin registration errors abort construction.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.cfg == nil {
		a.cfg = config.Default()
	}
	if a.level != nil {
		a.level.Set(a.cfg.LogLevel())
	}
	if a.catalog == nil {
		a.catalog = plugin.NewCatalog()
		if err := registration.RegisterBuiltins(a.catalog); err != nil {
			return nil, fmt.Errorf("register builtin plugins: %w", err)
		}
	}
	if a.metrics == nil && a.cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}
	if a.reporter == nil {
		reporter, err := a.buildReporter()
		if err != nil {
			return nil, err
		}
		a.reporter = reporter
	}

	if a.cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer("spynl", a.cfg.Spynl.Environment, os.Stdout, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.tracer = shutdown
	}

	a.codecs = codec.NewDefaultRegistry(codec.DefaultHooks())
	a.endpoints = endpoint.NewRegistry()
	a.schemas = validation.NewStore(a.cfg.Spynl.SchemaDir, a.logger)
	a.validator = validation.New(a.schemas)
	a.unifier = &request.Unifier{
		Codecs:     a.codecs,
		BodyParser: a.bodyParser,
		MaxBytes:   a.cfg.Server.MaxBodyBytes,
		Logger:     a.logger,
	}
	a.escalator = &escalate.Escalator{
		Codecs:   a.codecs,
		Reporter: a.reporter,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Pretty:   a.cfg.Spynl.Pretty,
	}
	a.guard.Store(origin.NewGuard(a.cfg.Spynl.DevOriginWhitelist, a.cfg.Spynl.TLDOriginWhitelist))

	a.loader = plugin.NewLoader(a.catalog, &host{app: a}, a.logger)
	if err := a.loader.Load(a.cfg.Spynl.EnablePlugins); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	a.codecs.Freeze()

	a.server = server.New(server.Options{
		Port:    a.cfg.Server.Port,
		Timeout: a.cfg.Server.Timeout,
		Logger:  a.logger,
		OnPanic: a.escalator.Handle,
		Tracing: a.cfg.Tracing.Enabled,
	})
	a.mount()

	return a, nil
}

// buildReporter combines the monitoring sinks configured in the
// monitoring section. Without any, errors are only logged.
func (a *App) buildReporter() (monitoring.Reporter, error) {
	mc := a.cfg.Monitoring
	var reporters monitoring.Multi

	if mc.SentryDSN != "" {
		env := mc.Environment
		if env == "" {
			env = a.cfg.Spynl.Environment
		}
		s, err := monitoring.NewSentry(monitoring.SentryOptions{DSN: mc.SentryDSN, Environment: env})
		if err != nil {
			return nil, err
		}
		a.sentry = s
		reporters = append(reporters, s)
	}
	if mc.WebhookURL != "" {
		reporters = append(reporters, monitoring.NewWebhook(mc.WebhookURL, nil))
	}
	if mc.IncidentDB != "" {
		store, err := monitoring.NewIncidentStore(mc.IncidentDB)
		if err != nil {
			return nil, fmt.Errorf("open incident store: %w", err)
		}
		a.incidents = store
		reporters = append(reporters, store)
	}

	if len(reporters) == 0 {
		return monitoring.Nop{}, nil
	}
	return reporters, nil
}

// mount installs the app middleware and one route per endpoint and method.
func (a *App) mount() {
	r := a.server.Router

	if a.metrics != nil {
		r.Use(a.metrics.Middleware)
	}
	r.Use(a.originMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.escalator.Handle(w, r, domain.NewHTTPError(http.StatusNotFound, ""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.escalator.Handle(w, r, domain.NewHTTPError(http.StatusMethodNotAllowed, ""))
	})

	if a.metrics != nil {
		r.Method(http.MethodGet, a.cfg.Metrics.Path, a.metrics.Handler())
	}

	mounted := 0
	for _, e := range a.endpoints.List() {
		if e.DevOnly && a.cfg.IsProduction() {
			a.logger.Debug("skipping development endpoint", slog.String("path", e.Path()))
			continue
		}
		h := a.dispatch(e)
		for _, method := range e.AllowedMethods() {
			r.Method(method, e.Path(), h)
		}
		mounted++

		a.logger.Debug("registered endpoint",
			slog.String("path", e.Path()),
			slog.String("plugin", e.Plugin))
	}

	if a.metrics != nil {
		a.metrics.PluginsLoaded.Set(float64(len(a.loader.Loaded())))
		a.metrics.Endpoints.Set(float64(mounted))
	}
	a.logger.Info("endpoints mounted",
		slog.Int("endpoints", mounted),
		slog.Any("plugins", a.loader.Loaded()))
}

// originMiddleware checks origins against the current whitelist, which
// may be replaced by a config reload.
func (a *App) originMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.guard.Load().Middleware(a.escalator.Handle)(next).ServeHTTP(w, r)
	})
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Router
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Endpoints returns the registered endpoints sorted by path.
func (a *App) Endpoints() []endpoint.Endpoint {
	return a.endpoints.List()
}

// Plugins returns the loaded plugins in load order.
func (a *App) Plugins() []string {
	return a.loader.Loaded()
}

// Start starts the background watchers and the HTTP server. It returns
// once the server is listening in the background.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, a.cancel = context.WithCancel(ctx)

	if a.cfg.Spynl.WatchSchemas {
		if err := a.schemas.Watch(ctx); err != nil {
			a.logger.Warn("schema watch disabled", slog.String("error", err.Error()))
		}
	}

	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, a.logger)
		if err != nil {
			return err
		}
		if err := watcher.Watch(ctx, a.reload); err != nil {
			a.logger.Warn("config watch disabled", slog.String("error", err.Error()))
		} else {
			a.watcher = watcher
		}
	}

	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	a.logger.Info("spynl started",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("environment", a.cfg.Spynl.Environment),
		slog.Int("plugins", len(a.loader.Loaded())))

	return nil
}

// reload applies the settings that can change without a restart.
func (a *App) reload(cfg *config.Config) {
	a.guard.Store(origin.NewGuard(cfg.Spynl.DevOriginWhitelist, cfg.Spynl.TLDOriginWhitelist))
	if a.level != nil {
		a.level.Set(cfg.LogLevel())
	}
	a.logger.Info("reload complete",
		slog.Int("dev_origins", len(cfg.Spynl.DevOriginWhitelist)),
		slog.Int("tld_origins", len(cfg.Spynl.TLDOriginWhitelist)),
		slog.String("log_level", cfg.Spynl.LogLevel))
}

// Shutdown gracefully stops the server and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down spynl")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.Error("failed to close config watcher", slog.String("error", err.Error()))
		}
	}
	if a.tracer != nil {
		if err := a.tracer(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("spynl shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.schemas != nil {
		if err := a.schemas.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close schema store: %w", err))
		}
	}
	if a.sentry != nil {
		a.sentry.Flush(2 * time.Second)
	}
	if a.incidents != nil {
		if err := a.incidents.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close incident store: %w", err))
		}
	}
	return errors.Join(errs...)
}
