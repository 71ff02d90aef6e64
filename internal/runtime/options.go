package runtime

import (
	"fmt"
	"log/slog"

	"github.com/SoftwearDevelopment/spynl/internal/metrics"
	"github.com/SoftwearDevelopment/spynl/internal/monitoring"
	"github.com/SoftwearDevelopment/spynl/internal/pkg/config"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/request"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}
}

// WithConfigFile loads the configuration from path. Start watches the
// file and reloads the origin whitelists and the log level when it changes.
func WithConfigFile(path string) Option {
	return func(a *App) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.cfg = cfg
		a.configPath = path
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithLevel sets the level variable the logger was built with. It is
// updated from spynl.log_level on start and on config reloads.
func WithLevel(level *slog.LevelVar) Option {
	return func(a *App) error {
		a.level = level
		return nil
	}
}

// WithCatalog sets the plugin catalog. By default the builtin plugins are
// available.
func WithCatalog(catalog *plugin.Catalog) Option {
	return func(a *App) error {
		a.catalog = catalog
		return nil
	}
}

// WithReporter replaces the monitoring reporters built from the config.
func WithReporter(reporter monitoring.Reporter) Option {
	return func(a *App) error {
		a.reporter = reporter
		return nil
	}
}

// WithMetrics sets the metrics collector. Without it a collector is only
// created when metrics.enabled is set.
func WithMetrics(collector *metrics.Collector) Option {
	return func(a *App) error {
		a.metrics = collector
		return nil
	}
}

// WithBodyParser replaces the codec based request body parsing.
func WithBodyParser(parser request.BodyParser) Option {
	return func(a *App) error {
		a.bodyParser = parser
		return nil
	}
}
