package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when Load is given no path.
const DefaultPath = "config.yaml"

// EnvPrefix marks environment variables that override file settings.
// SPYNL_SPYNL__SCHEMA_DIR sets spynl.schema_dir.
const EnvPrefix = "SPYNL_"

// Environments.
const (
	EnvDev        = "dev"
	EnvTest       = "test"
	EnvProduction = "production"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Spynl      SpynlConfig      `koanf:"spynl"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing"`
}

type ServerConfig struct {
	Port         int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout      time.Duration `koanf:"timeout" validate:"min=0"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"min=0"`
}

type SpynlConfig struct {
	Domain      string `koanf:"domain"`
	Environment string `koanf:"environment" validate:"oneof=dev test production"`

	// DevOriginWhitelist holds exact origins and protocol prefixes ("chrome-extension://")
	DevOriginWhitelist []string `koanf:"dev_origin_whitelist"`
	TLDOriginWhitelist []string `koanf:"tld_origin_whitelist"`

	// EnablePlugins selects plugins to load; empty loads all of them
	EnablePlugins []string `koanf:"enable_plugins"`

	SchemaDir    string `koanf:"schema_dir" validate:"required"`
	WatchSchemas bool   `koanf:"watch_schemas"`
	Pretty       bool   `koanf:"pretty"`
	LogLevel     string `koanf:"log_level" validate:"oneof=debug info warn error"`
}

type MonitoringConfig struct {
	SentryDSN   string `koanf:"sentry_dsn" validate:"omitempty,url"`
	WebhookURL  string `koanf:"webhook_url" validate:"omitempty,url"`
	IncidentDB  string `koanf:"incident_db"`
	Environment string `koanf:"environment"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"omitempty,startswith=/"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"server.port":           6543,
	"server.timeout":        "30s",
	"server.max_body_bytes": 10 << 20,
	"spynl.environment":     EnvDev,
	"spynl.schema_dir":      "schemas",
	"spynl.pretty":          false,
	"spynl.log_level":       "info",
	"metrics.path":          "/metrics",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path (DefaultPath when empty), then SPYNL_
// environment variables, then fills defaults. A missing file is not an
// error. The result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Monitoring.SentryDSN = substituteEnvVars(cfg.Monitoring.SentryDSN)
	cfg.Monitoring.WebhookURL = substituteEnvVars(cfg.Monitoring.WebhookURL)
	cfg.Spynl.DevOriginWhitelist = clean(cfg.Spynl.DevOriginWhitelist)
	cfg.Spynl.TLDOriginWhitelist = clean(cfg.Spynl.TLDOriginWhitelist)
	cfg.Spynl.EnablePlugins = clean(cfg.Spynl.EnablePlugins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 6543, Timeout: 30 * time.Second, MaxBodyBytes: 10 << 20},
		Spynl: SpynlConfig{
			Environment: EnvDev,
			SchemaDir:   "schemas",
			LogLevel:    "info",
		},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsProduction reports whether the production environment is configured.
func (c *Config) IsProduction() bool {
	return c.Spynl.Environment == EnvProduction
}

// LogLevel maps spynl.log_level to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.Spynl.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// clean splits comma separated entries and drops blanks, so a list may be
// written as a YAML sequence or as one "a, b" string.
func clean(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
