// Package about is the spynl.about plugin. It reports metadata about the
// running instance: its build, the installed plugins, the schemas it
// validates with and, outside production, recent incidents and settings.
package about

import (
	"runtime/debug"
	"time"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/plugins/core"
	"github.com/SoftwearDevelopment/spynl/internal/request"
)

// Name is the plugin name.
const Name = "spynl.about"

// Message is the greeting of the /about endpoint.
const Message = "This is the Spynl API/Middleware. You can get more information at " +
	"about/build, about/versions and about/schemas."

var now = time.Now

// Descriptor returns the plugin descriptor. version is reported as the
// Spynl version by every endpoint.
func Descriptor(version string) plugin.Descriptor {
	return plugin.Descriptor{
		Name:    Name,
		Version: version,
		Extras:  []string{core.Name},
		Register: func(host plugin.Host) error {
			return Register(host, version)
		},
	}
}

type about struct {
	version   string
	startTime time.Time
	host      plugin.Host
}

// Register adds the /about endpoints.
func Register(host plugin.Host, version string) error {
	a := &about{version: version, startTime: now().UTC(), host: host}

	for _, e := range []endpoint.Endpoint{
		{Resource: "about", Summary: "Index of the about endpoints", Handler: a.hello},
		{Resource: "about", Name: "build", Summary: "Build information", Handler: a.build},
		{Resource: "about", Name: "versions", Summary: "Installed plugins and their revisions", Handler: a.versions},
		{Resource: "about", Name: "schemas", Summary: "JSON schemas available for validation", Handler: a.schemas},
		{Resource: "about", Name: "incidents", Summary: "Recently escalated errors", Handler: a.incidents, DevOnly: true},
		{Resource: "about", Name: "settings", Summary: "Active configuration without secrets", Handler: a.settings, DevOnly: true},
	} {
		if err := host.AddEndpoint(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *about) hello(*request.Context) (any, error) {
	return map[string]any{
		"message":       Message,
		"spynl_version": a.version,
		"time":          now().UTC(),
	}, nil
}

func (a *about) build(*request.Context) (any, error) {
	cfg := a.host.Settings()
	resp := map[string]any{
		"time":          now().UTC(),
		"start_time":    a.startTime,
		"spynl_version": a.version,
		"environment":   cfg.Spynl.Environment,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return resp, nil
	}
	resp["go_version"] = info.GoVersion
	resp["module"] = info.Main.Path
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			resp["revision"] = s.Value
		case "vcs.time":
			resp["build_time"] = s.Value
		case "vcs.modified":
			resp["modified"] = s.Value == "true"
		}
	}
	return resp, nil
}

func (a *about) versions(*request.Context) (any, error) {
	plugins := make(map[string]any)
	if catalog := a.host.Services().Catalog; catalog != nil {
		for _, d := range catalog.List() {
			entry := map[string]any{"version": d.Version}
			if url := d.SCM(); url != "" {
				entry["scm_url"] = url
			}
			if d.Location != "" {
				if commit := plugin.LookupSCMCommit(d.Location); commit != "" {
					entry["commit"] = commit
				}
			}
			plugins[d.Name] = entry
		}
	}
	return map[string]any{
		"spynl_version": a.version,
		"time":          now().UTC(),
		"plugins":       plugins,
	}, nil
}

// schemas lists the schema names, or returns one schema when the schema
// argument is given.
func (a *about) schemas(ctx *request.Context) (any, error) {
	store := a.host.Services().Schemas
	if store == nil {
		return nil, domain.ErrIllegalAction("No schema directory is configured.")
	}

	if name := ctx.Args.String("schema"); name != "" {
		raw, err := store.Raw(name)
		if err != nil {
			return nil, domain.ErrIllegalParameter("schema").
				WithDeveloperMessage(err.Error()).
				WithCause(err)
		}
		return map[string]any{"schema": name, "content": raw}, nil
	}

	names, err := store.Names()
	if err != nil {
		return nil, domain.ErrInternal("could not list schemas").WithCause(err)
	}
	return map[string]any{"schemas": names}, nil
}

type incidentsArgs struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}

func (a *about) incidents(ctx *request.Context) (any, error) {
	store := a.host.Services().Incidents
	if store == nil {
		return nil, domain.ErrIllegalAction("No incident store is configured.")
	}

	var args incidentsArgs
	if err := ctx.Args.Bind(&args); err != nil {
		return nil, err
	}

	incidents, err := store.Recent(ctx.Context(), args.Limit)
	if err != nil {
		return nil, domain.ErrInternal("could not read incidents").WithCause(err)
	}
	return map[string]any{"incidents": incidents}, nil
}

// settings reports the active configuration. Monitoring endpoints carry
// credentials, so only whether they are set is reported.
func (a *about) settings(*request.Context) (any, error) {
	cfg := a.host.Settings()
	return map[string]any{
		"environment": cfg.Spynl.Environment,
		"server": map[string]any{
			"port":           cfg.Server.Port,
			"timeout":        cfg.Server.Timeout.String(),
			"max_body_bytes": cfg.Server.MaxBodyBytes,
		},
		"spynl": map[string]any{
			"domain":               cfg.Spynl.Domain,
			"dev_origin_whitelist": cfg.Spynl.DevOriginWhitelist,
			"tld_origin_whitelist": cfg.Spynl.TLDOriginWhitelist,
			"enable_plugins":       cfg.Spynl.EnablePlugins,
			"schema_dir":           cfg.Spynl.SchemaDir,
			"watch_schemas":        cfg.Spynl.WatchSchemas,
			"pretty":               cfg.Spynl.Pretty,
			"log_level":            cfg.Spynl.LogLevel,
		},
		"monitoring": map[string]any{
			"sentry":      cfg.Monitoring.SentryDSN != "",
			"webhook":     cfg.Monitoring.WebhookURL != "",
			"incident_db": cfg.Monitoring.IncidentDB,
			"environment": cfg.Monitoring.Environment,
		},
		"metrics": map[string]any{
			"enabled": cfg.Metrics.Enabled,
			"path":    cfg.Metrics.Path,
		},
		"tracing": map[string]any{
			"enabled": cfg.Tracing.Enabled,
		},
	}, nil
}
