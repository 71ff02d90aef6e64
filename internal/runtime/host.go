package runtime

import (
	"log/slog"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/pkg/config"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
)

// host is the plugin.Host handed to plugins while the App is built.
type host struct {
	app *App
}

var _ plugin.Host = (*host)(nil)

func (h *host) AddEndpoint(e endpoint.Endpoint) error {
	return h.app.endpoints.Add(e)
}

func (h *host) AddCodec(c codec.Handler) error {
	return h.app.codecs.Register(c)
}

func (h *host) AddDecodeHook(hook codec.DecodeHook) {
	h.app.codecs.Hooks().AddDecode(hook)
}

func (h *host) AddEncodeHook(hook codec.EncodeHook) {
	h.app.codecs.Hooks().AddEncode(hook)
}

func (h *host) Settings() *config.Config {
	return h.app.cfg
}

func (h *host) Logger() *slog.Logger {
	return h.app.logger
}

func (h *host) Services() plugin.Services {
	return plugin.Services{
		Catalog:   h.app.catalog,
		Schemas:   h.app.schemas,
		Incidents: h.app.incidents,
	}
}
