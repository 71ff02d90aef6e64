// Package core is the spynl.core plugin: liveness endpoints every
// deployment has.
package core

import (
	"time"

	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/request"
)

// Name is the plugin name.
const Name = "spynl.core"

// now is replaced in tests.
var now = time.Now

// Descriptor returns the plugin descriptor.
func Descriptor(version string) plugin.Descriptor {
	return plugin.Descriptor{
		Name:     Name,
		Version:  version,
		Register: Register,
	}
}

// Register adds /ping and /time.
func Register(host plugin.Host) error {
	if err := host.AddEndpoint(endpoint.Endpoint{
		Name:    "ping",
		Summary: "Check that the service responds",
		Handler: ping,
	}); err != nil {
		return err
	}
	return host.AddEndpoint(endpoint.Endpoint{
		Name:    "time",
		Summary: "Current server time",
		Handler: serverTime,
	})
}

func ping(*request.Context) (any, error) {
	return map[string]any{
		"greeting": "pong",
		"time":     now().UTC(),
	}, nil
}

func serverTime(*request.Context) (any, error) {
	t := now()
	return map[string]any{
		"time":     t.UTC(),
		"unix":     t.Unix(),
		"timezone": t.Location().String(),
	}, nil
}
