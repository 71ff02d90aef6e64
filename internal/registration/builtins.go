package registration

import (
	"github.com/SoftwearDevelopment/spynl/internal/plugin"
	"github.com/SoftwearDevelopment/spynl/internal/plugins/about"
	"github.com/SoftwearDevelopment/spynl/internal/plugins/core"
)

// Version is the Spynl version reported by the builtin plugins. It is set
// at link time with -ldflags "-X .../registration.Version=...".
var Version = "dev"

// RegisterBuiltins adds the builtin plugins to catalog explicitly.
// This replaces init-based side effects and is intended to be called from
// cmd/spynl and tests before plugins are loaded.
func RegisterBuiltins(catalog *plugin.Catalog) error {
	for _, d := range []plugin.Descriptor{
		core.Descriptor(Version),
		about.Descriptor(Version),
	} {
		if err := catalog.Register(d); err != nil {
			return err
		}
	}
	return nil
}
