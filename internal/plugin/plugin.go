// Package plugin holds the typed plugin catalog and the loader that
// registers plugins, and their extras, exactly once at startup.
package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
	"github.com/SoftwearDevelopment/spynl/internal/monitoring"
	"github.com/SoftwearDevelopment/spynl/internal/pkg/config"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

// Host is the surface a plugin registers itself against.
type Host interface {
	AddEndpoint(e endpoint.Endpoint) error
	AddCodec(h codec.Handler) error
	AddDecodeHook(h codec.DecodeHook)
	AddEncodeHook(h codec.EncodeHook)
	Settings() *config.Config
	Logger() *slog.Logger
	Services() Services
}

// Services are application components plugins may read from. Any field
// may be nil.
type Services struct {
	Catalog   *Catalog
	Schemas   *validation.Store
	Incidents *monitoring.IncidentStore
}

// RegisterFunc is a plugin's registration entry point.
type RegisterFunc func(host Host) error

// Descriptor describes an installed plugin.
type Descriptor struct {
	// Name is unique within a catalog
	Name string

	Version string

	// Location is the plugin's source directory, used for SCM lookups
	Location string

	// SCMURL overrides the URL detected from Location
	SCMURL string

	// Extras are plugins that must be loaded first
	Extras []string

	// Register is called once; a nil Register is skipped
	Register RegisterFunc
}

// SCM returns the plugin's repository URL, falling back to the one found
// in its location.
func (d Descriptor) SCM() string {
	if d.SCMURL != "" {
		return d.SCMURL
	}
	if d.Location == "" {
		return ""
	}
	return LookupSCMURL(d.Location)
}

// Catalog is the set of plugins known to the process.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]Descriptor
	list   []Descriptor
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]Descriptor)}
}

// Register adds d to the catalog. Names must be unique.
func (c *Catalog) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[d.Name]; exists {
		return fmt.Errorf("plugin %q already registered", d.Name)
	}
	c.byName[d.Name] = d
	c.list = append(c.list, d)
	return nil
}

// Get returns the descriptor for name, if registered.
func (c *Catalog) Get(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.byName[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Descriptor, len(c.list))
	copy(result, c.list)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns all plugin names sorted.
func (c *Catalog) Names() []string {
	list := c.List()
	names := make([]string, len(list))
	for i, d := range list {
		names[i] = d.Name
	}
	return names
}

// IsRegistered returns true if a plugin called name is in the catalog.
func (c *Catalog) IsRegistered(name string) bool {
	_, ok := c.Get(name)
	return ok
}
