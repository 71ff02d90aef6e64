package plugin

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/SoftwearDevelopment/spynl/internal/endpoint"
)

// CycleError reports a circular extras declaration.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "plugin extras cycle: " + strings.Join(e.Chain, " -> ")
}

// Loader registers plugins from a catalog against a host. Loading is
// idempotent: a plugin is registered at most once per Loader.
type Loader struct {
	catalog *Catalog
	host    Host
	logger  *slog.Logger

	mu     sync.Mutex
	loaded map[string]bool
	order  []string
}

// NewLoader creates a Loader.
func NewLoader(catalog *Catalog, host Host, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		catalog: catalog,
		host:    host,
		logger:  logger,
		loaded:  make(map[string]bool),
	}
}

// Load registers the selected plugins, or every catalog entry when
// selection is nil. Extras are loaded before the plugin that declares
// them. Unknown names are skipped.
func (l *Loader) Load(selection []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if selection == nil {
		selection = l.catalog.Names()
	}
	for _, name := range selection {
		if err := l.load(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) load(name string, chain []string) error {
	if l.loaded[name] {
		return nil
	}
	for _, seen := range chain {
		if seen == name {
			return &CycleError{Chain: append(append([]string{}, chain...), name)}
		}
	}

	d, ok := l.catalog.Get(name)
	if !ok {
		l.logger.Warn("plugin not installed, skipping", slog.String("plugin", name))
		return nil
	}

	chain = append(chain, name)
	for _, extra := range d.Extras {
		if err := l.load(extra, chain); err != nil {
			return err
		}
	}

	if d.Register != nil {
		if err := d.Register(&pluginHost{Host: l.host, plugin: name}); err != nil {
			return fmt.Errorf("register plugin %s: %w", name, err)
		}
	}
	l.loaded[name] = true
	l.order = append(l.order, name)
	l.logger.Info("plugin loaded", slog.String("plugin", name), slog.String("version", d.Version))
	return nil
}

// Loaded returns plugin names in the order they were registered.
func (l *Loader) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]string, len(l.order))
	copy(result, l.order)
	return result
}

// ResolveOrder returns the order Load would register selection in,
// without calling any plugin.
func ResolveOrder(catalog *Catalog, selection []string) ([]string, error) {
	l := NewLoader(catalog, nil, slog.New(slog.DiscardHandler))
	dry := NewCatalog()
	for _, d := range catalog.List() {
		d.Register = nil
		if err := dry.Register(d); err != nil {
			return nil, err
		}
	}
	l.catalog = dry
	if err := l.Load(selection); err != nil {
		return nil, err
	}
	return l.Loaded(), nil
}

// pluginHost stamps endpoints with the plugin that adds them.
type pluginHost struct {
	Host
	plugin string
}

func (h *pluginHost) AddEndpoint(e endpoint.Endpoint) error {
	e.Plugin = h.plugin
	return h.Host.AddEndpoint(e)
}
