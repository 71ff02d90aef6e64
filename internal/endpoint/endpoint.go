// Package endpoint describes the endpoints plugins add to the application
// and keeps the registry they are mounted from.
package endpoint

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

// Handler serves one endpoint. The returned value is encoded with the
// negotiated content type; returning an export.File bypasses encoding.
type Handler func(ctx *request.Context) (any, error)

// Endpoint is the explicit description of a route.
type Endpoint struct {
	// Resource groups endpoints under a path prefix; empty mounts at the root
	Resource string

	// Name is the last path segment
	Name string

	// Methods defaults to GET and POST
	Methods []string

	// Summary is a one line description shown in listings
	Summary string

	// Validations are applied to request and response payloads
	Validations []validation.Instruction

	Handler Handler

	// DevOnly endpoints are not mounted in production
	DevOnly bool

	// Plugin is the name of the plugin that added the endpoint
	Plugin string
}

// Path returns the route path, e.g. "/about/build" or "/ping".
func (e Endpoint) Path() string {
	name := strings.Trim(e.Name, "/")
	resource := strings.Trim(e.Resource, "/")
	switch {
	case resource == "":
		return "/" + name
	case name == "":
		return "/" + resource
	default:
		return "/" + resource + "/" + name
	}
}

// AllowedMethods returns the HTTP methods the endpoint answers.
func (e Endpoint) AllowedMethods() []string {
	if len(e.Methods) == 0 {
		return []string{http.MethodGet, http.MethodPost}
	}
	return e.Methods
}

// Registry holds the endpoints added during plugin loading.
type Registry struct {
	mu     sync.RWMutex
	byPath map[string]Endpoint
	list   []Endpoint
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byPath: make(map[string]Endpoint)}
}

// Add registers e. Endpoints without a handler, with incomplete validation
// instructions or with a path that is already taken are rejected.
func (r *Registry) Add(e Endpoint) error {
	if e.Name == "" && e.Resource == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}
	if e.Handler == nil {
		return fmt.Errorf("endpoint %s must have a handler", e.Path())
	}
	if err := validation.Check(e.Validations); err != nil {
		return fmt.Errorf("endpoint %s: %w", e.Path(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := e.Path()
	if existing, exists := r.byPath[path]; exists {
		return fmt.Errorf("endpoint %s already registered by plugin %q", path, existing.Plugin)
	}
	r.byPath[path] = e
	r.list = append(r.list, e)
	return nil
}

// Get returns the endpoint mounted at path.
func (r *Registry) Get(path string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byPath[path]
	return e, ok
}

// List returns all endpoints sorted by path.
func (r *Registry) List() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Endpoint, len(r.list))
	copy(result, r.list)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path() < result[j].Path()
	})
	return result
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}
