// Package codec provides content-type based (de)serialization of request
// and response bodies.
//
// A Registry maps MIME types to Handlers. JSON, XML and CSV are built in;
// plugins may register more while the application starts. Once Freeze has
// been called the registry is read-only.
package codec

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

// Content types handled by the builtin codecs.
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
	ContentTypeCSV  = "text/csv"
)

// DecodeContext carries request information a decoder may need.
type DecodeContext struct {
	Header http.Header
	Hooks  *Hooks
}

// Decoder parses a body into a mapping.
type Decoder func(body []byte, dc DecodeContext) (map[string]any, error)

// Encoder serializes a value.
type Encoder func(value any, hooks *Hooks, pretty bool) ([]byte, error)

// Handler pairs the decode and encode functions of one content type.
// Either function may be nil.
type Handler struct {
	ContentType string
	Decode      Decoder
	Encode      Encoder
}

// Registry holds the registered content-type handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	hooks    *Hooks
	frozen   bool
}

// NewRegistry creates an empty registry using the given hooks.
func NewRegistry(hooks *Hooks) *Registry {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		hooks:    hooks,
	}
}

// NewDefaultRegistry creates a registry with the JSON, XML and CSV handlers.
func NewDefaultRegistry(hooks *Hooks) *Registry {
	r := NewRegistry(hooks)
	for _, h := range []Handler{JSONHandler(), XMLHandler(), CSVHandler()} {
		// builtin content types are distinct
		_ = r.Register(h)
	}
	return r
}

// Register adds a handler. A content type can only be registered once.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("codec registry is frozen, cannot register %q", h.ContentType)
	}
	ct := normalize(h.ContentType)
	if ct == "" {
		return fmt.Errorf("content type cannot be empty")
	}
	if h.Decode == nil && h.Encode == nil {
		return fmt.Errorf("content type %q needs a decoder or an encoder", ct)
	}
	if _, exists := r.handlers[ct]; exists {
		return fmt.Errorf("content type %q already registered", ct)
	}
	h.ContentType = ct
	r.handlers[ct] = h
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Hooks returns the hook table shared by all handlers.
func (r *Registry) Hooks() *Hooks {
	return r.hooks
}

// Lookup returns the handler for a content type.
func (r *Registry) Lookup(contentType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[normalize(contentType)]
	return h, ok
}

// ContentTypes returns the registered content types sorted.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for ct := range r.handlers {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// Decode parses body. With an empty contentType the type is sniffed.
// An empty body decodes to an empty mapping.
func (r *Registry) Decode(body []byte, contentType string, header http.Header) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	ct := normalize(contentType)
	if ct == "" {
		sniffed, err := Sniff(body)
		if err != nil {
			return nil, err
		}
		ct = sniffed
	}
	h, ok := r.Lookup(ct)
	if !ok {
		return nil, domain.ErrUnsupportedContentType(ct)
	}
	if h.Decode == nil {
		return nil, domain.ErrDeserializationUnsupported(ct)
	}
	return h.Decode(body, DecodeContext{Header: header, Hooks: r.hooks})
}

// Encode serializes value as contentType.
func (r *Registry) Encode(value any, contentType string, pretty bool) ([]byte, error) {
	ct := normalize(contentType)
	h, ok := r.Lookup(ct)
	if !ok {
		return nil, domain.ErrUnsupportedContentType(ct)
	}
	if h.Encode == nil {
		return nil, domain.ErrSerializationUnsupported(ct)
	}
	return h.Encode(value, r.hooks, pretty)
}

// Negotiate picks a response content type from an Accept header. It falls
// back to JSON.
func (r *Registry) Negotiate(accept string) string {
	for _, part := range strings.Split(accept, ",") {
		ct := normalize(part)
		if ct == "" || ct == "*/*" {
			continue
		}
		if h, ok := r.Lookup(ct); ok && h.Encode != nil {
			return ct
		}
	}
	return ContentTypeJSON
}

var (
	jsonSniff = regexp.MustCompile(`^\s*\{`)
	xmlSniff  = regexp.MustCompile(`^\s*<`)
)

// Sniff infers the content type of body from its leading bytes.
func Sniff(body []byte) (string, error) {
	switch {
	case jsonSniff.Match(body):
		return ContentTypeJSON, nil
	case xmlSniff.Match(body):
		return ContentTypeXML, nil
	default:
		return "", domain.ErrUndeterminedContentType()
	}
}

// normalize strips parameters and lowercases a media type.
func normalize(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = contentType[:i]
		}
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
