// Package request builds the per-request Context: the unified argument
// map drawn from headers, body, query string and cookies.
package request

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

// Header names that are treated as arguments without the x-spynl- prefix.
const (
	HeaderSessionID       = "sid"
	HeaderForwardedFor    = "X-Forwarded-For"
	headerArgumentsPrefix = "x-spynl-"
)

// BodyParser replaces the codec based body decoding.
type BodyParser func(r *http.Request) (map[string]any, error)

// Context is the explicit per-request state handed to endpoints.
type Context struct {
	// Request is the HTTP request; the sid header reflects the unified session id
	Request *http.Request

	// Args is the unified argument map
	Args Args

	// EndpointMethod is the logical method name of the endpoint
	EndpointMethod string

	// ResponseHeader collects headers an endpoint wants to send
	ResponseHeader http.Header

	// ContentType is the negotiated response content type
	ContentType string

	Logger *slog.Logger
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.Request.Context()
}

// SessionID returns the session id, if any.
func (c *Context) SessionID() string {
	return c.Request.Header.Get(HeaderSessionID)
}

// IP returns the client address.
func (c *Context) IP() string {
	return ClientIP(c.Request)
}

// ClientIP prefers the first X-Forwarded-For entry set by load balancers
// over the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get(HeaderForwardedFor); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Unifier merges all argument sources of a request.
type Unifier struct {
	Codecs *codec.Registry

	// BodyParser, if set, is used instead of the codec registry
	BodyParser BodyParser

	// MaxBytes limits the request body; zero means unlimited
	MaxBytes int64

	Logger *slog.Logger
}

// Unify builds the Context for r. Sources override each other in the
// order headers, body, query string; cookies only fill keys that are still
// absent. A sid argument is moved into the sid request header.
func (u *Unifier) Unify(w http.ResponseWriter, r *http.Request, name, routePath string) (*Context, error) {
	args := HeaderArgs(r)

	body, err := u.parseBody(w, r)
	if err != nil {
		return nil, err
	}
	for k, v := range body {
		args[k] = v
	}

	query, err := u.QueryArgs(r)
	if err != nil {
		return nil, err
	}
	for k, v := range query {
		args[k] = v
	}

	for _, c := range r.Cookies() {
		if _, exists := args[c.Name]; !exists {
			args[c.Name] = c.Value
		}
	}

	if sid := Args(args).String(HeaderSessionID); sid != "" {
		r.Header.Set(HeaderSessionID, sid)
		delete(args, HeaderSessionID)
	}

	logger := u.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Context{
		Request:        r,
		Args:           args,
		EndpointMethod: EndpointMethod(r.Method, name, routePath),
		ResponseHeader: make(http.Header),
		ContentType:    u.Codecs.Negotiate(r.Header.Get("Accept")),
		Logger:         logger,
	}, nil
}

// HeaderArgs collects x-spynl-* headers (keys lowercased) plus the sid and
// X-Forwarded-For headers.
func HeaderArgs(r *http.Request) map[string]any {
	args := make(map[string]any)
	for key, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(key)
		switch {
		case strings.HasPrefix(lower, headerArgumentsPrefix):
			args[lower] = values[0]
		case lower == HeaderSessionID:
			args[HeaderSessionID] = values[0]
		case key == HeaderForwardedFor:
			args[HeaderForwardedFor] = values[0]
		}
	}
	return args
}

func (u *Unifier) parseBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return map[string]any{}, nil
	}
	if u.MaxBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, u.MaxBytes)
	}
	if u.BodyParser != nil {
		return u.BodyParser(r)
	}
	if r.Body == nil {
		return map[string]any{}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, domain.ErrMalformedRequest(r.Header.Get("Content-Type"), err)
	}
	return u.Codecs.Decode(data, r.Header.Get("Content-Type"), r.Header)
}

// QueryArgs parses the query string. Values that look like JSON objects or
// lists are decoded as JSON; other values go through the text hooks.
// Repeated keys become lists.
func (u *Unifier) QueryArgs(r *http.Request) (map[string]any, error) {
	hooks := u.Codecs.Hooks()
	args := make(map[string]any)
	for key, values := range r.URL.Query() {
		decoded := make([]any, 0, len(values))
		for _, raw := range values {
			v, err := queryValue(raw, hooks)
			if err != nil {
				return nil, domain.ErrIllegalParameter(key).WithCause(err)
			}
			decoded = append(decoded, v)
		}
		if len(decoded) == 1 {
			args[key] = decoded[0]
		} else {
			args[key] = decoded
		}
	}
	return args, nil
}

func queryValue(raw string, hooks *codec.Hooks) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return codec.DecodeJSONValue([]byte(trimmed), hooks)
	}
	return hooks.DecodeString(raw, true), nil
}

// EndpointMethod resolves the logical method name of an endpoint. When the
// route carries no method name of its own, POST maps to "edit" and GET to
// "get".
func EndpointMethod(httpMethod, name, routePath string) string {
	name = strings.TrimPrefix(name, "/")
	path := strings.Trim(routePath, "/")
	if name != "" && name != path {
		return name
	}
	switch httpMethod {
	case http.MethodPost:
		return "edit"
	case http.MethodGet:
		return "get"
	}
	if name == "" {
		return path
	}
	return name
}
