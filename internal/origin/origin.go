// Package origin validates request origins against the configured
// whitelists and answers CORS pre-flight requests.
package origin

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

// Pre-flight response values.
const (
	AllowedMethods = "GET,POST"
	MaxAge         = "86400"
)

// Guard checks origins against a development whitelist (exact origins or
// protocol prefixes ending in "://") and a top-level-domain whitelist.
type Guard struct {
	devURLs   map[string]bool
	protocols []string
	tlds      map[string]bool
}

// NewGuard creates a Guard. Entries are trimmed; empty entries are ignored.
func NewGuard(dev, tld []string) *Guard {
	g := &Guard{
		devURLs: make(map[string]bool),
		tlds:    make(map[string]bool),
	}
	for _, entry := range dev {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case strings.HasSuffix(entry, "://"):
			g.protocols = append(g.protocols, entry)
		default:
			g.devURLs[entry] = true
		}
	}
	for _, entry := range tld {
		if entry = strings.TrimSpace(entry); entry != "" {
			g.tlds[entry] = true
		}
	}
	return g
}

// IsAllowed reports whether requests from origin are permitted. An empty
// origin is always allowed.
func (g *Guard) IsAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if g.devURLs[origin] {
		return true
	}
	for _, p := range g.protocols {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return g.tlds[TLD(origin)]
}

// Check returns a BadOrigin error when origin is not allowed.
func (g *Guard) Check(origin string) error {
	if g.IsAllowed(origin) {
		return nil
	}
	return domain.ErrBadOrigin(origin)
}

// TLD returns the registered domain of origin (e.g. "example.com" for
// "https://www.example.com:8443"). Origins without a resolvable domain,
// such as IP addresses or unknown suffixes, are returned unchanged.
func TLD(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return origin
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return origin
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	if !icann && !strings.Contains(suffix, ".") {
		return origin
	}
	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return origin
	}
	return registered
}

// WritePreflight sets the pre-flight response headers on h.
func (g *Guard) WritePreflight(h http.Header, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		if g.IsAllowed(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
		} else {
			h.Set("Access-Control-Allow-Origin", "null")
		}
	}
	h.Set("Access-Control-Allow-Methods", AllowedMethods)
	h.Set("Access-Control-Max-Age", MaxAge)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Content-Length", "0")
	h.Set("Content-Type", "text/plain")
	if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
		h.Set("Access-Control-Allow-Headers", requested)
	}
}

// Middleware answers OPTIONS requests with a pre-flight response and
// rejects other requests from disallowed origins through onError.
// Allowed cross-origin requests get the allow-origin headers.
func (g *Guard) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				g.WritePreflight(w.Header(), r)
				w.WriteHeader(http.StatusOK)
				return
			}

			origin := r.Header.Get("Origin")
			if err := g.Check(origin); err != nil {
				onError(w, r, err)
				return
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			next.ServeHTTP(w, r)
		})
	}
}
