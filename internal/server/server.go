// Package server implements the HTTP transport layer of the proxy: the
// proxy-owned endpoints and the forwarding pipeline for everything else.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	proxy "github.com/eugener/shadowfax/internal"
	"github.com/eugener/shadowfax/internal/cache"
	"github.com/eugener/shadowfax/internal/ratelimit"
)

// Deps holds all dependencies for the HTTP server. Singletons are
// passed in as handles; there is no ambient global state.
type Deps struct {
	Registry     *ratelimit.Registry
	Cache        *cache.Cache
	Client       *http.Client // shared pooled TLS client
	UpstreamHost string
	Telemetry    proxy.Telemetry
	Metrics      http.Handler // Prometheus exposition; nil = no /metrics route
}

// New creates an http.Handler with all routes and middleware wired.
// Anything that is not a proxy-owned endpoint is forwarded upstream.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)

	r.Get("/health", s.handleHealth)
	r.Get("/cache/status", s.handleCacheStatus)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Everything else is upstream traffic, including non-GET hits on
	// the proxy-owned paths.
	r.NotFound(s.handleForward)
	r.MethodNotAllowed(s.handleForward)

	return r
}

type server struct {
	deps Deps
}
