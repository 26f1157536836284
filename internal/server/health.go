package server

import "net/http"

// Pre-allocated bodies and header value slices; direct map assignment
// skips the per-call []string alloc that Header.Set would make.
var (
	healthBody = []byte("Proxy running!")
	plainCT    = []string{"text/plain"}
	jsonCT     = []string{"application/json"}
)

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(healthBody)
}

func (s *server) handleCacheStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(http.StatusOK)
	w.Write(s.deps.Cache.Status())
}
