package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	proxy "github.com/eugener/shadowfax/internal"
	"github.com/eugener/shadowfax/internal/cache"
	"github.com/eugener/shadowfax/internal/ratelimit"
)

// newTestProxy wires a proxy handler against the given upstream TLS
// server. The upstream's own client is used so its certificate is
// trusted.
func newTestProxy(t *testing.T, upstream *httptest.Server) http.Handler {
	t.Helper()
	registry := ratelimit.NewRegistry("Bot default-token")
	t.Cleanup(registry.Close)
	return New(Deps{
		Registry:     registry,
		Cache:        cache.New(time.Minute, proxy.NopTelemetry{}),
		Client:       upstream.Client(),
		UpstreamHost: strings.TrimPrefix(upstream.URL, "https://"),
		Telemetry:    proxy.NopTelemetry{},
	})
}

// discordStub responds like the upstream API: a JSON body plus the
// rate-limit bookkeeping headers, counting calls as it goes.
func discordStub(calls *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h := w.Header()
		h.Set("Content-Type", "application/json")
		h.Set("X-Ratelimit-Bucket", "stub-bucket")
		h.Set("X-Ratelimit-Limit", "5")
		h.Set("X-Ratelimit-Remaining", "4")
		h.Set("X-Ratelimit-Reset-After", "1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"123"}`))
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "Proxy running!" {
		t.Errorf("body = %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}
	if calls.Load() != 0 {
		t.Error("health check reached the upstream")
	}
}

func TestCacheStatusEndpoint(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	// Populate the users namespace through a real forward.
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/users/123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("forward status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !gjson.Valid(body) {
		t.Fatalf("not valid JSON: %s", body)
	}
	if got := gjson.Get(body, "users").Int(); got != 1 {
		t.Errorf("users = %d, want 1", got)
	}
	if got := gjson.Get(body, "invites").Int(); got != 0 {
		t.Errorf("invites = %d, want 0", got)
	}
}

func TestUserLookupCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	first := httptest.NewRecorder()
	p.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v10/users/123", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	if first.Header().Get("X-Ratelimit-Remaining") == "" {
		t.Error("live response should carry the upstream's rate-limit headers")
	}

	second := httptest.NewRecorder()
	p.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v10/users/123", nil))
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d", second.Code)
	}

	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (second served from cache)", calls.Load())
	}
	if second.Body.String() != `{"id":"123"}` {
		t.Errorf("cached body = %q", second.Body.String())
	}
	// Replayed hits must not echo stale bucket bookkeeping.
	for _, name := range []string{
		"X-Ratelimit-Bucket",
		"X-Ratelimit-Remaining",
		"X-Ratelimit-Reset",
		"X-Ratelimit-Reset-After",
	} {
		if second.Header().Get(name) != "" {
			t.Errorf("cached response carries %s", name)
		}
	}
}

func TestSelfLookupNotCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	for range 2 {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/users/@me", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2 (@me is never cached)", calls.Load())
	}
}

func TestInviteNotFoundCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-Ratelimit-Limit", "5")
		w.Header().Set("X-Ratelimit-Remaining", "4")
		http.Error(w, `{"message": "Unknown Invite", "code": 10006}`, http.StatusNotFound)
	}))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	for range 2 {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/invites/expired", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404 passed through", rec.Code)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (404 is cacheable)", calls.Load())
	}
}

func TestUnsupportedMethod(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v10/users/123", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if calls.Load() != 0 {
		t.Error("rejected method reached the upstream")
	}
}

func TestUnknownPath(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/definitely/not/a/route", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if calls.Load() != 0 {
		t.Error("unclassifiable path reached the upstream")
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewTLSServer(http.NotFoundHandler())
	client := upstream.Client()
	host := strings.TrimPrefix(upstream.URL, "https://")
	upstream.Close()

	registry := ratelimit.NewRegistry("Bot default-token")
	t.Cleanup(registry.Close)
	p := New(Deps{
		Registry:     registry,
		Cache:        cache.New(time.Minute, proxy.NopTelemetry{}),
		Client:       client,
		UpstreamHost: host,
		Telemetry:    proxy.NopTelemetry{},
	})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/gateway/bot", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestAuthorizationRewrite(t *testing.T) {
	t.Parallel()
	var gotAuth atomic.Value
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	// No Authorization header: the default token goes upstream.
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/gateway/bot", nil))
	if got := gotAuth.Load(); got != "Bot default-token" {
		t.Errorf("upstream saw Authorization %q, want the default token", got)
	}

	// A caller-supplied token passes through untouched.
	req := httptest.NewRequest(http.MethodGet, "/api/v10/gateway/bot", nil)
	req.Header.Set("Authorization", "Bot caller-token")
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	if got := gotAuth.Load(); got != "Bot caller-token" {
		t.Errorf("upstream saw Authorization %q, want the caller's token", got)
	}
}

func TestQueryStringForwarded(t *testing.T) {
	t.Parallel()
	var gotQuery atomic.Value
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v10/guilds/123/members?limit=100&after=0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gotQuery.Load(); got != "limit=100&after=0" {
		t.Errorf("upstream saw query %q", got)
	}
}

func TestVersionedPrefixPreserved(t *testing.T) {
	t.Parallel()
	var gotPath atomic.Value
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	tests := []struct{ in, want string }{
		{"/api/v10/gateway/bot", "/api/v10/gateway/bot"},
		{"/api/gateway/bot", "/api/gateway/bot"},
		{"/gateway/bot", "/api/gateway/bot"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.in, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.in, rec.Code)
		}
		if got := gotPath.Load(); got != tt.want {
			t.Errorf("request %q forwarded as %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	upstream := httptest.NewTLSServer(discordStub(&calls))
	defer upstream.Close()
	p := newTestProxy(t, upstream)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response missing generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "supplied-id")
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "supplied-id" {
		t.Errorf("X-Request-Id = %q, want the caller's id echoed", got)
	}
}
