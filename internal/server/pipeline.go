package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	proxy "github.com/eugener/shadowfax/internal"
	"github.com/eugener/shadowfax/internal/cache"
	"github.com/eugener/shadowfax/internal/routes"
	"github.com/eugener/shadowfax/internal/telemetry"
)

// statusText maps HTTP status codes to pre-allocated strings, avoiding
// a strconv.Itoa allocation per request.
var statusText [600]string

func init() {
	for i := range statusText {
		statusText[i] = strconv.Itoa(i)
	}
}

func statusLabel(code int) string {
	if code >= 0 && code < len(statusText) {
		return statusText[code]
	}
	return strconv.Itoa(code)
}

// Hop-by-hop and upgrade headers stripped before forwarding; they are
// forbidden on HTTP/2 connections.
var hopHeaders = [...]string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
}

var tracer = telemetry.Tracer("shadowfax/pipeline")

// handleForward is the catch-all handler: every request that is not a
// proxy-owned endpoint runs the forwarding pipeline.
func (s *server) handleForward(w http.ResponseWriter, r *http.Request) {
	if err := s.forward(w, r); err != nil {
		status := errorStatus(err)
		slog.LogAttrs(r.Context(), slog.LevelError, "forward failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		http.Error(w, err.Error(), status)
	}
}

// errorStatus maps domain errors to the HTTP status the proxy renders.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, proxy.ErrInvalidMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, proxy.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, proxy.ErrRequestIssue):
		return http.StatusBadGateway
	default:
		// ErrAcquiringTicket, ErrInvalidURI, anything unexpected.
		return http.StatusInternalServerError
	}
}

// forward runs the pipeline: classify, cache read-through, ticket
// acquisition, rewrite, upstream round-trip, header ingest, cache
// write-through, reply. It returns an error only before the response
// has started being written.
func (s *server) forward(w http.ResponseWriter, r *http.Request) error {
	authorization := r.Header.Get("Authorization")
	coordinator, bearer := s.deps.Registry.GetOrCreate(authorization)

	method, err := proxy.MethodFromHTTP(r.Method)
	if err != nil {
		return fmt.Errorf("%w: %s", proxy.ErrInvalidMethod, r.Method)
	}

	apiPrefix, trimmed := routes.Normalize(r.URL.Path)
	rt, err := routes.Classify(method, trimmed)
	if err != nil {
		return err
	}
	canonical := apiPrefix + trimmed
	methodName := method.String()
	routeName := rt.Name()

	s.deps.Telemetry.InFlightAdd(methodName, routeName, 1)
	defer s.deps.Telemetry.InFlightAdd(methodName, routeName, -1)

	// Cache read-through: a hit replies without consuming a ticket, so
	// cached reads cost no upstream budget.
	if entry, ok := s.cachedReply(rt, canonical); ok {
		slog.LogAttrs(r.Context(), slog.LevelDebug, "cache hit",
			slog.String("method", methodName),
			slog.String("route", routeName),
			slog.String("path", canonical),
			slog.Int("status", entry.Status),
		)
		writeEntry(w, entry)
		return nil
	}

	ticket, err := coordinator.Acquire(r.Context(), rt)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away while queued; nothing to write.
			return nil
		}
		return err
	}
	// Exactly one report per ticket on every exit path; Report is
	// idempotent, so the happy path's explicit call wins over this.
	defer ticket.Report(0, nil)

	out, err := s.rewrite(r, canonical, bearer)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(r.Context(), "upstream.forward",
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.method", methodName),
			attribute.String("proxy.route", routeName),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := s.deps.Client.Do(out.WithContext(ctx))
	if err != nil {
		ticket.Report(0, nil)
		return fmt.Errorf("%w: %v", proxy.ErrRequestIssue, err)
	}
	defer resp.Body.Close()

	ticket.Report(resp.StatusCode, resp.Header)

	scope := resp.Header.Get("X-Ratelimit-Scope")
	s.deps.Telemetry.ObserveUpstream(methodName, routeName, statusLabel(resp.StatusCode), scope,
		time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	slog.LogAttrs(r.Context(), slog.LevelDebug, "forwarded",
		slog.String("method", methodName),
		slog.String("route", routeName),
		slog.String("path", canonical),
		slog.Int("status", resp.StatusCode),
	)

	if cacheableStatus(resp.StatusCode) && s.cacheable(rt, canonical) {
		return s.replyAndStore(w, resp, rt, canonical)
	}

	// Non-cacheable or non-success: stream the response through as-is.
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "response stream aborted",
			slog.String("path", canonical),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// rewrite builds the upstream request: original method, path, query and
// body, with the bearer swapped in, the host rewritten, and hop-by-hop
// headers removed.
func (s *server) rewrite(r *http.Request, canonical, bearer string) (*http.Request, error) {
	target := "https://" + s.deps.UpstreamHost + canonical
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", proxy.ErrInvalidURI, err)
	}
	out.ContentLength = r.ContentLength

	out.Header = r.Header.Clone()
	out.Header.Set("Authorization", bearer)
	out.Host = s.deps.UpstreamHost
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	return out, nil
}

// cacheable reports whether the classified route may be served from and
// written to the cache. Self-scoped user lookups never cache.
func (s *server) cacheable(rt routes.Route, canonical string) bool {
	switch rt.Kind {
	case routes.KindInvitesCode:
		return true
	case routes.KindUsersID:
		return !strings.Contains(canonical, "@me")
	default:
		return false
	}
}

// cacheableStatus limits write-through to successful responses and 404s
// (a missing user or invite is as stable as a present one).
func cacheableStatus(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotFound
}

// cachedReply looks the canonical route up in the matching namespace.
func (s *server) cachedReply(rt routes.Route, canonical string) (cache.Entry, bool) {
	if !s.cacheable(rt, canonical) {
		return cache.Entry{}, false
	}
	if rt.Kind == routes.KindInvitesCode {
		return s.deps.Cache.GetInvites(canonical)
	}
	return s.deps.Cache.GetUsers(canonical)
}

// replyAndStore buffers the full body, stores a scrubbed snapshot in
// the matching namespace, and replies with the original headers.
func (s *server) replyAndStore(w http.ResponseWriter, resp *http.Response, rt routes.Route, canonical string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read upstream body: %v", proxy.ErrRequestIssue, err)
	}

	snapshot := resp.Header.Clone()
	cache.ScrubRatelimitHeaders(snapshot)
	if rt.Kind == routes.KindInvitesCode {
		s.deps.Cache.InsertInvites(canonical, body, snapshot, resp.StatusCode)
	} else {
		s.deps.Cache.InsertUsers(canonical, body, snapshot, resp.StatusCode)
	}

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
	return nil
}

// writeEntry synthesises a response from a frozen cache snapshot.
func writeEntry(w http.ResponseWriter, e cache.Entry) {
	copyHeader(w.Header(), e.Header)
	w.WriteHeader(e.Status)
	w.Write(e.Bytes)
}

func copyHeader(dst, src http.Header) {
	for key, vals := range src {
		dst[key] = vals
	}
}
