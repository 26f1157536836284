// Package upstream builds the shared pooled HTTP client used for all
// forwarded requests.
package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// NewTransport returns a tuned *http.Transport with connection pooling
// and cached DNS resolution. HTTP/2 is attempted unless disabled; the
// upstream is always reached over TLS.
func NewTransport(resolver *dnscache.Resolver, disableHTTP2 bool) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   !disableHTTP2,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if disableHTTP2 {
		// A non-nil, empty map disables the transport's automatic
		// HTTP/2 configuration.
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// NewClient wraps NewTransport in an *http.Client shared by every
// request task. The client imposes no timeout; cancellation comes from
// the inbound request context.
func NewClient(disableHTTP2 bool) *http.Client {
	resolver := &dnscache.Resolver{}
	return &http.Client{Transport: NewTransport(resolver, disableHTTP2)}
}
