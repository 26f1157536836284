// Package telemetry provides observability primitives for the proxy.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements the proxy.Telemetry interface on Prometheus
// collectors. All metric names are prefixed by the configured key.
type Metrics struct {
	trackInProgress bool
	idleTimeout     time.Duration
	lastObserve     atomic.Int64 // UnixNano of the last histogram observation

	InProgress       *prometheus.GaugeVec
	UpstreamDuration *prometheus.HistogramVec
	CacheEntries     *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors. metricKey becomes
// the namespace prefix; trackInProgress gates the in-flight gauge;
// idleTimeout controls histogram idle resets (0 disables them).
func NewMetrics(reg prometheus.Registerer, metricKey string, trackInProgress bool, idleTimeout time.Duration) *Metrics {
	m := &Metrics{
		trackInProgress: trackInProgress,
		idleTimeout:     idleTimeout,

		InProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricKey,
			Name:      "in_progress",
			Help:      "Requests currently in flight, by method and route.",
		}, []string{"method", "route"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       metricKey,
			Name:                            "upstream_duration_seconds",
			Help:                            "Upstream round-trip duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "route", "status", "scope"}),

		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricKey,
			Name:      "cache_entries",
			Help:      "Current response cache sizes by namespace.",
		}, []string{"namespace"}),
	}

	reg.MustRegister(m.InProgress, m.UpstreamDuration, m.CacheEntries)
	return m
}

// InFlightAdd adjusts the in-flight gauge. No-op unless in-progress
// tracking is enabled.
func (m *Metrics) InFlightAdd(method, route string, delta float64) {
	if !m.trackInProgress {
		return
	}
	m.InProgress.WithLabelValues(method, route).Add(delta)
}

// ObserveUpstream records one upstream round-trip.
func (m *Metrics) ObserveUpstream(method, route, status, scope string, seconds float64) {
	m.lastObserve.Store(time.Now().UnixNano())
	m.UpstreamDuration.WithLabelValues(method, route, status, scope).Observe(seconds)
}

// SetCacheSizes publishes the cache namespace sizes.
func (m *Metrics) SetCacheSizes(users, invites int) {
	m.CacheEntries.WithLabelValues("users").Set(float64(users))
	m.CacheEntries.WithLabelValues("invites").Set(float64(invites))
}

// Run clears idle histogram series: when no observation has arrived for
// the idle timeout, accumulated label sets are dropped so scrapes do
// not carry stale series forever. Blocks until ctx is cancelled.
func (m *Metrics) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.idleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			last := m.lastObserve.Load()
			if last != 0 && now.Sub(time.Unix(0, last)) >= m.idleTimeout {
				m.UpstreamDuration.Reset()
				m.lastObserve.Store(0)
			}
		}
	}
}
