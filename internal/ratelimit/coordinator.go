// Package ratelimit implements the per-token rate-limit coordinator that
// gates upstream request issuance on bucketed, header-driven state.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	proxy "github.com/eugener/shadowfax/internal"
	"github.com/eugener/shadowfax/internal/routes"
)

// Coordinator owns all bucket state for a single bearer token. Tickets
// are issued in strict FIFO order per bucket; a scope=global 429 gates
// every bucket of the token until its retry window elapses.
type Coordinator struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	closed  bool

	// globalUntil is the global gate deadline in UnixNano, 0 when open.
	// Atomic so buckets can consult it without a coordinator lock.
	globalUntil atomic.Int64
}

// NewCoordinator returns a Coordinator with no known bucket state.
func NewCoordinator() *Coordinator {
	return &Coordinator{buckets: make(map[string]*bucket)}
}

// waiter is one parked Acquire call, queued FIFO in its bucket.
type waiter struct {
	ready     chan struct{}
	granted   bool // issuance was performed on the waiter's behalf
	cancelled bool // tombstone: skipped by the pump
}

// bucket holds rate-limit state for one bucket key.
type bucket struct {
	coord *Coordinator
	key   string

	mu         sync.Mutex
	known      bool // a response has populated limit/remaining
	limit      int
	remaining  int
	resetAt    time.Time
	inflight   int
	waiters    []*waiter
	upstreamID string // last X-RateLimit-Bucket value, drift diagnostics only

	timer   *time.Timer
	timerAt time.Time
}

// Ticket is permission to issue one upstream request against a bucket.
// Report must be called exactly once after the response (or failure).
type Ticket struct {
	b    *bucket
	done atomic.Bool
}

// Acquire suspends the caller until both the token's global gate and the
// route's bucket permit issuance. Tickets for the same bucket are granted
// in strict FIFO arrival order. Cancelling ctx removes the caller from
// the queue without disturbing other waiters.
func (c *Coordinator) Acquire(ctx context.Context, rt routes.Route) (*Ticket, error) {
	b, err := c.bucket(rt.BucketKey())
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if len(b.waiters) == 0 && b.issuableLocked(time.Now()) {
		b.issueLocked()
		b.mu.Unlock()
		return &Ticket{b: b}, nil
	}
	w := &waiter{ready: make(chan struct{})}
	b.waiters = append(b.waiters, w)
	b.armTimerLocked(time.Now())
	b.mu.Unlock()

	select {
	case <-w.ready:
		if !w.granted {
			return nil, fmt.Errorf("%w: coordinator shut down", proxy.ErrAcquiringTicket)
		}
		return &Ticket{b: b}, nil
	case <-ctx.Done():
		b.mu.Lock()
		if w.granted {
			// A grant raced the cancellation: hand the slot back.
			b.inflight--
			if b.known {
				b.remaining++
			}
			b.pumpLocked(time.Now())
		} else {
			w.cancelled = true
		}
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Report ingests the upstream response headers for this ticket, updates
// bucket (and possibly global) state, and wakes eligible waiters.
// header is nil when forwarding failed before a response arrived.
// Calls after the first are no-ops.
func (t *Ticket) Report(status int, header http.Header) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	b := t.b
	now := time.Now()

	if header != nil {
		if wait, ok := globalRetryAfter(status, header); ok {
			b.coord.setGlobal(now.Add(wait))
		}
	}

	b.mu.Lock()
	b.inflight--
	if header != nil {
		if h, ok := parseBucketHeaders(header, now); ok {
			b.known = true
			b.limit = h.limit
			b.remaining = h.remaining
			if !h.resetAt.IsZero() {
				b.resetAt = h.resetAt
			}
			if h.bucket != "" && h.bucket != b.upstreamID {
				if b.upstreamID != "" {
					slog.LogAttrs(context.Background(), slog.LevelDebug, "upstream bucket drift",
						slog.String("local", b.key),
						slog.String("upstream", h.bucket),
					)
				}
				b.upstreamID = h.bucket
			}
		}
		// A 429 scoped to user/shared is already reflected in the
		// bucket headers above; nothing extra to do here.
	}
	b.pumpLocked(now)
	b.mu.Unlock()
}

// Close shuts the coordinator down. Parked acquirers fail with
// ErrAcquiringTicket; subsequent Acquire calls fail immediately.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	buckets := make([]*bucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		buckets = append(buckets, b)
	}
	c.mu.Unlock()

	for _, b := range buckets {
		b.mu.Lock()
		for _, w := range b.waiters {
			if !w.cancelled {
				close(w.ready)
			}
		}
		b.waiters = nil
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.mu.Unlock()
	}
}

// bucket returns the bucket for key, creating it on first use. Buckets
// live for the coordinator's lifetime; cardinality is bounded by the
// token's active routes.
func (c *Coordinator) bucket(key string) (*bucket, error) {
	c.mu.RLock()
	b, ok := c.buckets[key]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: coordinator shut down", proxy.ErrAcquiringTicket)
	}
	if ok {
		return b, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: coordinator shut down", proxy.ErrAcquiringTicket)
	}
	if b, ok := c.buckets[key]; ok {
		return b, nil
	}
	b = &bucket{coord: c, key: key}
	c.buckets[key] = b
	return b, nil
}

// globalDeadline returns the global gate deadline, or zero when open.
func (c *Coordinator) globalDeadline(now time.Time) time.Time {
	v := c.globalUntil.Load()
	if v == 0 {
		return time.Time{}
	}
	at := time.Unix(0, v)
	if !now.Before(at) {
		return time.Time{}
	}
	return at
}

// setGlobal extends the global gate to until and schedules a pump of
// every bucket once the gate opens. Never shortens an existing gate.
func (c *Coordinator) setGlobal(until time.Time) {
	for {
		cur := c.globalUntil.Load()
		if cur >= until.UnixNano() {
			return
		}
		if c.globalUntil.CompareAndSwap(cur, until.UnixNano()) {
			break
		}
	}
	time.AfterFunc(time.Until(until), c.pumpAll)
}

// pumpAll wakes eligible waiters in every bucket. Called when the
// global gate expires.
func (c *Coordinator) pumpAll() {
	c.mu.RLock()
	buckets := make([]*bucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		buckets = append(buckets, b)
	}
	c.mu.RUnlock()

	now := time.Now()
	for _, b := range buckets {
		b.mu.Lock()
		b.pumpLocked(now)
		b.mu.Unlock()
	}
}

// issuableLocked reports whether a ticket may issue right now. It
// performs the time-based window refill as a side effect.
func (b *bucket) issuableLocked(now time.Time) bool {
	if !b.coord.globalDeadline(now).IsZero() {
		return false
	}
	if !b.known {
		// Optimistic probe: a single request goes out to learn the
		// bucket's limits; everyone else waits for its report.
		return b.inflight == 0
	}
	if b.remaining > 0 {
		return true
	}
	if !b.resetAt.IsZero() && !now.Before(b.resetAt) {
		// Window elapsed without a fresher report.
		b.remaining = b.limit
		b.resetAt = time.Time{}
		return b.remaining > 0
	}
	return false
}

// issueLocked records one issuance: optimistic decrement plus the
// in-flight count the probe logic keys off.
func (b *bucket) issueLocked() {
	b.inflight++
	if b.known {
		b.remaining--
	}
}

// pumpLocked grants tickets to queued waiters, head first, as long as
// issuance is permitted. Tombstoned (cancelled) waiters are skipped.
func (b *bucket) pumpLocked(now time.Time) {
	for len(b.waiters) > 0 {
		w := b.waiters[0]
		if w.cancelled {
			b.waiters = b.waiters[1:]
			continue
		}
		if !b.issuableLocked(now) {
			break
		}
		b.waiters = b.waiters[1:]
		b.issueLocked()
		w.granted = true
		close(w.ready)
	}
	b.armTimerLocked(now)
}

// armTimerLocked schedules a wake-up at the earliest deadline that could
// unblock the queue: the bucket's reset or the global gate. No timer is
// needed when the queue is empty or when only an in-flight report can
// unblock it.
func (b *bucket) armTimerLocked(now time.Time) {
	if len(b.waiters) == 0 {
		return
	}
	var at time.Time
	if b.known && b.remaining == 0 && b.resetAt.After(now) {
		at = b.resetAt
	}
	if g := b.coord.globalDeadline(now); !g.IsZero() && (at.IsZero() || g.After(at)) {
		at = g
	}
	if at.IsZero() || at.Equal(b.timerAt) {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerAt = at
	b.timer = time.AfterFunc(at.Sub(now), func() {
		b.mu.Lock()
		b.timerAt = time.Time{}
		b.pumpLocked(time.Now())
		b.mu.Unlock()
	})
}
