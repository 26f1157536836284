// Package cache provides the short-TTL response cache for idempotent
// read routes (user and invite lookups). Entries are frozen response
// snapshots; a background reaper evicts anything older than the TTL.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	proxy "github.com/eugener/shadowfax/internal"
)

// reapInterval is how often the reaper sweeps both namespaces.
const reapInterval = 120 * time.Second

// Entry is a frozen upstream response. The stored header never contains
// per-bucket rate-limit bookkeeping; callers scrub it before insertion
// so a replayed hit cannot mislead clients about remaining budget.
type Entry struct {
	Bytes    []byte
	Header   http.Header
	Status   int
	cachedAt time.Time
}

// namespace is one RW-locked TTL map. Readers never block each other;
// a stale entry observed by a reader is a miss and is left for the
// reaper to reclaim.
type namespace struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func (ns *namespace) get(key string, ttl time.Duration) (Entry, bool) {
	ns.mu.RLock()
	e, ok := ns.entries[key]
	ns.mu.RUnlock()
	if !ok || time.Since(e.cachedAt) >= ttl {
		return Entry{}, false
	}
	return e, true
}

func (ns *namespace) insert(key string, e Entry) {
	ns.mu.Lock()
	ns.entries[key] = e
	ns.mu.Unlock()
}

func (ns *namespace) sweep(ttl time.Duration) {
	now := time.Now()
	ns.mu.Lock()
	for k, e := range ns.entries {
		if now.Sub(e.cachedAt) >= ttl {
			delete(ns.entries, k)
		}
	}
	ns.mu.Unlock()
}

func (ns *namespace) size() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.entries)
}

// Cache holds the two response namespaces.
type Cache struct {
	ttl       time.Duration
	users     namespace
	invites   namespace
	telemetry proxy.Telemetry
}

// New creates a Cache with the given TTL. Run must be started for
// entries to be reaped.
func New(ttl time.Duration, telemetry proxy.Telemetry) *Cache {
	return &Cache{
		ttl:       ttl,
		users:     namespace{entries: make(map[string]Entry)},
		invites:   namespace{entries: make(map[string]Entry)},
		telemetry: telemetry,
	}
}

// GetUsers returns a fresh users entry for the canonical route key.
func (c *Cache) GetUsers(key string) (Entry, bool) { return c.users.get(key, c.ttl) }

// GetInvites returns a fresh invites entry for the canonical route key.
func (c *Cache) GetInvites(key string) (Entry, bool) { return c.invites.get(key, c.ttl) }

// InsertUsers stores a users snapshot, overwriting any previous entry.
func (c *Cache) InsertUsers(key string, bytes []byte, header http.Header, status int) {
	c.users.insert(key, Entry{Bytes: bytes, Header: header, Status: status, cachedAt: time.Now()})
}

// InsertInvites stores an invites snapshot, overwriting any previous entry.
func (c *Cache) InsertInvites(key string, bytes []byte, header http.Header, status int) {
	c.invites.insert(key, Entry{Bytes: bytes, Header: header, Status: status, cachedAt: time.Now()})
}

// Status renders the current namespace sizes for diagnostics.
func (c *Cache) Status() []byte {
	return fmt.Appendf(nil, `{"users": %d, "invites": %d}`, c.users.size(), c.invites.size())
}

// Run sweeps both namespaces every two minutes until ctx is cancelled.
// Each namespace's write lock is held only for its own sweep.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reap()
		}
	}
}

// reap evicts expired entries and publishes the resulting sizes.
func (c *Cache) reap() {
	c.invites.sweep(c.ttl)
	c.users.sweep(c.ttl)
	users, invites := c.users.size(), c.invites.size()
	c.telemetry.SetCacheSizes(users, invites)
	slog.LogAttrs(context.Background(), slog.LevelDebug, "cache reaped",
		slog.Int("users", users),
		slog.Int("invites", invites),
	)
}

// ScrubRatelimitHeaders removes the per-bucket bookkeeping headers from
// h. Called on the snapshot header before a cache insert.
func ScrubRatelimitHeaders(h http.Header) {
	h.Del("X-Ratelimit-Bucket")
	h.Del("X-Ratelimit-Remaining")
	h.Del("X-Ratelimit-Reset")
	h.Del("X-Ratelimit-Reset-After")
}
