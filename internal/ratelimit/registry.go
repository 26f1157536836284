package ratelimit

import "sync"

// Registry maps bearer tokens to their Coordinators. Coordinators are
// created on demand and live for the process lifetime; cardinality is
// bounded by the number of distinct tokens seen.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[string]*Coordinator
	defaultToken string
}

// NewRegistry creates a Registry. defaultToken is used for requests
// that carry no Authorization header.
func NewRegistry(defaultToken string) *Registry {
	return &Registry{
		coordinators: make(map[string]*Coordinator),
		defaultToken: defaultToken,
	}
}

// GetOrCreate returns the Coordinator for the given Authorization value
// and the effective bearer to send upstream. An empty value falls back
// to the configured default token.
func (r *Registry) GetOrCreate(authorization string) (*Coordinator, string) {
	token := authorization
	if token == "" {
		token = r.defaultToken
	}

	r.mu.RLock()
	c, ok := r.coordinators[token]
	r.mu.RUnlock()
	if ok {
		return c, token
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if c, ok := r.coordinators[token]; ok {
		return c, token
	}
	c = NewCoordinator()
	r.coordinators[token] = c
	return c, token
}

// Close shuts down every coordinator. Used by tests and shutdown paths.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coordinators {
		c.Close()
	}
}
