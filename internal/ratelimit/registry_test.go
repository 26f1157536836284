package ratelimit

import "testing"

func TestRegistryGetOrCreate(t *testing.T) {
	t.Parallel()
	r := NewRegistry("Bot default-token")

	// Same token maps to the same coordinator.
	a, bearer := r.GetOrCreate("Bot token-a")
	if bearer != "Bot token-a" {
		t.Errorf("bearer = %q, want the caller's token", bearer)
	}
	b, _ := r.GetOrCreate("Bot token-a")
	if a != b {
		t.Error("same token returned distinct coordinators")
	}

	// Distinct tokens get independent coordinators.
	c, _ := r.GetOrCreate("Bot token-b")
	if c == a {
		t.Error("distinct tokens share a coordinator")
	}
}

func TestRegistryDefaultToken(t *testing.T) {
	t.Parallel()
	r := NewRegistry("Bot default-token")

	c, bearer := r.GetOrCreate("")
	if bearer != "Bot default-token" {
		t.Errorf("bearer = %q, want the default token", bearer)
	}

	// The default token and an explicit identical token are one identity.
	d, _ := r.GetOrCreate("Bot default-token")
	if c != d {
		t.Error("default-token requests split across coordinators")
	}
}

func TestRegistryClose(t *testing.T) {
	t.Parallel()
	r := NewRegistry("Bot default-token")
	c, _ := r.GetOrCreate("")
	r.Close()

	if _, err := c.Acquire(t.Context(), testRoute()); err == nil {
		t.Error("acquire succeeded on a closed registry's coordinator")
	}
}
