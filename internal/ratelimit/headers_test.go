package ratelimit

import (
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestParseBucketHeaders(t *testing.T) {
	t.Parallel()
	now := time.Now()

	t.Run("full set", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Ratelimit-Limit", "5")
		h.Set("X-Ratelimit-Remaining", "3")
		h.Set("X-Ratelimit-Reset-After", "2.5")
		h.Set("X-Ratelimit-Bucket", "abcd1234")

		got, ok := parseBucketHeaders(h, now)
		if !ok {
			t.Fatal("expected parse to succeed")
		}
		if got.limit != 5 || got.remaining != 3 || got.bucket != "abcd1234" {
			t.Errorf("parsed %+v", got)
		}
		want := now.Add(2500 * time.Millisecond)
		if d := got.resetAt.Sub(want); d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("resetAt off by %v", d)
		}
	})

	t.Run("missing limit", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Ratelimit-Remaining", "3")
		if _, ok := parseBucketHeaders(h, now); ok {
			t.Error("parse should fail without a limit header")
		}
	})

	t.Run("missing remaining", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Ratelimit-Limit", "5")
		if _, ok := parseBucketHeaders(h, now); ok {
			t.Error("parse should fail without a remaining header")
		}
	})

	t.Run("garbage values", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Ratelimit-Limit", "five")
		h.Set("X-Ratelimit-Remaining", "3")
		if _, ok := parseBucketHeaders(h, now); ok {
			t.Error("parse should fail on a non-numeric limit")
		}
	})

	t.Run("later of reset and reset-after wins", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Ratelimit-Limit", "5")
		h.Set("X-Ratelimit-Remaining", "0")
		// Absolute reset 1s out, relative 10s out: relative wins.
		h.Set("X-Ratelimit-Reset", strconvUnix(now.Add(time.Second)))
		h.Set("X-Ratelimit-Reset-After", "10")
		got, ok := parseBucketHeaders(h, now)
		if !ok {
			t.Fatal("expected parse to succeed")
		}
		if got.resetAt.Before(now.Add(9 * time.Second)) {
			t.Errorf("resetAt = %v, want ~now+10s", got.resetAt)
		}

		// Reversed: absolute 10s out beats relative 1s.
		h.Set("X-Ratelimit-Reset", strconvUnix(now.Add(10*time.Second)))
		h.Set("X-Ratelimit-Reset-After", "1")
		got, _ = parseBucketHeaders(h, now)
		if got.resetAt.Before(now.Add(9 * time.Second)) {
			t.Errorf("resetAt = %v, want ~now+10s", got.resetAt)
		}
	})
}

// strconvUnix renders a time as fractional UNIX seconds, the wire form
// of the absolute reset header ("1470173023.123").
func strconvUnix(at time.Time) string {
	return strconv.FormatFloat(float64(at.UnixNano())/float64(time.Second), 'f', 3, 64)
}

func TestGlobalRetryAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		scope  string
		global string
		retry  string
		want   time.Duration
		ok     bool
	}{
		{"scope global", 429, "global", "", "3", 3 * time.Second, true},
		{"global flag", 429, "", "true", "1.5", 1500 * time.Millisecond, true},
		{"user scope", 429, "user", "", "3", 0, false},
		{"shared scope", 429, "shared", "", "3", 0, false},
		{"not a 429", 200, "global", "", "3", 0, false},
		{"missing retry-after", 429, "global", "", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tt.scope != "" {
				h.Set("X-Ratelimit-Scope", tt.scope)
			}
			if tt.global != "" {
				h.Set("X-Ratelimit-Global", tt.global)
			}
			if tt.retry != "" {
				h.Set("Retry-After", tt.retry)
			}
			got, ok := globalRetryAfter(tt.status, h)
			if ok != tt.ok || got != tt.want {
				t.Errorf("globalRetryAfter(%d) = (%v, %v), want (%v, %v)",
					tt.status, got, ok, tt.want, tt.ok)
			}
		})
	}
}
