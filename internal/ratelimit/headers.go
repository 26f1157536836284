package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Rate-limit bookkeeping headers sent by the upstream.
const (
	headerBucket     = "X-Ratelimit-Bucket"
	headerLimit      = "X-Ratelimit-Limit"
	headerRemaining  = "X-Ratelimit-Remaining"
	headerReset      = "X-Ratelimit-Reset"
	headerResetAfter = "X-Ratelimit-Reset-After"
	headerScope      = "X-Ratelimit-Scope"
	headerGlobal     = "X-Ratelimit-Global"
	headerRetryAfter = "Retry-After"
)

// bucketHeaders is the parsed per-bucket state from one upstream response.
type bucketHeaders struct {
	limit     int
	remaining int
	resetAt   time.Time
	bucket    string // upstream's opaque bucket id, informational only
}

// parseBucketHeaders extracts per-bucket rate-limit state. ok is false
// when the response carries no usable limit information (e.g. 5xx).
func parseBucketHeaders(h http.Header, now time.Time) (bucketHeaders, bool) {
	limitRaw := h.Get(headerLimit)
	remainingRaw := h.Get(headerRemaining)
	if limitRaw == "" || remainingRaw == "" {
		return bucketHeaders{}, false
	}
	limit, err := strconv.Atoi(limitRaw)
	if err != nil {
		return bucketHeaders{}, false
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return bucketHeaders{}, false
	}

	out := bucketHeaders{
		limit:     limit,
		remaining: remaining,
		bucket:    h.Get(headerBucket),
	}

	// Reset is UNIX seconds, Reset-After a relative float. When both are
	// present the later wins.
	if v, err := strconv.ParseFloat(h.Get(headerReset), 64); err == nil && v > 0 {
		out.resetAt = unixFloat(v)
	}
	if v, err := strconv.ParseFloat(h.Get(headerResetAfter), 64); err == nil && v > 0 {
		if at := now.Add(durationSeconds(v)); at.After(out.resetAt) {
			out.resetAt = at
		}
	}
	return out, true
}

// globalRetryAfter returns the wait imposed by a scope=global 429, or
// false when the response is not a global limit.
func globalRetryAfter(status int, h http.Header) (time.Duration, bool) {
	if status != http.StatusTooManyRequests {
		return 0, false
	}
	if h.Get(headerScope) != "global" && h.Get(headerGlobal) != "true" {
		return 0, false
	}
	v, err := strconv.ParseFloat(h.Get(headerRetryAfter), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return durationSeconds(v), true
}

func durationSeconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func unixFloat(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
