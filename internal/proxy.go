// Package proxy defines domain types and interfaces for the shadowfax
// Discord proxy. This package has no project imports -- it is the
// dependency root.
package proxy

import (
	"context"
	"net/http"
)

// --- Method ---

// Method is the subset of HTTP methods the upstream accepts.
type Method uint8

const (
	MethodGet Method = iota
	MethodPut
	MethodPost
	MethodPatch
	MethodDelete
)

var methodNames = [...]string{"GET", "PUT", "POST", "PATCH", "DELETE"}

// String returns the canonical HTTP spelling of the method.
func (m Method) String() string { return methodNames[m] }

// MethodFromHTTP maps an inbound HTTP method to a Method.
// Any other method is rejected before path classification.
func MethodFromHTTP(method string) (Method, error) {
	switch method {
	case http.MethodGet:
		return MethodGet, nil
	case http.MethodPut:
		return MethodPut, nil
	case http.MethodPost:
		return MethodPost, nil
	case http.MethodPatch:
		return MethodPatch, nil
	case http.MethodDelete:
		return MethodDelete, nil
	default:
		return 0, ErrInvalidMethod
	}
}

// --- Telemetry ---

// Telemetry is the metrics sink consumed by the request pipeline.
// Implementations may no-op; the pipeline never checks for nil.
type Telemetry interface {
	// InFlightAdd adjusts the in-flight request gauge for a method/route pair.
	InFlightAdd(method, route string, delta float64)
	// ObserveUpstream records one upstream round-trip duration in seconds.
	ObserveUpstream(method, route, status, scope string, seconds float64)
	// SetCacheSizes publishes the current cache namespace sizes.
	SetCacheSizes(users, invites int)
}

// NopTelemetry discards all metrics.
type NopTelemetry struct{}

func (NopTelemetry) InFlightAdd(string, string, float64)                     {}
func (NopTelemetry) ObserveUpstream(string, string, string, string, float64) {}
func (NopTelemetry) SetCacheSizes(int, int)                                  {}

// --- Request context ---

type contextKey int

const requestIDKey contextKey = iota

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
