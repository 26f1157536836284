package proxy

import "errors"

// Sentinel errors for the proxy domain. The server maps each to an HTTP
// status when rendering a response.
var (
	ErrInvalidMethod   = errors.New("invalid method")   // 405
	ErrInvalidPath     = errors.New("invalid path")     // 400
	ErrAcquiringTicket = errors.New("acquiring ticket") // 500
	ErrInvalidURI      = errors.New("invalid uri")      // 500
	ErrRequestIssue    = errors.New("request issue")    // 502
)
