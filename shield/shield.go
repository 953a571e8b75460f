// Package shield provides the HTTP middleware stack of the inspector API:
// security headers, body limits, request IDs and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody bounds request bodies. Inspector payloads are small JSON
// documents.
const DefaultMaxBody = 1 << 20

// DefaultStack returns the standard middleware stack.
// Middleware is ordered: HeadToGet → SecurityHeaders → MaxBody → RequestID.
func DefaultStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		RequestID,
	}
}
