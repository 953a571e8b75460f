package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/elemscope/idgen"
	"github.com/hazyhaar/elemscope/kit"
)

// RequestIDs is the generator used by RequestID.
var RequestIDs = idgen.Prefixed("req_", idgen.Default)

// RequestID assigns an ID to each request and injects it into the context,
// the response headers and a per-request structured logger. An incoming
// X-Request-ID header is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = RequestIDs()
		}

		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		w.Header().Set("X-Request-ID", id)

		logger := slog.Default().With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
