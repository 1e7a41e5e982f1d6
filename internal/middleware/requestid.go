// Package middleware provides HTTP middleware for the advisory API: request
// IDs, tenant resolution, rate limiting, and idempotent replay.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/synod-labs/synod/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID accepts the caller's X-Request-ID or mints a UUID when absent.
// The ID rides the request context so log lines and published advisory
// events correlate, and is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
