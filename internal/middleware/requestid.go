package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationIDKey is the context key for correlation IDs
type contextKey string

const CorrelationIDKey = contextKey("correlation-id")

// CorrelationID is a middleware that generates or propagates correlation IDs.
// It checks for an existing X-Correlation-ID header and generates a new UUID
// if not present. Every audit event produced while handling the request reuses
// this ID, so one inbound call can be traced across all security decisions.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Correlation-ID")
		if corrID == "" {
			corrID = uuid.New().String()
		}

		// Add to response header
		w.Header().Set("X-Correlation-ID", corrID)

		// Add to request context
		ctx := context.WithValue(r.Context(), CorrelationIDKey, corrID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID extracts the correlation ID from the context.
// Returns empty string if not found.
func GetCorrelationID(ctx context.Context) string {
	if corrID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return corrID
	}
	return ""
}
