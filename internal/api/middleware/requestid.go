// Package middleware holds the HTTP middleware chain of the sampleflow API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID carries the request correlation id.
const HeaderRequestID = "X-Request-ID"

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyUser      contextKey = "user"
)

// RequestID reuses an incoming X-Request-ID or assigns a fresh uuid, echoes it
// in the response and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}
