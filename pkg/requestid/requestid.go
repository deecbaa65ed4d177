// Package requestid assigns every request an identifier so log lines for
// one purchase flow can be correlated across components.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header carries the request ID in and out of the service. Incoming
// values are trusted as-is so upstream proxies can stitch traces.
const Header = "X-Request-ID"

type ctxKey struct{}

// Middleware ensures a request ID exists, stores it in the context and
// echoes it back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// WithRequestID returns a context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request ID, or "" when none was set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
