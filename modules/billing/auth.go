package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Actor is the authenticated caller, resolved by the host's middleware.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

type actorCtxKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext returns the actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(Actor)
	return actor, ok
}

// ActorMiddleware builds the bridge from the host's authentication to
// this module: resolve turns a request into an Actor, or reports none.
func ActorMiddleware(resolve func(r *http.Request) (Actor, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := resolve(r); ok {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
