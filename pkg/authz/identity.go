package authz

import (
	"context"
	"net/http"
	"strings"
)

// Anonymous is the user recorded when a request carries no identity.
const Anonymous = "anonymous"

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// Identity represents the caller making a request.
type Identity struct {
	User   string
	Groups []string
	// Clients restricts the caller to these client IDs. Empty means any.
	Clients []string
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// ActorFromContext returns the user to record as created_by/updated_by, or
// nil when the request is anonymous.
func ActorFromContext(ctx context.Context) *string {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.User == "" || id.User == Anonymous {
		return nil
	}
	user := id.User
	return &user
}

// IdentityMiddleware returns HTTP middleware that extracts identity from
// X-Remote-User, X-Remote-Group and X-Remote-Client headers set by a trusted
// proxy. If X-Remote-User is missing, the user defaults to "anonymous".
// Group and client headers are comma-separated.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				user = Anonymous
			}

			id := Identity{
				User:    user,
				Groups:  splitHeader(r.Header.Get("X-Remote-Group")),
				Clients: splitHeader(r.Header.Get("X-Remote-Client")),
			}
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitHeader(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
