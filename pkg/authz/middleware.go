package authz

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/tenancy"
)

// Check authorizes the caller in ctx for mapping on clientID. It returns a
// Forbidden error when denied.
func Check(ctx context.Context, authorizer Authorizer, clientID string, mapping ResourceMapping) error {
	id, _ := IdentityFromContext(ctx)
	allowed, err := authorizer.Authorize(ctx, AuthzRequest{
		Identity: id,
		Resource: mapping.Resource,
		Verb:     mapping.Verb,
		ClientID: clientID,
	})
	if err != nil {
		return errs.Wrap(err, errs.CodeInternal, "authorization check failed")
	}
	if !allowed {
		return errs.Newf(errs.CodeForbidden, "insufficient permissions for %s/%s", mapping.Resource, mapping.Verb)
	}
	return nil
}

// RequirePermission returns middleware that enforces a specific resource/verb
// permission check against the client resolved by tenancy middleware.
func RequirePermission(authorizer Authorizer, resource, verb string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapping := ResourceMapping{Resource: resource, Verb: verb}
			if !check(w, r, authorizer, mapping) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthzMiddleware returns middleware that maps the HTTP method and URL path
// to a (resource, verb) pair and performs the authorization check. Mount it
// after tenancy middleware so path-scoped client IDs are visible.
func AuthzMiddleware(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapping := MapRequest(r.Method, r.URL.Path)

			// If we cannot map the request, deny by default.
			if mapping == UnknownMapping {
				writeDenied(w, http.StatusForbidden, "unknown endpoint, access denied")
				return
			}
			if !check(w, r, authorizer, mapping) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func check(w http.ResponseWriter, r *http.Request, authorizer Authorizer, mapping ResourceMapping) bool {
	clientID := tenancy.ClientIDFromContext(r.Context())
	err := Check(r.Context(), authorizer, clientID, mapping)
	switch {
	case err == nil:
		return true
	case errs.HasCode(err, errs.CodeForbidden):
		msg := fmt.Sprintf("insufficient permissions for %s/%s", mapping.Resource, mapping.Verb)
		if clientID != "" {
			msg += " on client " + clientID
		}
		writeDenied(w, http.StatusForbidden, msg)
	default:
		writeDenied(w, http.StatusInternalServerError, "authorization check failed")
	}
	return false
}
