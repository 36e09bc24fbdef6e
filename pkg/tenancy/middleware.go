package tenancy

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Middleware resolves the tenant with resolver and stores it in the request
// context. Requests naming no client pass through untouched unless required
// is set; malformed client IDs are rejected with 400 in the response
// envelope format.
func Middleware(resolver TenantResolver, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r)
			switch {
			case errors.Is(err, ErrNoTenant) && !required:
				next.ServeHTTP(w, r)
				return
			case err != nil:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": err.Error(),
					"data":    nil,
				})
				return
			}

			ctx := WithTenant(r.Context(), tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
