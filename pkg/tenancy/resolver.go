package tenancy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ClientHeader may carry the client ID on routes without one in the path.
const ClientHeader = "X-Client-ID"

// ErrNoTenant is returned by resolvers when the request names no client.
var ErrNoTenant = errors.New("no client id in request")

// TenantResolver resolves the tenant context from an HTTP request.
type TenantResolver interface {
	Resolve(r *http.Request) (TenantContext, error)
}

// PathResolver reads the client ID from a chi URL parameter.
type PathResolver struct {
	Param string
}

// Resolve implements TenantResolver.
func (p PathResolver) Resolve(r *http.Request) (TenantContext, error) {
	id := chi.URLParam(r, p.Param)
	if id == "" {
		return TenantContext{}, ErrNoTenant
	}
	if err := ValidateClientID(id); err != nil {
		return TenantContext{}, err
	}
	return TenantContext{ClientID: id}, nil
}

// HeaderResolver reads the client ID from the X-Client-ID header.
type HeaderResolver struct{}

// Resolve implements TenantResolver.
func (HeaderResolver) Resolve(r *http.Request) (TenantContext, error) {
	id := strings.TrimSpace(r.Header.Get(ClientHeader))
	if id == "" {
		return TenantContext{}, ErrNoTenant
	}
	if err := ValidateClientID(id); err != nil {
		return TenantContext{}, err
	}
	return TenantContext{ClientID: id}, nil
}

// ChainResolver tries each resolver in order and returns the first tenant
// found. Malformed IDs stop the chain.
type ChainResolver []TenantResolver

// Resolve implements TenantResolver.
func (c ChainResolver) Resolve(r *http.Request) (TenantContext, error) {
	for _, res := range c {
		tc, err := res.Resolve(r)
		if errors.Is(err, ErrNoTenant) {
			continue
		}
		return tc, err
	}
	return TenantContext{}, ErrNoTenant
}

// ValidateClientID checks that id is a UUID string.
func ValidateClientID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid client_id format: %s", id)
	}
	return nil
}

// ValidateVendorID checks that id is a UUID string.
func ValidateVendorID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid vendor_id format: %s", id)
	}
	return nil
}
