package authz

import (
	"os"
	"strings"
)

// AuthnMode selects how the caller's identity is established.
type AuthnMode string

const (
	// AuthnModeHeader trusts X-Remote-* headers set by a proxy.
	AuthnModeHeader AuthnMode = "header"
	// AuthnModeJWT requires an HS256 bearer token.
	AuthnModeJWT AuthnMode = "jwt"
)

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables authorization checks.
	AuthzModeNone AuthzMode = "none"
	// AuthzModeScope restricts callers to their client scopes.
	AuthzModeScope AuthzMode = "scope"
)

// Config holds authentication and authorization settings.
type Config struct {
	Authn      AuthnMode
	Authz      AuthzMode
	JWTSecret  string
	JWTIssuer  string
	AuditGroup string
}

// DefaultConfig returns header identity with authorization disabled.
func DefaultConfig() Config {
	return Config{Authn: AuthnModeHeader, Authz: AuthzModeNone}
}

// ConfigFromEnv reads DOCREGISTRY_AUTHN_MODE, DOCREGISTRY_AUTHZ_MODE,
// JWT_SECRET_KEY, DOCREGISTRY_JWT_ISSUER and DOCREGISTRY_AUDIT_GROUP.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := strings.ToLower(os.Getenv("DOCREGISTRY_AUTHN_MODE")); v != "" {
		cfg.Authn = AuthnMode(v)
	}
	if v := strings.ToLower(os.Getenv("DOCREGISTRY_AUTHZ_MODE")); v != "" {
		cfg.Authz = AuthzMode(v)
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET_KEY")
	cfg.JWTIssuer = os.Getenv("DOCREGISTRY_JWT_ISSUER")
	cfg.AuditGroup = os.Getenv("DOCREGISTRY_AUDIT_GROUP")
	return cfg
}

// NewAuthorizer returns the Authorizer selected by cfg.
func NewAuthorizer(cfg Config) Authorizer {
	if cfg.Authz == AuthzModeScope {
		return &ScopeAuthorizer{AuditGroup: cfg.AuditGroup}
	}
	return &NoopAuthorizer{}
}
