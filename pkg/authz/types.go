// Package authz identifies the caller of a request and decides whether that
// caller may act on a client's schemas, documents, or the audit trail.
package authz

import "context"

// Resource names for authorization checks.
const (
	ResourceSchemas   = "schemas"
	ResourceDocuments = "documents"
	ResourceAudit     = "audit"
	ResourceJobs      = "jobs"
)

// Verb names for authorization checks.
const (
	VerbGet    = "get"
	VerbList   = "list"
	VerbCreate = "create"
	VerbUpdate = "update"
	VerbDelete = "delete"
)

// AuthzRequest represents an authorization check.
type AuthzRequest struct {
	Identity Identity
	Resource string
	Verb     string
	ClientID string // Empty when the request is not scoped to one client.
}

// Authorizer checks whether a caller is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) (bool, error)
}
