package authz

import (
	"context"
	"slices"
)

// ScopeAuthorizer limits callers to the clients named in their identity.
// An identity without client scopes is unrestricted. When AuditGroup is set,
// only members of that group may read the audit trail.
//
// Requests that do not name a client pass for scoped identities, except
// listings that would span every client. Handlers that resolve the owning
// client later (a schema looked up by ID) check again with it.
type ScopeAuthorizer struct {
	AuditGroup string
}

// Authorize implements Authorizer.
func (s *ScopeAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	if req.Resource == ResourceAudit {
		return s.AuditGroup == "" || slices.Contains(req.Identity.Groups, s.AuditGroup), nil
	}
	if len(req.Identity.Clients) == 0 {
		return true, nil
	}
	if req.ClientID == "" {
		return req.Verb != VerbList, nil
	}
	return slices.Contains(req.Identity.Clients, req.ClientID), nil
}
