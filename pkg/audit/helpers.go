package audit

import (
	"net/http"
	"strings"
)

// apiSegments returns the path segments after /api/v1, or nil for paths
// outside the API.
func apiSegments(path string) []string {
	path = strings.TrimRight(path, "/")
	idx := strings.Index(path, "/api/v1/")
	if idx < 0 {
		return nil
	}
	return strings.Split(path[idx+len("/api/v1/"):], "/")
}

// extractResourceType returns the first segment for known API resources.
func extractResourceType(path string) string {
	segs := apiSegments(path)
	if len(segs) == 0 {
		return ""
	}
	switch segs[0] {
	case "client-schemas", "documents", "jobs", "audit":
		return segs[0]
	}
	return ""
}

type pathIDs struct {
	clientID   string
	collection string
	resourceID string
}

// extractPathIDs pulls identifiers out of the path parameter positions.
//
//	/client-schemas/{schemaID}[/activate|/revalidate]
//	/client-schemas/client/{clientID}/{schemaName}
//	/documents/{clientID}/{collection}[/{documentID}|/validate]
//	/jobs/revalidations/{jobID}[/cancel]
//
// The body-addressed create aliases carry no IDs.
func extractPathIDs(path string) pathIDs {
	segs := apiSegments(path)
	var ids pathIDs
	if len(segs) < 2 || (len(segs) == 2 && segs[1] == "create") {
		return ids
	}
	switch segs[0] {
	case "client-schemas":
		if segs[1] == "client" {
			if len(segs) > 2 {
				ids.clientID = segs[2]
			}
			if len(segs) > 3 {
				ids.collection = segs[3]
			}
			return ids
		}
		ids.resourceID = segs[1]
	case "documents":
		ids.clientID = segs[1]
		if len(segs) > 2 {
			ids.collection = segs[2]
		}
		if len(segs) > 3 && segs[3] != "validate" {
			ids.resourceID = segs[3]
		}
	case "jobs":
		if len(segs) > 2 {
			ids.resourceID = segs[2]
		}
	}
	return ids
}

// extractAction returns a readable action name from the method and path.
func extractAction(method, path string) string {
	segs := apiSegments(path)
	if n := len(segs); n > 0 {
		switch segs[n-1] {
		case "activate", "validate", "revalidate", "cancel":
			return segs[n-1]
		}
	}

	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isAuditedEndpoint returns true for mutating API requests. Reads and
// health probes are not audited.
func isAuditedEndpoint(method, path string) bool {
	if isHealthEndpoint(path) || apiSegments(path) == nil {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz", "/metrics":
		return true
	}
	return false
}
