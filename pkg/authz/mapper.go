package authz

import (
	"net/http"
	"strings"
)

// ResourceMapping maps an HTTP request to a resource and verb for authorization.
type ResourceMapping struct {
	Resource string
	Verb     string
}

// UnknownMapping is returned when no known pattern matches the request.
// Callers should deny requests with this mapping by default.
var UnknownMapping = ResourceMapping{Resource: "", Verb: ""}

// MapRequest maps an HTTP method and URL path under /api/v1 to a
// ResourceMapping.
func MapRequest(method, path string) ResourceMapping {
	path = strings.TrimRight(path, "/")
	idx := strings.Index(path, "/api/v1/")
	if idx < 0 {
		return UnknownMapping
	}
	rest := path[idx+len("/api/v1/"):]
	segments := strings.Split(rest, "/")

	switch segments[0] {
	case "client-schemas":
		return mapSchemaRoute(method, segments[1:])
	case "documents":
		return mapDocumentRoute(method, segments[1:])
	case "jobs":
		return mapJobRoute(method, segments[1:])
	case "audit":
		if method == http.MethodGet {
			if len(segments) > 2 {
				return ResourceMapping{Resource: ResourceAudit, Verb: VerbGet}
			}
			return ResourceMapping{Resource: ResourceAudit, Verb: VerbList}
		}
	}
	return UnknownMapping
}

// mapSchemaRoute handles /client-schemas routes; segs excludes the prefix.
func mapSchemaRoute(method string, segs []string) ResourceMapping {
	switch method {
	case http.MethodGet:
		switch {
		case len(segs) == 0:
			return ResourceMapping{Resource: ResourceSchemas, Verb: VerbList}
		case segs[0] == "client" && len(segs) <= 3:
			return ResourceMapping{Resource: ResourceSchemas, Verb: VerbList}
		}
		return ResourceMapping{Resource: ResourceSchemas, Verb: VerbGet}
	case http.MethodPost:
		// Revalidation reads the schema; the handler checks document access
		// once the owning client is known.
		if len(segs) == 2 && segs[1] == "revalidate" {
			return ResourceMapping{Resource: ResourceSchemas, Verb: VerbGet}
		}
		return ResourceMapping{Resource: ResourceSchemas, Verb: VerbCreate}
	case http.MethodPut, http.MethodPatch:
		return ResourceMapping{Resource: ResourceSchemas, Verb: VerbUpdate}
	case http.MethodDelete:
		return ResourceMapping{Resource: ResourceSchemas, Verb: VerbDelete}
	}
	return UnknownMapping
}

// mapDocumentRoute handles /documents routes; segs excludes the prefix.
func mapDocumentRoute(method string, segs []string) ResourceMapping {
	switch method {
	case http.MethodGet:
		if len(segs) >= 3 {
			return ResourceMapping{Resource: ResourceDocuments, Verb: VerbGet}
		}
		return ResourceMapping{Resource: ResourceDocuments, Verb: VerbList}
	case http.MethodPost:
		// Dry-run validation reads the schema and writes nothing.
		if len(segs) == 3 && segs[2] == "validate" {
			return ResourceMapping{Resource: ResourceDocuments, Verb: VerbGet}
		}
		return ResourceMapping{Resource: ResourceDocuments, Verb: VerbCreate}
	case http.MethodPut:
		return ResourceMapping{Resource: ResourceDocuments, Verb: VerbUpdate}
	case http.MethodDelete:
		return ResourceMapping{Resource: ResourceDocuments, Verb: VerbDelete}
	}
	return UnknownMapping
}

// mapJobRoute handles /jobs routes; segs excludes the prefix.
func mapJobRoute(method string, segs []string) ResourceMapping {
	switch method {
	case http.MethodGet:
		if len(segs) >= 2 {
			return ResourceMapping{Resource: ResourceJobs, Verb: VerbGet}
		}
		return ResourceMapping{Resource: ResourceJobs, Verb: VerbList}
	case http.MethodPost:
		if len(segs) == 3 && segs[2] == "cancel" {
			return ResourceMapping{Resource: ResourceJobs, Verb: VerbUpdate}
		}
	}
	return UnknownMapping
}
