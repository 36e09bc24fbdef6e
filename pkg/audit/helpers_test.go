package audit

import (
	"testing"
)

func TestExtractResourceType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/client-schemas", "client-schemas"},
		{"/api/v1/client-schemas/abc/activate", "client-schemas"},
		{"/api/v1/documents/c1/invoice/d1", "documents"},
		{"/api/v1/audit/events", "audit"},
		{"/api/v1/jobs/revalidations/j1/cancel", "jobs"},
		{"/api/v1/other", ""},
		{"/livez", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := extractResourceType(tt.path); got != tt.want {
				t.Errorf("extractResourceType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractPathIDs(t *testing.T) {
	tests := []struct {
		path string
		want pathIDs
	}{
		{"/api/v1/client-schemas", pathIDs{}},
		{"/api/v1/client-schemas/s1", pathIDs{resourceID: "s1"}},
		{"/api/v1/client-schemas/s1/activate", pathIDs{resourceID: "s1"}},
		{"/api/v1/client-schemas/client/c1/invoice", pathIDs{clientID: "c1", collection: "invoice"}},
		{"/api/v1/documents", pathIDs{}},
		{"/api/v1/documents/c1/invoice", pathIDs{clientID: "c1", collection: "invoice"}},
		{"/api/v1/documents/c1/invoice/d1", pathIDs{clientID: "c1", collection: "invoice", resourceID: "d1"}},
		{"/api/v1/documents/c1/invoice/validate", pathIDs{clientID: "c1", collection: "invoice"}},
		{"/api/v1/documents/c1/invoice/d1/", pathIDs{clientID: "c1", collection: "invoice", resourceID: "d1"}},
		{"/api/v1/documents/create", pathIDs{}},
		{"/api/v1/client-schemas/create", pathIDs{}},
		{"/api/v1/client-schemas/s1/revalidate", pathIDs{resourceID: "s1"}},
		{"/api/v1/jobs/revalidations/j1/cancel", pathIDs{resourceID: "j1"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := extractPathIDs(tt.path); got != tt.want {
				t.Errorf("extractPathIDs(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractAction(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"POST", "/api/v1/client-schemas", "create"},
		{"PUT", "/api/v1/client-schemas/s1", "update"},
		{"PATCH", "/api/v1/client-schemas/s1/activate", "activate"},
		{"DELETE", "/api/v1/client-schemas/s1", "delete"},
		{"POST", "/api/v1/documents/c1/invoice/validate", "validate"},
		{"PATCH", "/api/v1/documents/c1/invoice/d1", "patch"},
		{"POST", "/api/v1/documents/create", "create"},
		{"POST", "/api/v1/client-schemas/s1/revalidate", "revalidate"},
		{"POST", "/api/v1/jobs/revalidations/j1/cancel", "cancel"},
		{"OPTIONS", "/api/v1/documents", "options"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := extractAction(tt.method, tt.path); got != tt.want {
				t.Errorf("extractAction(%q, %q) = %q, want %q", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestIsAuditedEndpoint(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{"POST", "/api/v1/documents", true},
		{"PUT", "/api/v1/client-schemas/s1", true},
		{"PATCH", "/api/v1/client-schemas/s1/activate", true},
		{"DELETE", "/api/v1/documents/c1/invoice/d1", true},
		{"GET", "/api/v1/documents/c1/invoice", false},
		{"POST", "/healthz", false},
		{"POST", "/metrics", false},
		{"POST", "/upload", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := isAuditedEndpoint(tt.method, tt.path); got != tt.want {
				t.Errorf("isAuditedEndpoint(%q, %q) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}
