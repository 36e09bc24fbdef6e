package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeServer answers every request with the given status and envelope and
// records the last request.
type fakeServer struct {
	*httptest.Server
	lastMethod string
	lastPath   string
	lastQuery  string
	lastBody   map[string]any
	lastUser   string
}

func newFakeServer(t *testing.T, status int, message string, data any) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.lastMethod = r.Method
		fs.lastPath = r.URL.Path
		fs.lastQuery = r.URL.RawQuery
		fs.lastUser = r.Header.Get("X-Remote-User")
		fs.lastBody = nil
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &fs.lastBody)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"success": status < 400,
			"message": message,
			"data":    data,
		})
	}))
	t.Cleanup(fs.Close)

	prevURL, prevFmt, prevUser := serverURL, outputFmt, user
	serverURL, outputFmt, user = fs.URL, "table", ""
	t.Cleanup(func() { serverURL, outputFmt, user = prevURL, prevFmt, prevUser })
	return fs
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

var sampleSchema = map[string]any{
	"id":          "s-1",
	"client_id":   "c-1",
	"schema_name": "invoice",
	"version":     2,
	"is_active":   true,
	"description": "Supplier invoices",
	"fields": []map[string]any{
		{"name": "total", "type": "number", "required": true},
		{"name": "status", "type": "string", "default": "draft", "allowed_values": []string{"draft", "posted"}},
	},
	"created_at": "2024-01-01T00:00:00Z",
	"updated_at": "2024-01-02T03:04:00Z",
}

func TestSchemasList(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, "Retrieved 1 schema", []any{sampleSchema})

	out, err := runCmd(t, "schemas", "list", "--server", fs.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.lastPath != "/api/v1/client-schemas" || fs.lastQuery != "skip=0&limit=100" {
		t.Errorf("unexpected request %s?%s", fs.lastPath, fs.lastQuery)
	}
	for _, want := range []string{"NAME", "invoice", "2024-01-02 03:04"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, err = runCmd(t, "schemas", "list", "--server", fs.URL, "--client", "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.lastPath != "/api/v1/client-schemas/client/c-1" {
		t.Errorf("unexpected path %s", fs.lastPath)
	}
}

func TestSchemasGet(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, "Schema 'invoice' retrieved", sampleSchema)

	out, err := runCmd(t, "schemas", "get", "s-1", "--server", fs.URL, "-o", "table")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Version:     2", "draft, posted", "FIELD"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = runCmd(t, "schemas", "get", "s-1", "--server", fs.URL, "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"schema_name": "invoice"`) {
		t.Errorf("expected JSON output, got:\n%s", out)
	}
}

func TestSchemasApply(t *testing.T) {
	fs := newFakeServer(t, http.StatusCreated, "Schema 'invoice' version 1 created successfully", sampleSchema)

	yamlDoc := `client_id: c-1
schema_name: invoice
fields:
  - name: total
    type: number
    required: true
`
	rootCmd.SetIn(strings.NewReader(yamlDoc))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := runCmd(t, "schemas", "apply", "-f", "-", "--server", fs.URL, "-o", "table", "--user", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.lastMethod != http.MethodPost || fs.lastPath != "/api/v1/client-schemas" {
		t.Errorf("unexpected request %s %s", fs.lastMethod, fs.lastPath)
	}
	if fs.lastBody["schema_name"] != "invoice" {
		t.Errorf("unexpected body %v", fs.lastBody)
	}
	if fs.lastUser != "alice" {
		t.Errorf("expected X-Remote-User alice, got %q", fs.lastUser)
	}
	if !strings.Contains(out, "created successfully (s-1)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestDecodeSchemaFile(t *testing.T) {
	reqs, err := decodeSchemaFile([]byte(`
client_id: c-1
schema_name: invoice
fields: [{name: total, type: number}]
---
client_id: c-1
schema_name: receipt
version: 3
fields: [{name: amount, type: number}]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(reqs))
	}
	if reqs[1].SchemaName != "receipt" || reqs[1].Version == nil || *reqs[1].Version != 3 {
		t.Errorf("unexpected second schema %+v", reqs[1])
	}

	if _, err := decodeSchemaFile([]byte("---\n")); err == nil {
		t.Error("expected error for empty file")
	}
	if _, err := decodeSchemaFile([]byte("fields: {")); err == nil {
		t.Error("expected parse error")
	}
}

func TestDocumentsCreate(t *testing.T) {
	fs := newFakeServer(t, http.StatusCreated, "Document created successfully in invoice", map[string]any{"id": "d-1"})

	out, err := runCmd(t, "documents", "create", "--server", fs.URL,
		"--client", "c-1", "--collection", "invoice", "--vendor", "v-1", "--data", `{"total": 12.5}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.lastPath != "/api/v1/documents" {
		t.Errorf("unexpected path %s", fs.lastPath)
	}
	if fs.lastBody["collection_name"] != "invoice" || fs.lastBody["vendor_id"] != "v-1" {
		t.Errorf("unexpected body %v", fs.lastBody)
	}
	if !strings.Contains(out, "(d-1)") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := runCmd(t, "documents", "create", "--server", fs.URL,
		"--client", "c-1", "--collection", "invoice", "--data", `[1]`); err == nil {
		t.Error("expected error for non-object data")
	}
}

func TestDocumentsList(t *testing.T) {
	docs := []any{
		map[string]any{"id": "d-1", "client_id": "c-1", "total": 12.5, "status": "draft", "created_at": "2024-01-01T00:00:00Z"},
		map[string]any{"id": "d-2", "client_id": "c-1", "total": 100.0, "status": "posted", "created_at": "2024-01-02T00:00:00Z"},
	}
	fs := newFakeServer(t, http.StatusOK, "Retrieved 2 documents from invoice", docs)

	out, err := runCmd(t, "documents", "list", "c-1", "invoice", "--server", fs.URL, "--filter", "total > 50", "-o", "table")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.lastPath != "/api/v1/documents/c-1/invoice" {
		t.Errorf("unexpected path %s", fs.lastPath)
	}
	if !strings.Contains(fs.lastQuery, "filter=total+%3E+50") {
		t.Errorf("filter not sent: %s", fs.lastQuery)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "STATUS") || strings.Contains(lines[0], "CLIENT_ID") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[2], "100") {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestClientErrorHandling(t *testing.T) {
	fs := newFakeServer(t, http.StatusNotFound, "Client schema with ID nope not found", nil)

	_, err := runCmd(t, "schemas", "delete", "nope", "--server", fs.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should carry status and message, got: %v", err)
	}
}

func TestJobsGet(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, "Job retrieved successfully", map[string]any{
		"id": "j-1", "collection": "invoice", "schema_version": 2, "state": "succeeded",
		"documents_checked": 4, "documents_invalid": 1, "samples": []string{"d-9: Field 'total' must be number, got string"},
	})

	out, err := runCmd(t, "jobs", "get", "j-1", "--server", fs.URL, "-o", "table")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"State:      succeeded", "Invalid:    1", "d-9:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{float64(42), "42"},
		{3.5, "3.5"},
		{true, "true"},
		{[]any{"a", 1.0}, "a, 1"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 5); got != "ab..." {
		t.Errorf("got %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Errorf("got %q", got)
	}
}
