package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"ready", http.StatusOK, `{"status":"ready","checks":{"database":{"status":"up"}}}`, ""},
		{"alive", http.StatusOK, `{"status":"alive","uptime":"3s"}`, ""},
		{"plain ok", http.StatusOK, `ok`, ""},
		{"database down", http.StatusServiceUnavailable,
			`{"status":"not_ready","checks":{"database":{"status":"down","error":"connection refused"}}}`,
			"database is down connection refused"},
		{"bad gateway", http.StatusBadGateway, ``, "status 502"},
		{"draining", http.StatusOK, `{"status":"draining"}`, "server reports draining"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := probe(&http.Client{Timeout: time.Second}, srv.URL)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := probe(&http.Client{Timeout: time.Second}, url); err == nil {
		t.Error("expected error for closed server")
	}
}
