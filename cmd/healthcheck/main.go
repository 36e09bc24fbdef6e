// Package main provides a minimal HTTP healthcheck binary for container
// probes. It requests the docregistry readiness endpoint and exits 0 when
// the server reports ready, 1 otherwise.
// Usage: healthcheck [url]
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/readyz"

type readiness struct {
	Status string                       `json:"status"`
	Checks map[string]map[string]string `json:"checks"`
}

func main() {
	url := os.Getenv("DOCREGISTRY_HEALTHCHECK_URL")
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	if url == "" {
		url = defaultURL
	}

	client := &http.Client{Timeout: 5 * time.Second}
	if err := probe(client, url); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

// probe succeeds on a 2xx response whose body, when it is a readiness
// document, reports ready. Liveness endpoints answer "alive".
func probe(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var r readiness
	_ = json.Unmarshal(body, &r)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		for name, check := range r.Checks {
			if check["status"] != "up" && check["status"] != "not_configured" {
				return fmt.Errorf("status %d: %s is %s %s", resp.StatusCode, name, check["status"], check["error"])
			}
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	switch r.Status {
	case "", "ready", "alive":
		return nil
	}
	return fmt.Errorf("server reports %s", r.Status)
}
