package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiPrefix = "/api/v1"

type registryClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *registryClient {
	return &registryClient{
		baseURL: serverURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is the body of every docregistry response.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a request under /api/v1 and decodes the envelope's data into v.
// Failed requests return the server's message.
func (c *registryClient) do(method, path string, body, v any) (string, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal error: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+apiPrefix+path, rd)
	if err != nil {
		return "", fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}
	if !env.Success || resp.StatusCode >= 400 {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, env.Message)
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return "", fmt.Errorf("decode error: %w", err)
		}
	}
	return env.Message, nil
}

func (c *registryClient) get(path string, v any) (string, error) {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *registryClient) post(path string, body, v any) (string, error) {
	return c.do(http.MethodPost, path, body, v)
}

func (c *registryClient) patch(path string, v any) (string, error) {
	return c.do(http.MethodPatch, path, nil, v)
}

func (c *registryClient) delete(path string) (string, error) {
	return c.do(http.MethodDelete, path, nil, nil)
}
