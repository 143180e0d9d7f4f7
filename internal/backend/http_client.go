package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	benchmarkPath = "/debug/llm-profiles"
	configPath    = "/config"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// HTTPClient talks to the backend's JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL. A zero timeout means none.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Benchmark posts the profiles to the debug benchmark endpoint.
func (c *HTTPClient) Benchmark(ctx context.Context, req BenchmarkRequest) (*BenchmarkResponse, error) {
	if len(req.Profiles) == 0 {
		return nil, fmt.Errorf("at least one profile is required")
	}
	if len(req.Profiles) > MaxProfilesPerRequest {
		return nil, fmt.Errorf("too many profiles in one request: %d (maximum %d)", len(req.Profiles), MaxProfilesPerRequest)
	}

	var resp BenchmarkResponse
	if err := c.do(ctx, http.MethodPost, benchmarkPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApplyConfiguration sends a partial configuration patch.
func (c *HTTPClient) ApplyConfiguration(ctx context.Context, patch map[string]any) error {
	return c.do(ctx, http.MethodPut, configPath, patch, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "profile-autotune/1.0")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
