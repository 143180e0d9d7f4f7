package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

func TestHTTPClientBenchmark(t *testing.T) {
	var gotKey string
	var gotReq BenchmarkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/debug/llm-profiles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"prompt": "hello",
			"profiles": [{
				"name": "base",
				"samples": 2,
				"runs": [
					{"latency_ms": 120.5, "speculative": false, "text": "hi", "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}},
					{"latency_ms": 130, "speculative": false, "text": "hi", "usage": {}}
				],
				"errors": [],
				"average_latency_ms": 125.25
			}]
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", "secret", 5*time.Second)
	resp, err := client.Benchmark(context.Background(), BenchmarkRequest{
		Prompt:   "hello",
		History:  []HistoryEntry{{Role: "user", Content: "earlier"}},
		Profiles: []profile.Descriptor{{Name: "base", Samples: 2, Settings: map[string]any{}, Options: map[string]any{"temperature": 0.7}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotKey != "secret" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotReq.Prompt != "hello" || len(gotReq.History) != 1 || len(gotReq.Profiles) != 1 {
		t.Fatalf("unexpected request %+v", gotReq)
	}
	if len(resp.Profiles) != 1 || len(resp.Profiles[0].Runs) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	run := resp.Profiles[0].Runs[0]
	if run.LatencyMs != 120.5 || run.Usage.TotalTokens == nil || *run.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected run %+v", run)
	}
	if resp.Profiles[0].Runs[1].Usage.PromptTokens != nil {
		t.Fatalf("missing usage must stay nil")
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", time.Second)
	_, err := client.Benchmark(context.Background(), BenchmarkRequest{
		Prompt:   "x",
		Profiles: []profile.Descriptor{{Name: "a", Samples: 1}},
	})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable || statusErr.Body != "model not loaded" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestHTTPClientRejectsOversizedBatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	profiles := make([]profile.Descriptor, MaxProfilesPerRequest+1)
	_, err := NewHTTPClient(srv.URL, "", time.Second).Benchmark(context.Background(), BenchmarkRequest{Prompt: "x", Profiles: profiles})
	if err == nil {
		t.Fatalf("expected error for oversized batch")
	}
	if called {
		t.Fatalf("oversized batch must not reach the backend")
	}
}

func TestHTTPClientApplyConfiguration(t *testing.T) {
	var gotPatch map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/config" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotPatch)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, "", time.Second).ApplyConfiguration(context.Background(), map[string]any{
		"llm_context_tokens":      4096,
		"llm_speculative_enabled": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPatch["llm_context_tokens"] != float64(4096) || gotPatch["llm_speculative_enabled"] != true {
		t.Fatalf("unexpected patch %v", gotPatch)
	}
}
