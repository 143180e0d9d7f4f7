// Package backend defines the contract with the inference backend being
// tuned and the transports that reach it.
package backend

import (
	"context"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

// MaxProfilesPerRequest is the largest batch the benchmark endpoint accepts.
const MaxProfilesPerRequest = 8

// Client is the capability the tuner needs from the backend.
type Client interface {
	Benchmark(ctx context.Context, req BenchmarkRequest) (*BenchmarkResponse, error)
	ApplyConfiguration(ctx context.Context, patch map[string]any) error
}

// HistoryEntry is one prior conversation turn sent with the prompt.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BenchmarkRequest asks the backend to run each profile against the prompt.
type BenchmarkRequest struct {
	Prompt   string               `json:"prompt"`
	History  []HistoryEntry       `json:"history,omitempty"`
	Profiles []profile.Descriptor `json:"profiles"`
}

// Usage is the token breakdown of one run; each count is optional.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// ProfileRun is one sampled measurement.
type ProfileRun struct {
	LatencyMs   float64 `json:"latency_ms"`
	Speculative bool    `json:"speculative"`
	Text        string  `json:"text,omitempty"`
	Usage       Usage   `json:"usage"`
}

// ProfileResult is the backend's answer for one profile. A call may partially
// fail, in which case Runs is shorter than Samples and Errors is populated.
type ProfileResult struct {
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Samples          int            `json:"samples"`
	AppliedSettings  map[string]any `json:"applied_settings,omitempty"`
	AppliedOptions   map[string]any `json:"applied_options,omitempty"`
	Runs             []ProfileRun   `json:"runs"`
	Errors           []string       `json:"errors,omitempty"`
	AverageLatencyMs *float64       `json:"average_latency_ms,omitempty"`
}

// BenchmarkResponse carries one result per submitted profile, in order.
type BenchmarkResponse struct {
	Prompt   string          `json:"prompt"`
	Profiles []ProfileResult `json:"profiles"`
}

// IntPtr is a convenience for building Usage values.
func IntPtr(v int) *int {
	return &v
}
