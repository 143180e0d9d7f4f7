// Package evaluate runs candidate profiles against the backend and reduces
// the raw runs to statistics.
package evaluate

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

// Evaluation pairs a backend result with its recomputed statistics.
type Evaluation struct {
	Result backend.ProfileResult `json:"result"`
	Stats  metrics.ProfileStats  `json:"stats"`
}

// Success reports whether the evaluation produced a usable latency.
func (e Evaluation) Success() bool {
	return e.Stats.Successful()
}

// Evaluator issues benchmark calls one at a time. It never fails: transport
// errors are folded into the returned result.
type Evaluator struct {
	client  backend.Client
	history []backend.HistoryEntry
}

// NewEvaluator creates an evaluator. History entries are trimmed and empty
// ones dropped.
func NewEvaluator(client backend.Client, history []backend.HistoryEntry) *Evaluator {
	return &Evaluator{
		client:  client,
		history: CleanHistory(history),
	}
}

// CleanHistory trims roles and contents and drops turns without content.
func CleanHistory(history []backend.HistoryEntry) []backend.HistoryEntry {
	out := make([]backend.HistoryEntry, 0, len(history))
	for _, h := range history {
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(h.Role))
		if role == "" {
			role = "user"
		}
		out = append(out, backend.HistoryEntry{Role: role, Content: content})
	}
	return out
}

// Evaluate benchmarks a single form against prompt.
func (e *Evaluator) Evaluate(ctx context.Context, form profile.Form, prompt string) Evaluation {
	evals := e.evaluateBatch(ctx, []profile.Form{form}, prompt)
	return evals[0]
}

// EvaluateGrid benchmarks every form, submitting at most
// backend.MaxProfilesPerRequest descriptors per call. Batches run one after
// another; results are returned in input order.
func (e *Evaluator) EvaluateGrid(ctx context.Context, forms []profile.Form, prompt string) []Evaluation {
	out := make([]Evaluation, 0, len(forms))
	for start := 0; start < len(forms); start += backend.MaxProfilesPerRequest {
		end := start + backend.MaxProfilesPerRequest
		if end > len(forms) {
			end = len(forms)
		}
		out = append(out, e.evaluateBatch(ctx, forms[start:end], prompt)...)
	}
	return out
}

func (e *Evaluator) evaluateBatch(ctx context.Context, forms []profile.Form, prompt string) []Evaluation {
	descriptors := make([]profile.Descriptor, len(forms))
	for i, f := range forms {
		descriptors[i] = profile.ToDescriptor(f)
	}

	out := make([]Evaluation, len(forms))
	if err := ctx.Err(); err != nil {
		for i, d := range descriptors {
			out[i] = failed(d, err)
		}
		return out
	}

	resp, err := e.client.Benchmark(ctx, backend.BenchmarkRequest{
		Prompt:   prompt,
		History:  e.history,
		Profiles: descriptors,
	})
	if err != nil {
		logger.Warn("benchmark call failed", "profiles", len(descriptors), "error", err)
		for i, d := range descriptors {
			out[i] = failed(d, err)
		}
		return out
	}

	for i, d := range descriptors {
		if i >= len(resp.Profiles) {
			out[i] = failed(d, fmt.Errorf("backend returned no result for profile %q", d.Name))
			continue
		}
		result := resp.Profiles[i]
		out[i] = Evaluation{Result: result, Stats: metrics.Compute(result)}
		logger.Debug("candidate evaluated",
			"profile", d.Name,
			"runs", out[i].Stats.Count,
			"latency_ms", out[i].Stats.AverageLatency,
			"errors", len(result.Errors))
	}
	return out
}

func failed(d profile.Descriptor, err error) Evaluation {
	result := backend.ProfileResult{
		Name:        d.Name,
		Description: d.Description,
		Samples:     d.Samples,
		Errors:      []string{err.Error()},
	}
	return Evaluation{Result: result, Stats: metrics.Compute(result)}
}
