package tuned

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/config"
)

const tuningYAML = `
prompt: why is the sky blue?
base_profile:
  name: base
  samples: 2
  options:
    temperature: 0.7
variations: |
  temperature=0.6,0.8
`

// fakeBackend answers with a latency bowl centred on temperature 0.6. When
// gate is set, Benchmark blocks until it is closed or ctx ends.
type fakeBackend struct {
	mu       sync.Mutex
	gate     chan struct{}
	calls    int
	patches  []map[string]any
	applyErr error
}

func (f *fakeBackend) Benchmark(ctx context.Context, req backend.BenchmarkRequest) (*backend.BenchmarkResponse, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	resp := &backend.BenchmarkResponse{Prompt: req.Prompt}
	for _, d := range req.Profiles {
		temp, _ := d.Options["temperature"].(float64)
		latency := 100 + 1000*math.Abs(temp-0.6)
		runs := make([]backend.ProfileRun, d.Samples)
		for i := range runs {
			runs[i] = backend.ProfileRun{LatencyMs: latency}
		}
		resp.Profiles = append(resp.Profiles, backend.ProfileResult{Name: d.Name, Samples: d.Samples, Runs: runs})
	}
	return resp, nil
}

func (f *fakeBackend) ApplyConfiguration(ctx context.Context, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	return f.applyErr
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mustTuning(t *testing.T, yamlText string) *config.TuningConfig {
	t.Helper()
	tuning, err := config.ParseTuningYAML([]byte(yamlText))
	if err != nil {
		t.Fatalf("ParseTuningYAML failed: %v", err)
	}
	return tuning
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
