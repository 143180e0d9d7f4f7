package improvement

import (
	"context"
	"sync"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

// scriptedEvaluator answers with a latency chosen by fn; a negative latency
// simulates a call that returned no runs.
type scriptedEvaluator struct {
	mu    sync.Mutex
	fn    func(form profile.Form, prompt string) float64
	calls []profile.Form
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, form profile.Form, prompt string) evaluate.Evaluation {
	e.mu.Lock()
	e.calls = append(e.calls, form)
	e.mu.Unlock()
	return evaluation(form.Name, e.fn(form, prompt))
}

func (e *scriptedEvaluator) EvaluateGrid(ctx context.Context, forms []profile.Form, prompt string) []evaluate.Evaluation {
	out := make([]evaluate.Evaluation, len(forms))
	for i, f := range forms {
		out[i] = e.Evaluate(ctx, f, prompt)
	}
	return out
}

func (e *scriptedEvaluator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func evaluation(name string, latency float64) evaluate.Evaluation {
	result := backend.ProfileResult{Name: name, Samples: 1}
	if latency < 0 {
		result.Errors = []string{"backend unavailable"}
	} else {
		result.Runs = []backend.ProfileRun{{LatencyMs: latency}}
	}
	return evaluate.Evaluation{Result: result, Stats: metrics.Compute(result)}
}

// byValue returns a latency function keyed by the normalized value of field.
func byValue(field profile.Field, table map[string]float64, fallback float64) func(profile.Form, string) float64 {
	return func(form profile.Form, _ string) float64 {
		v, ok := form.Value(field)
		if !ok {
			return fallback
		}
		if l, ok := table[profile.NormalizeValue(field, v)]; ok {
			return l
		}
		return fallback
	}
}

func temperatureBase() profile.Form {
	base := profile.NewForm("base")
	base.Options[profile.FieldTemperature] = "0.7"
	return base
}
