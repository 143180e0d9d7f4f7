package improvement

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/variation"
)

// GridEvaluator measures many forms against one prompt.
type GridEvaluator interface {
	EvaluateGrid(ctx context.Context, forms []profile.Form, prompt string) []evaluate.Evaluation
}

// GridEntry is one evaluated combination.
type GridEntry struct {
	Combination string              `json:"combination"`
	Form        profile.Form        `json:"-"`
	Evaluation  evaluate.Evaluation `json:"evaluation"`
}

// GridReport holds an exhaustive evaluation of a variation matrix.
type GridReport struct {
	Prompt    string      `json:"prompt"`
	Entries   []GridEntry `json:"entries"`
	BestIndex int         `json:"best_index"`
}

// Best returns the fastest usable entry, if any.
func (g *GridReport) Best() (GridEntry, bool) {
	if g.BestIndex < 0 || g.BestIndex >= len(g.Entries) {
		return GridEntry{}, false
	}
	return g.Entries[g.BestIndex], true
}

// Evaluations lists the entry evaluations in submission order.
func (g *GridReport) Evaluations() []evaluate.Evaluation {
	out := make([]evaluate.Evaluation, len(g.Entries))
	for i, e := range g.Entries {
		out[i] = e.Evaluation
	}
	return out
}

// RunGrid evaluates every combination of axes applied to base. Grids over
// variation.MaxGridCombinations are rejected before any call is made.
func RunGrid(ctx context.Context, evaluator GridEvaluator, base profile.Form, axes []variation.Axis, prompt string) (*GridReport, error) {
	combos, err := variation.Expand(axes)
	if err != nil {
		return nil, err
	}

	forms := make([]profile.Form, len(combos))
	for i, combo := range combos {
		suffix := ""
		if len(combo) > 0 {
			suffix = "[" + combo.Label() + "]"
		}
		form, err := profile.ApplyOverrides(base, combo.Overrides(), suffix)
		if err != nil {
			return nil, fmt.Errorf("combination %d: %w", i+1, err)
		}
		forms[i] = form
	}

	evals := evaluator.EvaluateGrid(ctx, forms, prompt)
	report := &GridReport{Prompt: prompt, Entries: make([]GridEntry, len(forms))}
	for i := range forms {
		report.Entries[i] = GridEntry{Combination: combos[i].Label(), Form: forms[i]}
		if i < len(evals) {
			report.Entries[i].Evaluation = evals[i]
		}
	}
	report.BestIndex = FindBestEvaluation(statsOf(report.Evaluations()))
	return report, ctx.Err()
}

func statsOf(evals []evaluate.Evaluation) []metrics.ProfileStats {
	out := make([]metrics.ProfileStats, len(evals))
	for i, e := range evals {
		out[i] = e.Stats
	}
	return out
}
