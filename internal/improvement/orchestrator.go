package improvement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/variation"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

// ErrNoPrompt is returned when a plan has no usable prompt.
var ErrNoPrompt = errors.New("at least one non-empty prompt is required")

// Plan describes a tuning experiment.
type Plan struct {
	Base         profile.Form
	Axes         []variation.Axis
	Prompt       string
	ExtraPrompts []string
}

// Prompts returns the primary and extra prompts, trimmed, deduplicated and
// without empties, primary first.
func (p Plan) Prompts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range append([]string{p.Prompt}, p.ExtraPrompts...) {
		prompt := strings.TrimSpace(raw)
		if prompt == "" || seen[prompt] {
			continue
		}
		seen[prompt] = true
		out = append(out, prompt)
	}
	return out
}

// Report is the outcome of a full experiment across every prompt.
type Report struct {
	Prompts     []string          `json:"prompts"`
	Summaries   []*Summary        `json:"summaries"`
	Steps       []Step            `json:"steps"`
	Candidates  []Candidate       `json:"candidates"`
	Global      *Summary          `json:"-"`
	GlobalIndex int               `json:"global_index"`
	Found       bool              `json:"found"`
	Recommended profile.Form      `json:"-"`
	Snapshot    map[string]string `json:"recommended"`
	Duration    time.Duration     `json:"duration_ns"`
}

// Evaluations lists every evaluation in the order it was made: each
// prompt's baseline followed by its probes.
func (r *Report) Evaluations() []evaluate.Evaluation {
	var out []evaluate.Evaluation
	for _, s := range r.Summaries {
		out = append(out, s.Baseline)
		for _, step := range s.Steps {
			out = append(out, evaluate.Evaluation{Result: step.Result, Stats: step.Stats})
		}
	}
	return out
}

// Orchestrator runs the optimizer once per prompt and merges the results.
// Prompts run one after another; measurements never overlap.
type Orchestrator struct {
	evaluator CandidateEvaluator
	progress  func(Step)
	collector *metrics.Collector
}

// NewOrchestrator creates a new multi-prompt orchestrator
func NewOrchestrator(evaluator CandidateEvaluator) *Orchestrator {
	return &Orchestrator{evaluator: evaluator}
}

// WithProgressReporter sets a callback receiving every prompt-qualified step.
func (o *Orchestrator) WithProgressReporter(fn func(Step)) *Orchestrator {
	o.progress = fn
	return o
}

// WithCollector records every evaluation into c.
func (o *Orchestrator) WithCollector(c *metrics.Collector) *Orchestrator {
	o.collector = c
	return o
}

// Run executes the plan. The global result is the prompt whose best latency
// is lowest; ties keep the earliest prompt. When no prompt produced a usable
// measurement the first summary is reported and Found is false.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*Report, error) {
	prompts := plan.Prompts()
	if len(prompts) == 0 {
		return nil, ErrNoPrompt
	}
	if err := ValidateAxes(plan.Base, plan.Axes); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{Prompts: prompts}

	var runErr error
	for i, prompt := range prompts {
		prefix := fmt.Sprintf("[prompt %d] ", i+1)
		optimizer := NewOptimizer(o.evaluator).
			WithCollector(o.collector).
			WithProgressReporter(func(s Step) {
				if o.progress != nil {
					s.Axis = prefix + s.Axis
					o.progress(s)
				}
			})

		logger.Info("optimizing prompt", "prompt_index", i+1, "prompts", len(prompts), "axes", len(plan.Axes))
		summary, err := optimizer.Optimize(ctx, plan.Base, plan.Axes, prompt)
		if summary != nil {
			report.Summaries = append(report.Summaries, summary)
			for _, s := range summary.Steps {
				s.Axis = prefix + s.Axis
				report.Steps = append(report.Steps, s)
			}
			report.Candidates = append(report.Candidates, summary.Candidates...)
		}
		if err != nil {
			runErr = err
			break
		}
	}

	report.selectGlobal(plan.Base)
	report.Duration = time.Since(start)
	return report, runErr
}

func (r *Report) selectGlobal(base profile.Form) {
	bests := make([]metrics.ProfileStats, len(r.Summaries))
	for i, s := range r.Summaries {
		bests[i] = s.Best.Stats
	}

	r.GlobalIndex = FindBestEvaluation(bests)
	r.Found = r.GlobalIndex >= 0
	if !r.Found {
		r.GlobalIndex = 0
	}

	if len(r.Summaries) == 0 {
		r.Recommended = base.Clone()
	} else {
		r.Global = r.Summaries[r.GlobalIndex]
		r.Recommended = r.Global.BestForm.Clone()
	}
	r.Snapshot = profile.Snapshot(r.Recommended)
}
