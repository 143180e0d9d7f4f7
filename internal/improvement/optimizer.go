package improvement

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/variation"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/utils"
)

const (
	// maxClimbIterations bounds the probes per step size.
	maxClimbIterations = 10
	stepTolerance      = 1e-9
)

// fixedCascade follows the inferred step and its half.
var fixedCascade = []float64{1, 0.5, 0.25, 0.1, 0.05, 0.01}

// CandidateEvaluator measures one form against one prompt.
type CandidateEvaluator interface {
	Evaluate(ctx context.Context, form profile.Form, prompt string) evaluate.Evaluation
}

// State is the best configuration known at a point of the search. Probes
// return a new State instead of mutating the old one.
type State struct {
	BestForm profile.Form
	BestEval evaluate.Evaluation
}

// accepts reports whether eval should replace the current best: it must be
// usable and strictly faster. Any usable evaluation beats an unusable best.
func (s State) accepts(eval evaluate.Evaluation) bool {
	if !eval.Success() {
		return false
	}
	if !s.BestEval.Success() {
		return true
	}
	return eval.Stats.AverageLatency < s.BestEval.Stats.AverageLatency
}

// Step is one probe in the journal.
type Step struct {
	Prompt      string                `json:"prompt"`
	Axis        string                `json:"axis"`
	Parameter   profile.Field         `json:"parameter"`
	Value       string                `json:"value"`
	RawValue    string                `json:"raw_value"`
	Stats       metrics.ProfileStats  `json:"stats"`
	Success     bool                  `json:"success"`
	Errors      []string              `json:"errors,omitempty"`
	Improvement float64               `json:"improvement_ms"`
	Adopted     bool                  `json:"adopted"`
	Result      backend.ProfileResult `json:"-"`
}

// Candidate is a successful probe together with the form that produced it.
type Candidate struct {
	Prompt      string                `json:"prompt"`
	Parameter   string                `json:"parameter"`
	Value       string                `json:"value"`
	Form        profile.Form          `json:"-"`
	Snapshot    map[string]string     `json:"snapshot"`
	Result      backend.ProfileResult `json:"result"`
	Stats       metrics.ProfileStats  `json:"stats"`
	Improvement float64               `json:"improvement_ms"`
}

// Summary is the outcome of optimizing one prompt.
type Summary struct {
	Prompt     string              `json:"prompt"`
	Baseline   evaluate.Evaluation `json:"baseline"`
	Best       evaluate.Evaluation `json:"best"`
	BestForm   profile.Form        `json:"-"`
	Steps      []Step              `json:"steps"`
	Candidates []Candidate         `json:"candidates"`
}

// Gain compares the baseline against the best found.
func (s *Summary) Gain() Comparison {
	return Compare(s.Baseline.Stats, s.Best.Stats)
}

// Optimizer runs coordinate descent over variation axes. Axes are tuned one
// after another in declaration order, each starting from the best form found
// so far, so results depend on axis order.
type Optimizer struct {
	evaluator CandidateEvaluator
	progress  func(Step)
	collector *metrics.Collector
}

// NewOptimizer creates a new coordinate-descent optimizer
func NewOptimizer(evaluator CandidateEvaluator) *Optimizer {
	return &Optimizer{evaluator: evaluator}
}

// WithProgressReporter sets a callback invoked after every probe.
func (o *Optimizer) WithProgressReporter(fn func(Step)) *Optimizer {
	o.progress = fn
	return o
}

// WithCollector records every evaluation into c.
func (o *Optimizer) WithCollector(c *metrics.Collector) *Optimizer {
	o.collector = c
	return o
}

// run carries the per-prompt journal; it is owned by one Optimize call.
type run struct {
	prompt     string
	baseName   string
	steps      []Step
	candidates []Candidate
}

// Optimize evaluates base, then tunes every axis in order. Invalid axis
// values are rejected before any evaluation. On cancellation the partial
// summary is returned along with the context error.
func (o *Optimizer) Optimize(ctx context.Context, base profile.Form, axes []variation.Axis, prompt string) (*Summary, error) {
	if o.evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if err := ValidateAxes(base, axes); err != nil {
		return nil, err
	}

	baseline := o.evaluator.Evaluate(ctx, base, prompt)
	o.record("baseline", baseline)
	logger.Info("baseline evaluated",
		"prompt_chars", len(prompt),
		"success", baseline.Success(),
		"latency_ms", baseline.Stats.AverageLatency)

	state := State{BestForm: base.Clone(), BestEval: baseline}
	r := &run{prompt: prompt, baseName: base.Name}

	var err error
	for _, axis := range axes {
		if err = ctx.Err(); err != nil {
			break
		}
		state, err = o.optimizeAxis(ctx, state, axis, r)
		if err != nil {
			break
		}
	}

	summary := &Summary{
		Prompt:     prompt,
		Baseline:   baseline,
		Best:       state.BestEval,
		BestForm:   state.BestForm,
		Steps:      r.steps,
		Candidates: r.candidates,
	}
	if err != nil {
		return summary, fmt.Errorf("optimization interrupted: %w", err)
	}
	return summary, nil
}

// ValidateAxes checks that every declared value can be applied to base.
func ValidateAxes(base profile.Form, axes []variation.Axis) error {
	for _, axis := range axes {
		if len(axis.Values) == 0 {
			return fmt.Errorf("axis %s has no values", axis.Label)
		}
		for _, v := range axis.Values {
			if _, err := profile.ApplyOverrides(base, []profile.Override{{Field: axis.Key, Value: v}}, ""); err != nil {
				return fmt.Errorf("axis %s: %w", axis.Label, err)
			}
		}
	}
	return nil
}

func (o *Optimizer) optimizeAxis(ctx context.Context, state State, axis variation.Axis, r *run) (State, error) {
	tested := make(map[string]bool)
	var numeric []float64

	// The current value was measured as part of BestEval.
	if current, ok := state.BestForm.Value(axis.Key); ok {
		tested[profile.NormalizeValue(axis.Key, current)] = true
		if v, ok := profile.ParseNumber(current); ok && axis.Key.Numeric() {
			numeric = append(numeric, v)
		}
	}

	for _, raw := range axis.Values {
		key := profile.NormalizeValue(axis.Key, raw)
		if tested[key] {
			continue
		}
		tested[key] = true
		if v, ok := profile.ParseNumber(raw); ok && axis.Key.Numeric() {
			numeric = append(numeric, v)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		state, _ = o.probe(ctx, state, axis, raw, raw, r)
	}

	if !axis.Key.Numeric() {
		return state, nil
	}

	inferred := InferStep(numeric)
	for i, size := range Cascade(inferred) {
		for iter := 0; iter < maxClimbIterations; iter++ {
			center, ok := currentNumber(state.BestForm, axis.Key)
			if !ok {
				return state, nil
			}

			improved := false
			for _, dir := range []float64{1, -1} {
				next := center + dir*size
				if axis.Key.Kind() == profile.KindInt {
					next = math.Round(next)
				}
				if !axis.Key.InDomain(next) {
					continue
				}
				raw := profile.FormatNumber(axis.Key, next)
				key := profile.NormalizeValue(axis.Key, raw)
				if tested[key] {
					continue
				}
				tested[key] = true
				if err := ctx.Err(); err != nil {
					return state, err
				}

				label := fmt.Sprintf("%s (%s)", raw, origin(i == 0 && inferred > 0, dir, size))
				var adopted bool
				state, adopted = o.probe(ctx, state, axis, raw, label, r)
				improved = improved || adopted
			}
			if !improved {
				break
			}
		}
	}
	return state, nil
}

// probe evaluates one value for axis on top of the current best and returns
// the resulting state and whether the candidate was adopted.
func (o *Optimizer) probe(ctx context.Context, state State, axis variation.Axis, raw, label string, r *run) (State, bool) {
	named := state.BestForm
	named.Name = r.baseName
	form, err := profile.ApplyOverrides(named, []profile.Override{{Field: axis.Key, Value: raw}}, "["+axis.Label+"="+raw+"]")
	if err != nil {
		// Discrete values were validated up front; generated probes are
		// always well-formed numbers.
		logger.Error("failed to build candidate", "axis", axis.Label, "value", raw, "error", err)
		return state, false
	}

	eval := o.evaluator.Evaluate(ctx, form, r.prompt)
	o.record(axis.Label, eval)

	cmp := Compare(state.BestEval.Stats, eval.Stats)
	adopted := state.accepts(eval)
	step := Step{
		Prompt:      r.prompt,
		Axis:        axis.Label,
		Parameter:   axis.Key,
		Value:       label,
		RawValue:    raw,
		Stats:       eval.Stats,
		Success:     eval.Success(),
		Errors:      eval.Result.Errors,
		Improvement: cmp.ImprovementMs,
		Adopted:     adopted,
		Result:      eval.Result,
	}
	r.steps = append(r.steps, step)

	if eval.Success() {
		r.candidates = append(r.candidates, Candidate{
			Prompt:      r.prompt,
			Parameter:   axis.Label,
			Value:       label,
			Form:        form,
			Snapshot:    profile.Snapshot(form),
			Result:      eval.Result,
			Stats:       eval.Stats,
			Improvement: cmp.ImprovementMs,
		})
	}

	logger.Info("candidate evaluated",
		"axis", axis.Label,
		"value", label,
		"success", step.Success,
		"latency_ms", eval.Stats.AverageLatency,
		"improvement_ms", step.Improvement,
		"adopted", adopted)

	if o.progress != nil {
		o.progress(step)
	}

	if adopted {
		return State{BestForm: form, BestEval: eval}, true
	}
	return state, false
}

func (o *Optimizer) record(label string, eval evaluate.Evaluation) {
	if o.collector != nil {
		o.collector.RecordEvaluation(label, eval.Stats)
	}
}

// InferStep derives a step size from the numeric values tested on an axis:
// the first nonzero gap between sorted values, otherwise half the first
// value's magnitude (1 when that magnitude is zero or at least 1). No values
// yields 0.
func InferStep(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i] - sorted[i-1]; gap > stepTolerance {
			return utils.Round(gap, 9)
		}
	}

	magnitude := math.Abs(values[0])
	if magnitude == 0 || magnitude >= 1 {
		return 1
	}
	return magnitude / 2
}

// Cascade lists the step sizes to climb with, largest-first after the
// inferred ones, without duplicates or non-positive sizes.
func Cascade(inferred float64) []float64 {
	sizes := append([]float64{inferred, inferred / 2}, fixedCascade...)
	out := make([]float64, 0, len(sizes))
	for _, s := range sizes {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		dup := false
		for _, seen := range out {
			if math.Abs(seen-s) < stepTolerance {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func currentNumber(form profile.Form, field profile.Field) (float64, bool) {
	raw, ok := form.Value(field)
	if !ok {
		return 0, false
	}
	return profile.ParseNumber(raw)
}

func origin(neighbor bool, dir, size float64) string {
	sign := "+"
	if dir < 0 {
		sign = "-"
	}
	if neighbor {
		return "neighbor " + sign
	}
	return "refine " + sign + strconv.FormatFloat(utils.Round(size, 6), 'f', -1, 64)
}
