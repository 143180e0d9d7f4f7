// Package metrics reduces benchmark results to latency and token statistics.
package metrics

import (
	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/utils"
)

// ProfileStats summarizes the runs of one ProfileResult. It is always
// recomputed from the result and never stored on its own.
type ProfileStats struct {
	Count                   int      `json:"count"`
	AverageLatency          float64  `json:"average_latency_ms"`
	MinLatency              float64  `json:"min_latency_ms"`
	MaxLatency              float64  `json:"max_latency_ms"`
	StdDevLatency           float64  `json:"stddev_latency_ms"`
	AveragePromptTokens     *float64 `json:"average_prompt_tokens,omitempty"`
	AverageCompletionTokens *float64 `json:"average_completion_tokens,omitempty"`
	AverageTotalTokens      *float64 `json:"average_total_tokens,omitempty"`
}

// Compute derives stats from the runs of result. Token means only cover the
// runs that reported the count; they stay nil when none did.
func Compute(result backend.ProfileResult) ProfileStats {
	n := len(result.Runs)
	if n == 0 {
		return ProfileStats{}
	}

	latencies := make([]float64, n)
	var prompt, completion, total []float64
	for i, run := range result.Runs {
		latencies[i] = run.LatencyMs
		if run.Usage.PromptTokens != nil {
			prompt = append(prompt, float64(*run.Usage.PromptTokens))
		}
		if run.Usage.CompletionTokens != nil {
			completion = append(completion, float64(*run.Usage.CompletionTokens))
		}
		if run.Usage.TotalTokens != nil {
			total = append(total, float64(*run.Usage.TotalTokens))
		}
	}

	min, max := utils.MinMax(latencies)
	return ProfileStats{
		Count:                   n,
		AverageLatency:          utils.Mean(latencies),
		MinLatency:              min,
		MaxLatency:              max,
		StdDevLatency:           utils.SampleStdDev(latencies),
		AveragePromptTokens:     meanOrNil(prompt),
		AverageCompletionTokens: meanOrNil(completion),
		AverageTotalTokens:      meanOrNil(total),
	}
}

// Successful reports whether the stats describe a usable measurement: at
// least one run with a finite, positive mean latency.
func (s ProfileStats) Successful() bool {
	return s.Count > 0 && utils.IsFinite(s.AverageLatency) && s.AverageLatency > 0
}

func meanOrNil(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := utils.Mean(values)
	return &m
}
