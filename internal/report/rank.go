// Package report ranks tuning results, renders them and applies a chosen
// configuration to the backend.
package report

import (
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
)

// Rank sorts successful candidates by mean latency, fastest first, and drops
// entries repeating the same prompt, parameter, value and rounded latency.
// limit <= 0 keeps every entry.
func Rank(candidates []improvement.Candidate, limit int) []improvement.Candidate {
	sorted := make([]improvement.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Stats.Successful() {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Stats.AverageLatency < sorted[j].Stats.AverageLatency
	})

	type key struct {
		prompt, parameter, value string
		latency                  int64
	}
	seen := make(map[key]bool)
	out := make([]improvement.Candidate, 0, len(sorted))
	for _, c := range sorted {
		k := key{c.Prompt, c.Parameter, c.Value, int64(math.Round(c.Stats.AverageLatency))}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
