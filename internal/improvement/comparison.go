package improvement

import (
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
)

// Comparison compares a candidate's latency stats against the current best.
type Comparison struct {
	ImprovementMs  float64 // current - candidate; positive means the candidate is faster
	ImprovementPct float64 // ImprovementMs relative to current
	Better         bool    // strictly faster and both measurements usable
	LatencyDiff    LatencyComparison
}

// LatencyComparison holds candidate - current differences
type LatencyComparison struct {
	MeanDiff   float64
	MinDiff    float64
	MaxDiff    float64
	StdDevDiff float64
}

// Compare compares candidate against current. When either side is not a
// usable measurement the comparison is zero and Better is false.
func Compare(current, candidate metrics.ProfileStats) Comparison {
	if !current.Successful() || !candidate.Successful() {
		return Comparison{}
	}

	improvement := current.AverageLatency - candidate.AverageLatency
	return Comparison{
		ImprovementMs:  improvement,
		ImprovementPct: improvement / current.AverageLatency * 100,
		Better:         improvement > 0,
		LatencyDiff: LatencyComparison{
			MeanDiff:   candidate.AverageLatency - current.AverageLatency,
			MinDiff:    candidate.MinLatency - current.MinLatency,
			MaxDiff:    candidate.MaxLatency - current.MaxLatency,
			StdDevDiff: candidate.StdDevLatency - current.StdDevLatency,
		},
	}
}

// FindBestEvaluation returns the index of the fastest usable stats, or -1.
// Ties keep the earliest.
func FindBestEvaluation(stats []metrics.ProfileStats) int {
	best := -1
	for i, s := range stats {
		if !s.Successful() {
			continue
		}
		if best < 0 || s.AverageLatency < stats[best].AverageLatency {
			best = i
		}
	}
	return best
}
