package report

import (
	"fmt"
	"sort"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

// RankError is returned when a requested rank does not exist.
type RankError struct {
	Rank      int
	Available int
}

func (e *RankError) Error() string {
	return fmt.Sprintf("rank %d out of range (1..%d)", e.Rank, e.Available)
}

// Select picks the form to apply from a tuning report: rank 0 is the
// recommended form, rank n the n-th entry of the full ranking.
func Select(rep *improvement.Report, rank int) (profile.Form, error) {
	if rank == 0 {
		return rep.Recommended.Clone(), nil
	}
	ranked := Rank(rep.Candidates, 0)
	if rank < 0 || rank > len(ranked) {
		return profile.Form{}, &RankError{Rank: rank, Available: len(ranked)}
	}
	return ranked[rank-1].Form.Clone(), nil
}

// SelectGrid picks from a grid report: rank 0 or 1 is the fastest usable
// combination, rank n the n-th fastest.
func SelectGrid(grid *improvement.GridReport, rank int) (profile.Form, error) {
	var usable []improvement.GridEntry
	for _, e := range grid.Entries {
		if e.Evaluation.Stats.Successful() {
			usable = append(usable, e)
		}
	}
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Evaluation.Stats.AverageLatency < usable[j].Evaluation.Stats.AverageLatency
	})
	if rank == 0 {
		rank = 1
	}
	if rank < 0 || rank > len(usable) {
		return profile.Form{}, &RankError{Rank: rank, Available: len(usable)}
	}
	return usable[rank-1].Form.Clone(), nil
}
