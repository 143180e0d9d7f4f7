package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
)

const promptPreview = 48

// RenderSummary writes a plain-text summary: baseline against best for each
// prompt, the recommended configuration and the top ranked candidates.
func RenderSummary(w io.Writer, rep *improvement.Report, topN int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "PROMPT\tBASELINE (ms)\tBEST (ms)\tGAIN (ms)\tGAIN (%)\tSTEPS")
	for i, s := range rep.Summaries {
		gain := s.Gain()
		marker := ""
		if rep.Found && i == rep.GlobalIndex {
			marker = " *"
		}
		fmt.Fprintf(tw, "[%d] %s%s\t%s\t%s\t%.2f\t%.1f\t%d\n",
			i+1, preview(s.Prompt), marker,
			latency(s.Baseline.Success(), s.Baseline.Stats.AverageLatency),
			latency(s.Best.Success(), s.Best.Stats.AverageLatency),
			gain.ImprovementMs, gain.ImprovementPct, len(s.Steps))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if !rep.Found {
		fmt.Fprintln(w, "No successful measurement; the base profile is unchanged.")
	}
	fmt.Fprintln(w, "Recommended configuration:")
	keys := make([]string, 0, len(rep.Snapshot))
	for k := range rep.Snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", k, rep.Snapshot[k])
	}

	ranked := Rank(rep.Candidates, topN)
	if len(ranked) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPARAMETER\tVALUE\tMEAN (ms)\tSTD (ms)\tRUNS\tPROMPT")
	for i, c := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.2f\t%d\t%s\n",
			i+1, c.Parameter, c.Value, c.Stats.AverageLatency, c.Stats.StdDevLatency, c.Stats.Count, preview(c.Prompt))
	}
	return tw.Flush()
}

// RenderGrid writes one line per grid combination, fastest marked.
func RenderGrid(w io.Writer, grid *improvement.GridReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOMBINATION\tMEAN (ms)\tMIN (ms)\tMAX (ms)\tRUNS\tERRORS")
	for i, e := range grid.Entries {
		marker := ""
		if i == grid.BestIndex {
			marker = " *"
		}
		s := e.Evaluation.Stats
		combo := e.Combination
		if combo == "" {
			combo = "(base)"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%.2f\t%.2f\t%d\t%d\n",
			i+1, marker, combo, latency(e.Evaluation.Success(), s.AverageLatency),
			s.MinLatency, s.MaxLatency, s.Count, len(e.Evaluation.Result.Errors))
	}
	return tw.Flush()
}

func latency(ok bool, v float64) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func preview(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	runes := []rune(prompt)
	if len(runes) <= promptPreview {
		return prompt
	}
	return string(runes[:promptPreview-3]) + "..."
}
