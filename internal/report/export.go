package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
)

// Row is the flat export of one evaluated profile.
type Row struct {
	Name                    string   `json:"name"`
	Description             string   `json:"description"`
	Samples                 int      `json:"samples"`
	Runs                    int      `json:"runs"`
	AverageLatency          float64  `json:"average_latency_ms"`
	MinLatency              float64  `json:"min_latency_ms"`
	MaxLatency              float64  `json:"max_latency_ms"`
	StdDevLatency           float64  `json:"stddev_latency_ms"`
	GainMs                  *float64 `json:"gain_ms,omitempty"`
	GainPct                 *float64 `json:"gain_pct,omitempty"`
	AveragePromptTokens     *float64 `json:"average_prompt_tokens,omitempty"`
	AverageCompletionTokens *float64 `json:"average_completion_tokens,omitempty"`
	AverageTotalTokens      *float64 `json:"average_total_tokens,omitempty"`
	AppliedOptions          string   `json:"applied_options"`
	AppliedSettings         string   `json:"applied_settings"`
	Errors                  string   `json:"errors"`
}

var csvHeader = []string{
	"name", "description", "samples", "runs",
	"average_latency_ms", "min_latency_ms", "max_latency_ms", "stddev_latency_ms",
	"gain_ms", "gain_pct",
	"average_prompt_tokens", "average_completion_tokens", "average_total_tokens",
	"applied_options", "applied_settings", "errors",
}

// Rows flattens evaluations. Gain is measured against the first evaluated
// profile and left empty when either side has no usable latency.
func Rows(evals []evaluate.Evaluation) []Row {
	rows := make([]Row, len(evals))
	for i, e := range evals {
		s := e.Stats
		row := Row{
			Name:                    e.Result.Name,
			Description:             e.Result.Description,
			Samples:                 e.Result.Samples,
			Runs:                    s.Count,
			AverageLatency:          s.AverageLatency,
			MinLatency:              s.MinLatency,
			MaxLatency:              s.MaxLatency,
			StdDevLatency:           s.StdDevLatency,
			AveragePromptTokens:     s.AveragePromptTokens,
			AverageCompletionTokens: s.AverageCompletionTokens,
			AverageTotalTokens:      s.AverageTotalTokens,
			AppliedOptions:          jsonString(e.Result.AppliedOptions),
			AppliedSettings:         jsonString(e.Result.AppliedSettings),
			Errors:                  strings.Join(e.Result.Errors, " | "),
		}
		if i > 0 && evals[0].Success() && e.Success() {
			cmp := improvement.Compare(evals[0].Stats, s)
			row.GainMs = &cmp.ImprovementMs
			row.GainPct = &cmp.ImprovementPct
		}
		rows[i] = row
	}
	return rows
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Name,
			r.Description,
			strconv.Itoa(r.Samples),
			strconv.Itoa(r.Runs),
			fmt.Sprintf("%.2f", r.AverageLatency),
			fmt.Sprintf("%.2f", r.MinLatency),
			fmt.Sprintf("%.2f", r.MaxLatency),
			fmt.Sprintf("%.2f", r.StdDevLatency),
			optional(r.GainMs, 2),
			optional(r.GainPct, 2),
			optional(r.AveragePromptTokens, 1),
			optional(r.AverageCompletionTokens, 1),
			optional(r.AverageTotalTokens, 1),
			r.AppliedOptions,
			r.AppliedSettings,
			r.Errors,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteCSVFile writes rows to path, overwriting it.
func WriteCSVFile(path string, rows []Row) error {
	return writeFile(path, func(w io.Writer) error { return WriteCSV(w, rows) })
}

// WriteJSONFile writes v to path, overwriting it.
func WriteJSONFile(path string, v any) error {
	return writeFile(path, func(w io.Writer) error { return WriteJSON(w, v) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func optional(v *float64, decimals int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', decimals, 64)
}

func jsonString(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
