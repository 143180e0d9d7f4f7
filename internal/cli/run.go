package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/report"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/config"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

// tuningFlags override the tuning and output sections of the config file.
type tuningFlags struct {
	prompt     string
	variations string
	planFile   string
	csvPath    string
	jsonPath   string
	topN       int
	apply      bool
}

func (f *tuningFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "primary prompt (overrides tuning.prompt)")
	cmd.Flags().StringVar(&f.variations, "variations", "", "inline variation matrix, one 'key=v1,v2' per line")
	cmd.Flags().StringVar(&f.planFile, "plan", "", "variation plan file (.yaml or text)")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "write every evaluation to this CSV file")
	cmd.Flags().StringVar(&f.jsonPath, "json", "", "write the full report to this JSON file")
	cmd.Flags().IntVar(&f.topN, "top", -1, "ranked candidates to show (overrides tuning.top_n)")
	cmd.Flags().BoolVar(&f.apply, "apply", false, "push the winning backend settings when done")
}

func (f *tuningFlags) applyTo(cfg *config.Config) error {
	if f.prompt != "" {
		cfg.Tuning.Prompt = f.prompt
	}
	if f.variations != "" && f.planFile != "" {
		return errors.New("--variations and --plan are mutually exclusive")
	}
	if f.variations != "" {
		cfg.Tuning.Variations = f.variations
		cfg.Tuning.PlanFile = ""
	}
	if f.planFile != "" {
		cfg.Tuning.PlanFile = f.planFile
		cfg.Tuning.Variations = ""
	}
	if f.csvPath != "" {
		cfg.Output.CSV = f.csvPath
	}
	if f.jsonPath != "" {
		cfg.Output.JSON = f.jsonPath
	}
	if f.topN >= 0 {
		cfg.Tuning.TopN = f.topN
	}
	return config.Validate(cfg)
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	flags := &tuningFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tune the base profile by coordinate descent",
		Long: `Measures the base profile, then tunes one variation axis at a time:
every listed value is tried, numeric axes are refined around the best value,
and any faster candidate becomes the new starting point. Each prompt is tuned
separately and the fastest result overall is recommended.`,
		Example: `  autotune run -c config/autotune.yaml
  autotune run --prompt "Summarize this paragraph" --variations "temperature=0.5,0.7"
  autotune run --plan plan.yaml --json report.json --apply`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuto(cmd, opts, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runAuto(cmd *cobra.Command, opts *globalOptions, flags *tuningFlags) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	if err := flags.applyTo(cfg); err != nil {
		return err
	}
	plan, err := cfg.Tuning.Plan()
	if err != nil {
		return err
	}

	client, closeClient, err := newBackendClient(cfg.Backend)
	if err != nil {
		return err
	}
	defer closeClient()

	collector := metrics.NewCollector()
	collector.Start()
	orchestrator := improvement.NewOrchestrator(evaluate.NewEvaluator(client, cfg.Tuning.HistoryEntries())).
		WithCollector(collector).
		WithProgressReporter(logStep)

	ctx := cmd.Context()
	rep, runErr := orchestrator.Run(ctx, plan)
	collector.Stop()
	if rep == nil {
		return runErr
	}

	if err := report.RenderSummary(cmd.OutOrStdout(), rep, cfg.Tuning.TopN); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	if err := writeOutputs(cfg.Output, rep.Evaluations(), rep); err != nil {
		return err
	}
	logCollector(collector)
	if runErr != nil {
		return runErr
	}

	if flags.apply {
		if !rep.Found {
			return errors.New("no successful measurement, nothing to apply")
		}
		return applyForm(cmd, client, rep.Recommended)
	}
	return nil
}

func newGridCommand(opts *globalOptions) *cobra.Command {
	flags := &tuningFlags{}
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Measure every combination of the variation matrix",
		Long: `Expands the variation matrix into every combination (at most 24), applies
each to the base profile and measures them against the primary prompt in
batches of up to 8 profiles per request.`,
		Example: `  autotune grid --variations "top_k=20,40
llm_n_gpu_layers=24,32"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrid(cmd, opts, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runGrid(cmd *cobra.Command, opts *globalOptions, flags *tuningFlags) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	if err := flags.applyTo(cfg); err != nil {
		return err
	}
	plan, err := cfg.Tuning.Plan()
	if err != nil {
		return err
	}
	prompts := plan.Prompts()
	if len(prompts) == 0 {
		return improvement.ErrNoPrompt
	}

	client, closeClient, err := newBackendClient(cfg.Backend)
	if err != nil {
		return err
	}
	defer closeClient()

	evaluator := evaluate.NewEvaluator(client, cfg.Tuning.HistoryEntries())
	grid, gridErr := improvement.RunGrid(cmd.Context(), evaluator, plan.Base, plan.Axes, prompts[0])
	if grid == nil {
		return gridErr
	}

	if err := report.RenderGrid(cmd.OutOrStdout(), grid); err != nil {
		return fmt.Errorf("failed to render grid: %w", err)
	}
	if err := writeOutputs(cfg.Output, grid.Evaluations(), grid); err != nil {
		return err
	}
	if gridErr != nil {
		return gridErr
	}

	if flags.apply {
		form, err := report.SelectGrid(grid, 0)
		if err != nil {
			return fmt.Errorf("nothing to apply: %w", err)
		}
		return applyForm(cmd, client, form)
	}
	return nil
}

func writeOutputs(out config.OutputConfig, evals []evaluate.Evaluation, full any) error {
	if out.CSV != "" {
		if err := report.WriteCSVFile(out.CSV, report.Rows(evals)); err != nil {
			return err
		}
		logger.Info("wrote CSV", "path", out.CSV, "rows", len(evals))
	}
	if out.JSON != "" {
		if err := report.WriteJSONFile(out.JSON, full); err != nil {
			return err
		}
		logger.Info("wrote JSON", "path", out.JSON)
	}
	return nil
}

func logStep(s improvement.Step) {
	logger.Info("candidate measured",
		"axis", s.Axis,
		"value", s.Value,
		"success", s.Success,
		"latency_ms", s.Stats.AverageLatency,
		"adopted", s.Adopted)
}

func logCollector(c *metrics.Collector) {
	summary := c.GetSummary()
	args := []any{
		"evaluations", summary.Evaluations,
		"failures", summary.Failures,
		"samples", summary.Samples,
		"duration", summary.Duration,
	}
	if summary.Latency != nil {
		args = append(args, "latency_p50_ms", summary.Latency.P50, "latency_p95_ms", summary.Latency.P95)
	}
	logger.Info("tuning finished", args...)
}
