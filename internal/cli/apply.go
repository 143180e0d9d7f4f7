package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/report"
)

type applyFlags struct {
	reportPath string
	rank       int
	dryRun     bool
}

func newApplyCommand(opts *globalOptions) *cobra.Command {
	flags := &applyFlags{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Push backend settings from a saved report or the base profile",
		Long: `Sends the backend settings of a profile to the backend configuration
endpoint. Sampling options are never sent. Without --report the configured
base profile is applied; with --report, rank 0 applies the recommendation and
rank n the n-th fastest candidate.`,
		Example: `  autotune apply --report report.json
  autotune apply --report report.json --rank 2 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts, flags)
		},
	}
	cmd.Flags().StringVar(&flags.reportPath, "report", "", "JSON report written by 'run --json'")
	cmd.Flags().IntVar(&flags.rank, "rank", 0, "candidate rank to apply (0 = recommended)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the patch without sending it")
	return cmd
}

func runApply(cmd *cobra.Command, opts *globalOptions, flags *applyFlags) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	var form profile.Form
	if flags.reportPath != "" {
		form, err = loadReportForm(flags.reportPath, flags.rank)
	} else {
		form, err = cfg.BaseForm()
	}
	if err != nil {
		return err
	}

	if flags.dryRun {
		return report.WriteJSON(cmd.OutOrStdout(), profile.BuildPatch(form))
	}

	client, closeClient, err := newBackendClient(cfg.Backend)
	if err != nil {
		return err
	}
	defer closeClient()
	return applyForm(cmd, client, form)
}

func applyForm(cmd *cobra.Command, client backend.Client, form profile.Form) error {
	result := report.Apply(cmd.Context(), client, form)
	if !result.OK() {
		return result.Err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %q (%d settings)\n", form.Name, len(result.Patch))
	return nil
}

// savedReport is the subset of a JSON report needed to rebuild forms.
type savedReport struct {
	Found       bool                    `json:"found"`
	Recommended map[string]string       `json:"recommended"`
	Candidates  []improvement.Candidate `json:"candidates"`
}

func loadReportForm(path string, rank int) (profile.Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profile.Form{}, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	var saved savedReport
	if err := json.Unmarshal(data, &saved); err != nil {
		return profile.Form{}, fmt.Errorf("failed to parse report %s: %w", path, err)
	}

	if rank == 0 {
		if len(saved.Recommended) == 0 {
			return profile.Form{}, errors.New("report has no recommendation")
		}
		return profile.FromSnapshot("recommended", saved.Recommended)
	}

	ranked := report.Rank(saved.Candidates, 0)
	if rank < 0 || rank > len(ranked) {
		return profile.Form{}, &report.RankError{Rank: rank, Available: len(ranked)}
	}
	c := ranked[rank-1]
	return profile.FromSnapshot(fmt.Sprintf("rank %d (%s=%s)", rank, c.Parameter, c.Value), c.Snapshot)
}
