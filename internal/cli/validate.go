package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/variation"
)

func newValidateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and show the compiled variation matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			plan, err := cfg.Tuning.Plan()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\n", opts.configPath)
			switch cfg.Backend.Transport {
			case "grpc":
				fmt.Fprintf(out, "backend: grpc %s\n", cfg.Backend.GRPCAddr)
			default:
				fmt.Fprintf(out, "backend: http %s\n", cfg.Backend.URL)
			}
			fmt.Fprintf(out, "prompts: %d\n", len(plan.Prompts()))
			fmt.Fprintf(out, "base profile: %s\n", plan.Base.Name)
			for _, line := range sortedSnapshot(profile.Snapshot(plan.Base)) {
				fmt.Fprintf(out, "  %s\n", line)
			}

			fmt.Fprintf(out, "axes: %d\n", len(plan.Axes))
			for _, a := range plan.Axes {
				fmt.Fprintf(out, "  %s: %s\n", a.Key, strings.Join(a.Values, ", "))
			}
			count := variation.Count(plan.Axes)
			note := ""
			if count > variation.MaxGridCombinations {
				note = " (too many for grid mode)"
			}
			fmt.Fprintf(out, "grid combinations: %d of %d%s\n", count, variation.MaxGridCombinations, note)
			return nil
		},
	}
}

func sortedSnapshot(snapshot map[string]string) []string {
	out := make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		out = append(out, k+" = "+v)
	}
	sort.Strings(out)
	return out
}
