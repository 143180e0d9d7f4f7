// Package cli wires the tuning engine into the autotune command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/profile-autotune/pkg/config"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "config/autotune.yaml"

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the autotune command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "autotune",
		Short: "Latency auto-tuning for LLM inference profiles",
		Long: `autotune measures candidate inference profiles against a running backend
and searches the configured variation matrix for the lowest response latency.

Use 'run' for coordinate descent, 'grid' to measure every combination and
'serve' to accept tuning runs over HTTP.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", DefaultConfigPath, "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format override (text, json)")

	root.AddCommand(
		newRunCommand(opts),
		newGridCommand(opts),
		newApplyCommand(opts),
		newServeCommand(opts),
		newValidateCommand(opts),
	)
	return root
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// load reads the config file, applies the logging flags and installs the
// default logger on the command's error stream.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	logger.SetDefault(logger.NewWithFormat(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr()))
	return cfg, nil
}
