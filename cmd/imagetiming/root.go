package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/config"
	"github.com/bobarin/imagetiming/internal/logging"
)

// commandContext carries settings shared by every subcommand.
type commandContext struct {
	logLevel  string
	logFormat string
}

func (c *commandContext) timing() (*config.Timing, error) {
	t, err := config.LoadTiming()
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		t.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		t.LogFormat = c.logFormat
	}
	return t, nil
}

func (c *commandContext) logger(t *config.Timing) (*zap.Logger, error) {
	return logging.New(t.LogLevel, t.LogFormat)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "imagetiming",
		Short:         "Allocate images to narrated video sections",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(newAllocateCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))

	return rootCmd
}
