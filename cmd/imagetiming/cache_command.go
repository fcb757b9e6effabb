package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobarin/imagetiming/internal/cache"
	"github.com/bobarin/imagetiming/internal/workdir"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the allocation cache",
	}

	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached allocation of a working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.timing()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(t)
			if err != nil {
				return err
			}
			defer logger.Sync()

			path := workdir.Layout{Root: dir}.CachePath()
			if err := cache.NewFileStore(path, logger).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared allocation cache at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "workdir", "w", "", "Video working directory")
	_ = cmd.MarkFlagRequired("workdir")

	return cmd
}
