package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/app"
)

func newTUICommand(ctx *commandContext) *cobra.Command {
	var poll time.Duration
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal interface (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, ctx, poll)
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 0, "Library refresh interval (default 5s)")
	return cmd
}

func runTUI(cmd *cobra.Command, ctx *commandContext, poll time.Duration) error {
	return app.Run(cmd.Context(), app.Options{
		ConfigPath: ctx.configPath(),
		PrefsPath:  ctx.prefsPath(),
		PollEvery:  poll,
	})
}
