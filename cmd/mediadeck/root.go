package main

import (
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return buildRootCommand(nil)
}

// buildRootCommand wires every subcommand. hc replaces the default HTTP
// client when non-nil.
func buildRootCommand(hc *http.Client) *cobra.Command {
	var configFlag string
	var prefsFlag string

	ctx := newCommandContext(&configFlag, &prefsFlag)
	ctx.httpClient = hc

	rootCmd := &cobra.Command{
		Use:           "mediadeck",
		Short:         "Generate videos and manage your media library from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The TUI needs a terminal; piped output gets the help text.
			if !isTerminal(os.Stdout) || !isTerminal(os.Stdin) {
				return cmd.Help()
			}
			return runTUI(cmd, ctx, 0)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&prefsFlag, "prefs", "", "UI preferences file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Also write logs to stderr (non-interactive commands)")

	rootCmd.AddCommand(newTUICommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newGenerateImageCommand(ctx))
	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newLogoutCommand(ctx))
	rootCmd.AddCommand(newLibraryCommand(ctx))
	rootCmd.AddCommand(newAdminCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
