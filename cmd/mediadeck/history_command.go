package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var clear, asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished tasks recorded on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if clear {
				n, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d entries\n", n)
				return nil
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No finished tasks recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				result := e.VideoURL
				if e.FailReason != "" {
					result = e.FailReason
				}
				rows = append(rows, []string{
					formatTime(e.FinishedAt),
					truncate(e.Name, 28),
					e.Model,
					e.Status,
					orDash(e.SavedID),
					truncate(orDash(result), 50),
				})
			}
			fmt.Fprint(out, renderTable([]string{"Finished", "Name", "Model", "Status", "Saved", "Result"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Entries to show (0 for all)")
	cmd.Flags().BoolVar(&clear, "clear", false, "Delete every recorded entry")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
