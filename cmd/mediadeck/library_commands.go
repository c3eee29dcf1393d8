package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/backend"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "List and manage saved videos and images",
	}
	libraryCmd.AddCommand(newLibraryListCommand(ctx))
	libraryCmd.AddCommand(newLibraryDeleteCommand(ctx))
	libraryCmd.AddCommand(newLibraryRenameCommand(ctx))
	return libraryCmd
}

func newLibraryListCommand(ctx *commandContext) *cobra.Command {
	var images, asJSON bool
	var q backend.ListQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(func(client *backend.Client) error {
				out := cmd.OutOrStdout()
				if images {
					page, err := client.ListImages(cmd.Context(), q)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, page)
					}
					rows := make([][]string, 0, len(page.Items))
					for _, img := range page.Items {
						rows = append(rows, libraryRow(img.ID, img.Title, img.Model, img.Status, img.SizeBytes, img.CreatedAt))
					}
					printLibraryPage(out, rows, page.Page, page.Pages, page.Total, "images")
					return nil
				}

				page, err := client.ListVideos(cmd.Context(), q)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, page)
				}
				rows := make([][]string, 0, len(page.Items))
				for _, v := range page.Items {
					rows = append(rows, libraryRow(v.ID, v.Title, v.Model, v.Status, v.SizeBytes, v.CreatedAt))
				}
				printLibraryPage(out, rows, page.Page, page.Pages, page.Total, "videos")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&images, "images", false, "List images instead of videos")
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.Size, "size", 20, "Page size (max 200)")
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "Filter by title or prompt")
	cmd.Flags().StringVar(&q.Model, "model", "", "Filter by model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func libraryRow(id, title, model, status string, size int64, created backend.Timestamp) []string {
	return []string{id, truncate(orDash(title), 40), orDash(model), orDash(status), formatBytes(size), formatTime(created.Time)}
}

func printLibraryPage(out io.Writer, rows [][]string, page, pages, total int, kind string) {
	if len(rows) == 0 {
		fmt.Fprintf(out, "No %s found\n", kind)
		return
	}
	fmt.Fprint(out, renderTable(
		[]string{"ID", "Title", "Model", "Status", "Size", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Page %d of %d (%d %s)\n", page, max(pages, 1), total, kind)
}

func newLibraryDeleteCommand(ctx *commandContext) *cobra.Command {
	var images bool
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete saved videos or images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(func(client *backend.Client) error {
				for _, id := range args {
					id = strings.TrimSpace(id)
					var err error
					if images {
						err = client.DeleteImage(cmd.Context(), id)
					} else {
						err = client.DeleteVideo(cmd.Context(), id)
					}
					if err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&images, "images", false, "Delete images instead of videos")
	return cmd
}

func newLibraryRenameCommand(ctx *commandContext) *cobra.Command {
	var images bool
	cmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a saved video or image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, title := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if title == "" {
				return fmt.Errorf("title must not be empty")
			}
			return ctx.withBackend(func(client *backend.Client) error {
				if images {
					img, err := client.RenameImage(cmd.Context(), id, title)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", img.ID, img.Title)
					return nil
				}
				v, err := client.RenameVideo(cmd.Context(), id, title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", v.ID, v.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&images, "images", false, "Rename an image instead of a video")
	return cmd
}
