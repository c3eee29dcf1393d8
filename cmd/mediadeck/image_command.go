package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/app"
	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/imagegen"
)

type imageFlags struct {
	model     string
	count     int
	size      string
	aspect    string
	imageSize string
	title     string
	images    []string
	mask      string
	json      bool
}

type imageResult struct {
	ID     string   `json:"id"`
	Title  string   `json:"title,omitempty"`
	Model  string   `json:"model"`
	Status string   `json:"status,omitempty"`
	URLs   []string `json:"urls"`
}

func newGenerateImageCommand(ctx *commandContext) *cobra.Command {
	var flags imageFlags

	cmd := &cobra.Command{
		Use:   "generate-image [prompt]",
		Short: "Generate or edit an image and save it to the library",
		Long: `Generate an image through the library backend, which stores the result.

With --image the sources are edited instead. --mask paints a PNG overlay on
the first source before upload; transparent mask pixels leave it untouched.
Use "-" as the prompt to read it from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			var mask []byte
			if flags.mask != "" {
				if len(flags.images) == 0 {
					return imagegen.ErrMaskWithoutSource
				}
				if mask, err = os.ReadFile(flags.mask); err != nil {
					return fmt.Errorf("read mask: %w", err)
				}
			}

			return ctx.withServices(cmd, app.ServiceOptions{SkipHistory: true}, func(svc *app.Services) error {
				req := buildImageRequest(cmd, svc, strings.TrimSpace(prompt), flags)
				if err := attachImages(cmd.Context(), svc.Intake, flags.images); err != nil {
					return err
				}
				sources, err := svc.Intake.Files(cmd.Context(), ctx.httpClient)
				if err != nil {
					return err
				}
				detail, err := imagegen.Run(cmd.Context(), svc.Backend, imagegen.Job{Request: req, Sources: sources, Mask: mask})
				if err != nil {
					return err
				}
				return printImageResult(cmd, detail, flags.json)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.model, "model", "m", "", "Image model (defaults to image_model)")
	f.IntVarP(&flags.count, "count", "n", 1, "Number of images (max 10)")
	f.StringVar(&flags.size, "size", "", "Output size for generations: "+strings.Join(backend.ImageSizes, ", "))
	f.StringVar(&flags.aspect, "aspect", "", "Aspect ratio, such as 1:1 or 16:9")
	f.StringVar(&flags.imageSize, "image-size", "", "Output size for edits: 1K, 2K or 4K")
	f.StringVar(&flags.title, "title", "", "Library title")
	f.StringArrayVarP(&flags.images, "image", "i", nil, "Source image: file path, URL or data:image URI (repeatable)")
	f.StringVar(&flags.mask, "mask", "", "PNG mask painted over the first source image")
	f.BoolVar(&flags.json, "json", false, "Output JSON")
	return cmd
}

func buildImageRequest(cmd *cobra.Command, svc *app.Services, prompt string, flags imageFlags) backend.ImageRequest {
	req := imagegen.RequestFromConfig(svc.Config, prompt)
	req.Title = strings.TrimSpace(flags.title)
	req.N = flags.count

	changed := cmd.Flags().Changed
	if changed("model") {
		req.Model = flags.model
	}
	if changed("size") {
		req.Size = flags.size
	}
	if changed("aspect") {
		req.AspectRatio = flags.aspect
	}
	if changed("image-size") {
		req.ImageSize = flags.imageSize
	}
	return req
}

func printImageResult(cmd *cobra.Command, detail backend.ImageDetail, asJSON bool) error {
	urls := detail.URLs()
	if asJSON {
		return writeJSON(cmd, imageResult{
			ID:     detail.ID,
			Title:  detail.Title,
			Model:  detail.Model,
			Status: detail.Status,
			URLs:   urls,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved image %s\n", orDash(detail.ID))
	for _, u := range urls {
		fmt.Fprintln(out, truncate(u, 120))
	}
	return nil
}
