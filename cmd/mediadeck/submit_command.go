package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/app"
	"github.com/five82/mediadeck/internal/intake"
	"github.com/five82/mediadeck/internal/tasks"
)

type submitFlags struct {
	name      string
	model     string
	variant   string
	aspect    string
	duration  int
	batch     int
	hd        bool
	watermark bool
	private   bool
	hook      string
	images    []string
	wait      bool
	json      bool
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags

	cmd := &cobra.Command{
		Use:   "submit [prompt]",
		Short: "Submit a generation task",
		Long: `Submit a prompt to the configured provider.

Unset flags fall back to the saved compose defaults. Use "-" as the prompt
to read it from stdin. Tasks live only as long as this process: without
--wait the command returns once the provider has accepted each task.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, app.ServiceOptions{}, func(svc *app.Services) error {
				req := buildSubmitRequest(cmd, svc, prompt, flags)
				if err := attachImages(cmd.Context(), svc.Intake, flags.images); err != nil {
					return err
				}
				req.Options.Images = svc.Intake.Values()

				count := svc.Config.BatchCount
				if cmd.Flags().Changed("batch") {
					count = flags.batch
				}
				created, err := svc.Tasks.SubmitBatch(req, count)
				if err != nil {
					return err
				}

				results := make([]tasks.Task, 0, len(created))
				for _, t := range created {
					var final tasks.Task
					if flags.wait {
						final, err = svc.Tasks.Wait(cmd.Context(), t.LocalID)
					} else {
						final, err = waitCreated(cmd.Context(), svc.Tasks, t.LocalID)
					}
					if err != nil {
						return err
					}
					results = append(results, final)
				}
				return printSubmitResults(cmd, results, flags.json)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.name, "name", "", "Task name (defaults to the start of the prompt)")
	f.StringVarP(&flags.model, "model", "m", "", "Model: sora2, veo, seedance or newmodel")
	f.StringVar(&flags.variant, "variant", "", "Sora variant: sora-2 or sora-2-pro")
	f.StringVar(&flags.aspect, "aspect", "", "Aspect ratio: 16:9 or 9:16")
	f.IntVar(&flags.duration, "duration", 0, "Duration in seconds: 10, 15 or 25")
	f.IntVarP(&flags.batch, "batch", "n", 1, "Number of copies to submit (max 20)")
	f.BoolVar(&flags.hd, "hd", false, "Request HD output (sora-2-pro)")
	f.BoolVar(&flags.watermark, "watermark", false, "Keep the provider watermark")
	f.BoolVar(&flags.private, "private", false, "Hide the result from the provider's public feed")
	f.StringVar(&flags.hook, "notify-hook", "", "Webhook the provider calls on completion")
	f.StringArrayVarP(&flags.images, "image", "i", nil, "Reference image: file path, URL or data:image URI (repeatable)")
	f.BoolVarP(&flags.wait, "wait", "w", false, "Wait until every task finishes")
	f.BoolVar(&flags.json, "json", false, "Output JSON")
	return cmd
}

func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("a prompt is required (pass - to read stdin)")
	}
	if args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return string(data), nil
}

// buildSubmitRequest starts from the saved defaults and applies any flag the
// user actually set.
func buildSubmitRequest(cmd *cobra.Command, svc *app.Services, prompt string, flags submitFlags) tasks.Request {
	req := app.RequestFromConfig(svc.Config, strings.TrimSpace(prompt))
	req.Name = strings.TrimSpace(flags.name)

	changed := cmd.Flags().Changed
	if changed("model") {
		req.Model = flags.model
	}
	if changed("variant") {
		req.Options.Variant = flags.variant
	}
	if changed("aspect") {
		req.Options.AspectRatio = flags.aspect
	}
	if changed("duration") {
		req.Options.Duration = flags.duration
	}
	if changed("hd") {
		req.Options.HD = flags.hd
	}
	if changed("watermark") {
		req.Options.Watermark = flags.watermark
	}
	if changed("private") {
		req.Options.Private = flags.private
	}
	if changed("notify-hook") {
		req.Options.NotifyHook = flags.hook
	}
	return req
}

func attachImages(ctx context.Context, in *intake.Intake, sources []string) error {
	var paths []string
	for _, src := range sources {
		src = strings.TrimSpace(src)
		lower := strings.ToLower(src)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
			if in.AddSourcesFromText(src) == 0 {
				return fmt.Errorf("%w: %s", intake.ErrInvalidSource, truncate(src, 60))
			}
			continue
		}
		paths = append(paths, src)
	}
	if len(paths) == 0 {
		return nil
	}
	res, err := in.AddFiles(ctx, paths)
	if err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		return fmt.Errorf("not an image: %s", strings.Join(res.Skipped, ", "))
	}
	return nil
}

// waitCreated blocks until the provider has assigned a task id or the task
// has finished.
func waitCreated(ctx context.Context, mgr *tasks.Manager, id string) (tasks.Task, error) {
	ch, unsubscribe := mgr.Subscribe()
	defer unsubscribe()
	for {
		t, ok := mgr.Get(id)
		if !ok {
			return tasks.Task{}, tasks.ErrNotFound
		}
		if t.ProviderTaskID != "" || t.Terminal() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ch:
		}
	}
}

type submitResult struct {
	LocalID        string   `json:"local_id"`
	Name           string   `json:"name"`
	ProviderTaskID string   `json:"provider_task_id,omitempty"`
	Status         string   `json:"status"`
	Progress       int      `json:"progress"`
	VideoURL       string   `json:"video_url,omitempty"`
	FailReason     string   `json:"fail_reason,omitempty"`
	SavedID        string   `json:"saved_id,omitempty"`
	SaveError      string   `json:"save_error,omitempty"`
	Cost           *float64 `json:"cost,omitempty"`
}

func printSubmitResults(cmd *cobra.Command, results []tasks.Task, asJSON bool) error {
	failed := 0
	for _, t := range results {
		if t.Status == tasks.StatusFailed {
			failed++
		}
	}

	if asJSON {
		out := make([]submitResult, 0, len(results))
		for _, t := range results {
			out = append(out, submitResult{
				LocalID:        t.LocalID,
				Name:           t.Name,
				ProviderTaskID: t.ProviderTaskID,
				Status:         string(t.Status),
				Progress:       t.Progress,
				VideoURL:       t.VideoURL,
				FailReason:     t.FailReason,
				SavedID:        t.Save.SavedID,
				SaveError:      t.Save.Error,
				Cost:           t.Cost,
			})
		}
		if err := writeJSON(cmd, out); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(results))
		for _, t := range results {
			detail := t.VideoURL
			if t.FailReason != "" {
				detail = t.FailReason
			}
			rows = append(rows, []string{
				truncate(t.Name, 30),
				orDash(t.ProviderTaskID),
				t.Status.Label(),
				fmt.Sprintf("%d%%", t.Progress),
				orDash(t.Save.SavedID),
				truncate(orDash(detail), 60),
			})
		}
		fmt.Fprint(cmd.OutOrStdout(), renderTable(
			[]string{"Name", "Provider ID", "Status", "Progress", "Saved", "Result"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d task(s) failed", failed, len(results))
	}
	return nil
}
