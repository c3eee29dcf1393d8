package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Options carries the compose form values used to build a create payload.
type Options struct {
	Variant     string
	AspectRatio string
	Duration    int
	HD          bool
	Watermark   bool
	Private     bool
	NotifyHook  string
	Images      []string
}

// ErrInvalidOptions wraps every payload validation failure.
var ErrInvalidOptions = errors.New("invalid options")

const soraProVariant = "sora-2-pro"

type soraPayload struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspect_ratio"`
	Duration    int      `json:"duration"`
	HD          bool     `json:"hd"`
	Watermark   bool     `json:"watermark"`
	Private     bool     `json:"private"`
	NotifyHook  string   `json:"notify_hook,omitempty"`
	Images      []string `json:"images,omitempty"`
}

type basicPayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// BuildPayload validates opts for model and returns the JSON body for the
// create call along with a one-line summary for display.
func BuildPayload(model, prompt string, opts Options) (any, string, error) {
	prompt = strings.TrimSpace(prompt)
	if _, err := SpecFor(model); err != nil {
		return nil, "", err
	}
	if model != "sora2" {
		return basicPayload{Model: model, Prompt: prompt}, model, nil
	}

	isPro := opts.Variant == soraProVariant
	if !isPro && opts.HD {
		return nil, "", fmt.Errorf("%w: %s does not support HD, switch to %s", ErrInvalidOptions, opts.Variant, soraProVariant)
	}
	if !isPro && opts.Duration == 25 {
		return nil, "", fmt.Errorf("%w: %s does not support 25s, switch to %s", ErrInvalidOptions, opts.Variant, soraProVariant)
	}
	if opts.Duration == 25 && opts.HD {
		return nil, "", fmt.Errorf("%w: hd has no effect at 25s, disable HD or pick 10/15s", ErrInvalidOptions)
	}
	hook, err := validateNotifyHook(opts.NotifyHook)
	if err != nil {
		return nil, "", err
	}

	var images []string
	for _, img := range opts.Images {
		if img != "" {
			images = append(images, img)
		}
	}

	payload := soraPayload{
		Model:       opts.Variant,
		Prompt:      prompt,
		AspectRatio: opts.AspectRatio,
		Duration:    opts.Duration,
		HD:          opts.HD,
		Watermark:   opts.Watermark,
		Private:     opts.Private,
		NotifyHook:  hook,
		Images:      images,
	}
	meta := fmt.Sprintf("%s · %s · %ds · images=%d", opts.Variant, opts.AspectRatio, opts.Duration, len(images))
	return payload, meta, nil
}

func validateNotifyHook(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: notify_hook must be a valid url", ErrInvalidOptions)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: notify_hook must be an http/https url", ErrInvalidOptions)
	}
	return u.String(), nil
}
