// Package imagegen runs still-image generations through the library
// backend. Prompts without source images go to the generations endpoint;
// prompts with sources, optionally masked, go to the edits endpoint.
package imagegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/intake"
)

// ErrMaskWithoutSource is returned when a mask is given with no image to
// paint it on.
var ErrMaskWithoutSource = errors.New("a mask needs a source image")

// Backend is the part of the library client used for image generation.
type Backend interface {
	GenerateImage(ctx context.Context, req backend.ImageRequest) (backend.ImageDetail, error)
	EditImage(ctx context.Context, req backend.ImageRequest) (backend.ImageDetail, error)
}

// Job is one image generation. Mask, when set, is painted over the first
// source before upload.
type Job struct {
	Request backend.ImageRequest
	Sources []intake.File
	Mask    []byte
}

// Edit reports whether the job goes to the edits endpoint.
func (j Job) Edit() bool {
	return len(j.Sources) > 0
}

// Run sends the job to b and returns the stored image.
func Run(ctx context.Context, b Backend, job Job) (backend.ImageDetail, error) {
	req := job.Request
	if !job.Edit() {
		if len(job.Mask) > 0 {
			return backend.ImageDetail{}, ErrMaskWithoutSource
		}
		req.Images = nil
		return b.GenerateImage(ctx, req)
	}

	sources := job.Sources
	if len(job.Mask) > 0 {
		masked, err := intake.ApplyMask(sources[0], job.Mask)
		if err != nil {
			return backend.ImageDetail{}, fmt.Errorf("apply mask: %w", err)
		}
		sources = append([]intake.File{masked}, sources[1:]...)
	}
	req.Images = make([]backend.ImageFile, 0, len(sources))
	for _, f := range sources {
		req.Images = append(req.Images, backend.ImageFile{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	return b.EditImage(ctx, req)
}

// RequestFromConfig builds an image request from the saved defaults. The
// provider credentials are forwarded so the backend calls the same gateway.
func RequestFromConfig(cfg config.Config, prompt string) backend.ImageRequest {
	return backend.ImageRequest{
		Model:       cfg.ImageModel,
		Prompt:      prompt,
		N:           1,
		ImageSize:   cfg.ImageSize,
		AspectRatio: cfg.ImageAspectRatio,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
	}
}
