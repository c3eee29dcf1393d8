package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/image/draw"
)

// MaxUploadBytes bounds a single source image sent for editing.
const MaxUploadBytes = 10 << 20

// ErrTooLarge is returned for source images above MaxUploadBytes.
var ErrTooLarge = errors.New("image exceeds 10 MiB")

// File is an image's raw bytes, ready for upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Files returns the bytes of every item in order. Data URIs are decoded and
// URLs are downloaded with hc, or http.DefaultClient when nil.
func (in *Intake) Files(ctx context.Context, hc *http.Client) ([]File, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	var files []File
	for i, item := range in.Items() {
		var (
			f   File
			err error
		)
		switch item.Kind {
		case KindData:
			f, err = parseDataURI(item.Value)
		case KindURL:
			f, err = fetchImage(ctx, hc, item.Value)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		if item.Name != "" && item.Name != "url" && item.Name != "base64" {
			f.Name = item.Name
		}
		if f.Name == "" {
			f.Name = fmt.Sprintf("image-%d%s", i+1, extensionFor(f.ContentType))
		}
		files = append(files, f)
	}
	return files, nil
}

func parseDataURI(value string) (File, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return File{}, fmt.Errorf("%w: expected a base64 data uri", ErrInvalidSource)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if len(data) > MaxUploadBytes {
		return File{}, ErrTooLarge
	}
	return File{ContentType: strings.TrimSuffix(header, ";base64"), Data: data}, nil
}

func fetchImage(ctx context.Context, hc *http.Client, rawURL string) (File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return File{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("download %s: %w", truncate(rawURL, 60), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return File{}, fmt.Errorf("download %s: http %d", truncate(rawURL, 60), resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxUploadBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("download %s: %w", truncate(rawURL, 60), err)
	}
	if len(data) > MaxUploadBytes {
		return File{}, ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return File{}, fmt.Errorf("%w: %s is %s", errNotImage, truncate(rawURL, 60), contentType)
	}
	var name string
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	return File{Name: name, ContentType: contentType, Data: data}, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "":
		return ".png"
	}
	return "." + strings.TrimPrefix(contentType, "image/")
}

// ApplyMask paints mask over base and returns the result as PNG. The mask
// is stretched to base's size without smoothing; its transparent pixels
// leave base untouched.
func ApplyMask(base File, mask []byte) (File, error) {
	src, _, err := image.Decode(bytes.NewReader(base.Data))
	if err != nil {
		return File{}, fmt.Errorf("decode image: %w", err)
	}
	overlay, _, err := image.Decode(bytes.NewReader(mask))
	if err != nil {
		return File{}, fmt.Errorf("decode mask: %w", err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), overlay, overlay.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return File{}, fmt.Errorf("encode png: %w", err)
	}
	name := strings.TrimSuffix(base.Name, path.Ext(base.Name))
	if name == "" {
		name = "image"
	}
	return File{Name: name + ".png", ContentType: "image/png", Data: buf.Bytes()}, nil
}
