package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Kind distinguishes remote references from inline data.
type Kind string

const (
	KindURL  Kind = "url"
	KindData Kind = "data"
)

// Item is one reference image attached to the compose form.
type Item struct {
	ID    string
	Kind  Kind
	Value string
	Name  string
	Size  int64
}

// AddResult summarizes an AddFiles call.
type AddResult struct {
	Added      int
	Compressed int
	Skipped    []string
}

// ErrInvalidSource is returned when a value is neither an http(s) URL nor
// an image data URI.
var ErrInvalidSource = errors.New("invalid image source")

// Intake holds the ordered list of reference images.
type Intake struct {
	mu      sync.Mutex
	items   []Item
	reading int

	thresholdBytes int64
	maxDimension   int
	logger         *slog.Logger
}

// New returns an empty Intake. Files above thresholdBytes are downsampled
// so their long side is at most maxDimension.
func New(thresholdBytes int64, maxDimension int, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Intake{
		thresholdBytes: thresholdBytes,
		maxDimension:   maxDimension,
		logger:         logger,
	}
}

// AddFiles reads image files from disk and appends them as data URIs.
// Non-image files are skipped and reported in the result.
func (in *Intake) AddFiles(ctx context.Context, paths []string) (AddResult, error) {
	var result AddResult
	if len(paths) == 0 {
		return result, nil
	}

	in.mu.Lock()
	in.reading += len(paths)
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.reading -= len(paths)
		if in.reading < 0 {
			in.reading = 0
		}
		in.mu.Unlock()
	}()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item, compressed, err := in.readFile(path)
		if err != nil {
			if errors.Is(err, errNotImage) {
				in.logger.Warn("skipping non-image file", slog.String("path", path))
				result.Skipped = append(result.Skipped, path)
				continue
			}
			return result, err
		}

		in.mu.Lock()
		in.items = append(in.items, item)
		in.mu.Unlock()

		result.Added++
		if compressed {
			result.Compressed++
		}
	}
	return result, nil
}

var errNotImage = errors.New("not an image")

func (in *Intake) readFile(path string) (Item, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Item{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return Item{}, false, errNotImage
	}

	name := filepath.Base(path)
	originalSize := int64(len(data))
	compressed := false
	if originalSize > in.thresholdBytes {
		out, ok, err := Downsample(data, in.thresholdBytes, in.maxDimension)
		if err != nil {
			in.logger.Warn("downsample failed, keeping original",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else if ok {
			data = out
			mime = "image/jpeg"
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
			compressed = true
			in.logger.Info("image downsampled",
				slog.String("path", path),
				slog.String("before", humanize.Bytes(uint64(originalSize))),
				slog.String("after", humanize.Bytes(uint64(len(data)))),
			)
		}
	}

	return Item{
		ID:    uuid.NewString(),
		Kind:  KindData,
		Value: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		Name:  name,
		Size:  int64(len(data)),
	}, compressed, nil
}

// AddSourcesFromText appends one source per non-blank line and returns how
// many were accepted.
func (in *Intake) AddSourcesFromText(text string) int {
	added := 0
	for _, line := range strings.Split(text, "\n") {
		src := strings.TrimSpace(line)
		if src == "" {
			continue
		}
		kind, ok := classify(src)
		if !ok {
			in.logger.Warn("skipping invalid image source", slog.String("source", truncate(src, 80)))
			continue
		}
		name := "url"
		if kind == KindData {
			name = "base64"
		}
		in.mu.Lock()
		in.items = append(in.items, Item{ID: uuid.NewString(), Kind: kind, Value: src, Name: name})
		in.mu.Unlock()
		added++
	}
	return added
}

// Replace swaps the value of an existing item.
func (in *Intake) Replace(id, value string) error {
	src := strings.TrimSpace(value)
	kind, ok := classify(src)
	if !ok {
		return fmt.Errorf("%w: only http/https urls or data:image uris are supported", ErrInvalidSource)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		if in.items[i].ID == id {
			in.items[i].Value = src
			in.items[i].Kind = kind
			return nil
		}
	}
	return fmt.Errorf("image %s not found", id)
}

// Remove drops the item with id. It reports whether anything was removed.
func (in *Intake) Remove(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, item := range in.items {
		if item.ID == id {
			in.items = append(in.items[:i], in.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every item.
func (in *Intake) Clear() {
	in.mu.Lock()
	in.items = nil
	in.mu.Unlock()
}

// Items returns a copy of the current list.
func (in *Intake) Items() []Item {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Item, len(in.items))
	copy(out, in.items)
	return out
}

// Values returns the non-empty image sources in order.
func (in *Intake) Values() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []string
	for _, item := range in.items {
		if item.Value != "" {
			out = append(out, item.Value)
		}
	}
	return out
}

// Busy reports whether files are still being read.
func (in *Intake) Busy() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.reading > 0
}

func classify(src string) (Kind, bool) {
	if src == "" {
		return "", false
	}
	if strings.HasPrefix(src, "data:image/") {
		return KindData, true
	}
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return KindURL, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
