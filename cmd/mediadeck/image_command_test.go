package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/five82/mediadeck/internal/imagegen"
)

type imageUpload struct {
	path   string
	fields map[string]string
	files  []string
	first  []byte
	apiKey string
}

// imageBackend accepts image generations and edits and keeps each parsed
// multipart form.
type imageBackend struct {
	mu      sync.Mutex
	uploads []imageUpload
}

func newImageBackend(t *testing.T) (*imageBackend, *httptest.Server) {
	t.Helper()
	ib := &imageBackend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("access_token"); err != nil || ck.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost || (r.URL.Path != "/api/v1/images/generations" && r.URL.Path != "/api/v1/images/edits") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		up := imageUpload{path: r.URL.Path, fields: map[string]string{}, apiKey: r.Header.Get("X-API-Key")}
		for k, v := range r.MultipartForm.Value {
			up.fields[k] = v[0]
		}
		for i, fh := range r.MultipartForm.File["image"] {
			up.files = append(up.files, fh.Filename)
			if i == 0 {
				f, _ := fh.Open()
				up.first, _ = io.ReadAll(f)
				_ = f.Close()
			}
		}
		ib.mu.Lock()
		ib.uploads = append(ib.uploads, up)
		ib.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"img-7","title":"harbor","model":"gemini-2.5-flash-image","status":"completed",
			"response":{"data":[{"url":"https://cdn.test/a.png"},{"b64_json":"AAAA"}]}}`)
	}))
	t.Cleanup(srv.Close)
	return ib, srv
}

func (b *imageBackend) last(t *testing.T) imageUpload {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.uploads) == 0 {
		t.Fatal("backend received no image request")
	}
	return b.uploads[len(b.uploads)-1]
}

func writeSolidPNG(t *testing.T, dir, name string, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

func TestGenerateImage_TextToImage(t *testing.T) {
	env := setupCLITestEnv(t)
	ib, srv := newImageBackend(t)
	env.writeConfig(t, sessionConfig(srv.URL)+"api_key = \"sk-test\"\nimage_aspect_ratio = \"16:9\"\n")

	out, _, err := runCLI(t, []string{"generate-image", "-n", "2", "--size", "2K", "--title", "harbor", "a harbor at night"}, env.configPath, "")
	if err != nil {
		t.Fatalf("generate-image: %v", err)
	}
	up := ib.last(t)
	if up.path != "/api/v1/images/generations" {
		t.Fatalf("path = %s, want generations", up.path)
	}
	want := map[string]string{
		"model":        "gemini-2.5-flash-image",
		"prompt":       "a harbor at night",
		"n":            "2",
		"size":         "2K",
		"aspect_ratio": "16:9",
		"title":        "harbor",
	}
	for k, v := range want {
		if up.fields[k] != v {
			t.Fatalf("field %s = %q, want %q", k, up.fields[k], v)
		}
	}
	if up.apiKey != "sk-test" {
		t.Fatalf("X-API-Key = %q, want sk-test", up.apiKey)
	}
	requireContains(t, out, "Saved image img-7")
	requireContains(t, out, "https://cdn.test/a.png")
	requireContains(t, out, "data:image/png;base64,AAAA")
}

func TestGenerateImage_EditWithMask(t *testing.T) {
	env := setupCLITestEnv(t)
	ib, srv := newImageBackend(t)
	env.writeConfig(t, sessionConfig(srv.URL))
	dir := t.TempDir()
	base := writeSolidPNG(t, dir, "photo.png", 8, 8, color.White)
	mask := writeSolidPNG(t, dir, "mask.png", 2, 2, color.RGBA{B: 255, A: 255})

	out, _, err := runCLI(t, []string{"generate-image", "-i", base, "--mask", mask, "--image-size", "4k", "--json", "make it blue"}, env.configPath, "")
	if err != nil {
		t.Fatalf("generate-image: %v", err)
	}
	up := ib.last(t)
	if up.path != "/api/v1/images/edits" {
		t.Fatalf("path = %s, want edits", up.path)
	}
	if up.fields["image_size"] != "4K" {
		t.Fatalf("image_size = %q, want 4K", up.fields["image_size"])
	}
	if len(up.files) != 1 || up.files[0] != "photo.png" {
		t.Fatalf("files = %v, want [photo.png]", up.files)
	}
	img, err := png.Decode(bytes.NewReader(up.first))
	if err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if _, _, b, _ := img.At(4, 4).RGBA(); b>>8 != 255 {
		t.Fatalf("upload was not masked: %v", img.At(4, 4))
	}
	if r, _, _, _ := img.At(4, 4).RGBA(); r>>8 != 0 {
		t.Fatalf("upload was not masked: %v", img.At(4, 4))
	}
	requireContains(t, out, `"id": "img-7"`)
	requireContains(t, out, `"urls"`)
}

func TestGenerateImage_MaskNeedsImage(t *testing.T) {
	env := setupCLITestEnv(t)
	ib, srv := newImageBackend(t)
	env.writeConfig(t, sessionConfig(srv.URL))
	mask := writeSolidPNG(t, t.TempDir(), "mask.png", 2, 2, color.Black)

	_, _, err := runCLI(t, []string{"generate-image", "--mask", mask, "a cat"}, env.configPath, "")
	if !errors.Is(err, imagegen.ErrMaskWithoutSource) {
		t.Fatalf("err = %v, want ErrMaskWithoutSource", err)
	}
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if len(ib.uploads) != 0 {
		t.Fatalf("uploads = %d, want 0", len(ib.uploads))
	}
}

func TestGenerateImage_ExpiredSession(t *testing.T) {
	env := setupCLITestEnv(t)
	_, srv := newImageBackend(t)
	env.writeConfig(t, "backend_url = \""+srv.URL+"\"\nsession_cookie = \"stale\"\n")

	_, stderr, err := runCLI(t, []string{"generate-image", "a cat"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected an error for an expired session")
	}
	requireContains(t, err.Error(), "mediadeck login")
	requireContains(t, err.Error(), srv.URL+"/login")
	if stderr != "" {
		t.Fatalf("stderr = %q, want no duplicate warning", stderr)
	}
}
