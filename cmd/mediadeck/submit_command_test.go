package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeProvider answers sora2 create calls with a fixed body and records
// every payload it receives.
type fakeProvider struct {
	mu         sync.Mutex
	createCode int
	createBody string
	payloads   []map[string]any
	auth       []string
}

func newFakeProvider(t *testing.T, code int, body string) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{createCode: code, createBody: body}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/videos/generations" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		fp.mu.Lock()
		fp.payloads = append(fp.payloads, payload)
		fp.auth = append(fp.auth, r.Header.Get("Authorization"))
		fp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fp.createCode)
		_, _ = io.WriteString(w, fp.createBody)
	}))
	t.Cleanup(srv.Close)
	return fp, srv
}

func (f *fakeProvider) lastPayload(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatal("provider received no create call")
	}
	return f.payloads[len(f.payloads)-1]
}

func (f *fakeProvider) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func providerConfig(providerURL, backendURL, extra string) string {
	return fmt.Sprintf("api_key = \"sk-test\"\nbase_url = %q\nbackend_url = %q\nmodel = \"sora2\"\n%s", providerURL, backendURL, extra)
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
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

func TestSubmit_FlagsOverrideSavedDefaults(t *testing.T) {
	env := setupCLITestEnv(t)
	fp, srv := newFakeProvider(t, http.StatusOK, `{"id":"t1","status":"queued"}`)
	env.writeConfig(t, providerConfig(srv.URL, "http://127.0.0.1:1",
		"sora_variant = \"sora-2-pro\"\naspect_ratio = \"16:9\"\nduration = 15\nhd = true\nwatermark = true\n"))

	out, _, err := runCLIWithClient(t, srv.Client(),
		[]string{"submit", "--aspect", "9:16", "--hd=false", "--duration", "25", "--name", "beach", "waves at dawn"},
		env.configPath, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "beach")
	requireContains(t, out, "t1")

	got := fp.lastPayload(t)
	want := map[string]any{
		"model":        "sora-2-pro",
		"prompt":       "waves at dawn",
		"aspect_ratio": "9:16",
		"duration":     float64(25),
		"hd":           false,
		"watermark":    true,
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("payload[%s] = %v, want %v (payload %v)", key, got[key], value, got)
		}
	}
	if _, ok := got["images"]; ok {
		t.Fatalf("images should be omitted: %v", got)
	}
	if fp.auth[0] != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", fp.auth[0])
	}
}

func TestSubmit_PromptFromStdinAndBatch(t *testing.T) {
	env := setupCLITestEnv(t)
	fp, srv := newFakeProvider(t, http.StatusOK, `{"id":"t1","status":"queued"}`)
	env.writeConfig(t, providerConfig(srv.URL, "http://127.0.0.1:1", "batch_count = 3\n"))

	out, _, err := runCLIWithClient(t, srv.Client(), []string{"submit", "--batch", "2", "--json", "-"}, env.configPath, "  a fox in snow \n")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := fp.creates(); n != 2 {
		t.Fatalf("creates = %d, want 2 (flag beats saved batch_count)", n)
	}
	if got := fp.lastPayload(t)["prompt"]; got != "a fox in snow" {
		t.Fatalf("prompt = %v", got)
	}
	var results []map[string]any
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if len(results) != 2 || results[0]["provider_task_id"] != "t1" {
		t.Fatalf("results = %v", results)
	}
}

func TestSubmit_AttachesImages(t *testing.T) {
	env := setupCLITestEnv(t)
	fp, srv := newFakeProvider(t, http.StatusOK, `{"id":"t1","status":"queued"}`)
	env.writeConfig(t, providerConfig(srv.URL, "http://127.0.0.1:1", ""))
	dir := t.TempDir()
	pngPath := writePNG(t, dir, "ref.png")

	_, _, err := runCLIWithClient(t, srv.Client(),
		[]string{"submit", "-i", "https://img.example/a.png", "--image", pngPath, "a lighthouse"},
		env.configPath, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	images, _ := fp.lastPayload(t)["images"].([]any)
	if len(images) != 2 {
		t.Fatalf("images = %v, want 2", images)
	}
	if images[0] != "https://img.example/a.png" {
		t.Fatalf("images[0] = %v", images[0])
	}
	if s, _ := images[1].(string); !strings.HasPrefix(s, "data:image/png;base64,") {
		t.Fatalf("images[1] = %.40v, want a png data uri", images[1])
	}

	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("just text"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	_, _, err = runCLIWithClient(t, srv.Client(), []string{"submit", "--image", notes, "a lighthouse"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "not an image") {
		t.Fatalf("non-image error = %v", err)
	}
	_, _, err = runCLIWithClient(t, srv.Client(), []string{"submit", "--image", "data:text/plain;base64,aGk=", "x"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "invalid image source") {
		t.Fatalf("bad data uri error = %v", err)
	}
	if n := fp.creates(); n != 1 {
		t.Fatalf("creates = %d, want 1", n)
	}
}

func TestSubmit_WaitSavesAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	_, srv := newFakeProvider(t, http.StatusOK, `{"id":"t9","status":"SUCCESS","video_url":"https://cdn.example/v.mp4","cost":0.5}`)
	lib, backendSrv := newBackendRecorder(t, map[string]string{"POST /api/v1/videos": `{"id":"vid-9","title":"harbor"}`})
	env.writeConfig(t, providerConfig(srv.URL, backendSrv.URL, "session_cookie = \"tok\"\ncsrf_token = \"csrf\"\n"))

	out, _, err := runCLIWithClient(t, srv.Client(), []string{"submit", "--wait", "--json", "--name", "harbor", "boats"}, env.configPath, "")
	if err != nil {
		t.Fatalf("submit --wait: %v", err)
	}
	var results []map[string]any
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if len(results) != 1 || results[0]["status"] != "completed" || results[0]["saved_id"] != "vid-9" {
		t.Fatalf("results = %v", results)
	}
	saved := lib.last()
	if saved.method != http.MethodPost || !strings.Contains(saved.body, `"video_url":"https://cdn.example/v.mp4"`) {
		t.Fatalf("library request = %+v", saved)
	}

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0]["saved_id"] != "vid-9" || entries[0]["provider_task_id"] != "t9" {
		t.Fatalf("history = %v", entries)
	}
}

func TestSubmit_SessionExpiredWarns(t *testing.T) {
	env := setupCLITestEnv(t)
	_, srv := newFakeProvider(t, http.StatusOK, `{"id":"t9","status":"SUCCESS","video_url":"https://cdn.example/v.mp4"}`)
	_, backendSrv := newBackendRecorder(t, nil)
	env.writeConfig(t, providerConfig(srv.URL, backendSrv.URL, "session_cookie = \"stale\"\n"))

	out, stderr, err := runCLIWithClient(t, srv.Client(), []string{"submit", "--wait", "boats"}, env.configPath, "")
	if err != nil {
		t.Fatalf("submit --wait: %v", err)
	}
	requireContains(t, out, "Completed")
	want := backendSrv.URL + "/login?next=%2Fapi%2Fv1%2Fvideos"
	requireContains(t, stderr, want)
	if n := strings.Count(stderr, "library session expired"); n != 1 {
		t.Fatalf("warnings = %d, want 1\n%s", n, stderr)
	}
}

func TestSubmit_FailedTaskReturnsError(t *testing.T) {
	env := setupCLITestEnv(t)
	_, srv := newFakeProvider(t, http.StatusBadRequest, `{"error":{"message":"prompt rejected"}}`)
	env.writeConfig(t, providerConfig(srv.URL, "http://127.0.0.1:1", ""))

	out, _, err := runCLIWithClient(t, srv.Client(), []string{"submit", "nope"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected an error for a failed task")
	}
	requireContains(t, err.Error(), "1 of 1 task(s) failed")
	requireContains(t, out, "Failed")
}

func TestSubmit_RequiresPrompt(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeConfig(t, providerConfig("https://provider.example", "http://127.0.0.1:1", ""))

	_, _, err := runCLI(t, []string{"submit"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "a prompt is required") {
		t.Fatalf("error = %v", err)
	}
}
