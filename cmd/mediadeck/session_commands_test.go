package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newLibraryServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/login" {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"password":"hunter2"`) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "tok", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: "csrf", Path: "/"})
			_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"bearer"}`)
			return
		}

		ck, err := r.Cookie("access_token")
		if err != nil || ck.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/auth/me":
			_, _ = io.WriteString(w, `{"id":"u1","username":"ann","is_admin":false}`)
		case "/api/v1/videos":
			if r.URL.Query().Get("page") != "2" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"items":[{"id":"v1","title":"Sunset over water","model":"sora2","status":"completed","size_bytes":2097152,"created_at":"2026-01-02T03:04:05"}],"total":21,"page":2,"size":20,"pages":2}`)
		case "/api/v1/admin/stats":
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"detail":"admin only"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginSavesSessionAndLibraryUsesIt(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newLibraryServer(t)
	env.writeConfig(t, fmt.Sprintf("backend_url = %q\n", srv.URL))

	out, _, err := runCLI(t, []string{"login", "--user", "ann", "--password-stdin"}, env.configPath, "hunter2\n")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	requireContains(t, out, "Signed in as ann (user)")
	content := env.readConfig(t)
	requireContains(t, content, "tok")
	requireContains(t, content, "csrf")

	out, _, err = runCLI(t, []string{"library", "list", "--page", "2"}, env.configPath, "")
	if err != nil {
		t.Fatalf("library list: %v", err)
	}
	requireContains(t, out, "Sunset over water")
	requireContains(t, out, "2.0 MiB")
	requireContains(t, out, "Page 2 of 2 (21 videos)")

	out, _, err = runCLI(t, []string{"logout"}, env.configPath, "")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	requireContains(t, out, "Signed out")

	_, _, err = runCLI(t, []string{"library", "list", "--page", "2"}, env.configPath, "")
	if err == nil {
		t.Fatalf("library list after logout succeeded")
	}
	requireContains(t, err.Error(), "mediadeck login")
	requireContains(t, err.Error(), srv.URL+"/login?next=%2Fapi%2Fv1%2Fvideos")
}

func TestLoginWrongPassword(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newLibraryServer(t)
	env.writeConfig(t, fmt.Sprintf("backend_url = %q\n", srv.URL))

	_, _, err := runCLI(t, []string{"login", "--user", "ann", "--password-stdin"}, env.configPath, "wrong\n")
	if err == nil {
		t.Fatalf("expected login error")
	}
	requireContains(t, err.Error(), "wrong username or password")
}

func TestAdminStatsForbiddenForRegularUser(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newLibraryServer(t)
	env.writeConfig(t, fmt.Sprintf("backend_url = %q\nsession_cookie = \"tok\"\n", srv.URL))

	_, _, err := runCLI(t, []string{"admin", "stats"}, env.configPath, "")
	if err == nil {
		t.Fatalf("expected forbidden error")
	}
	requireContains(t, err.Error(), "admin account")
}

func TestReadPassword(t *testing.T) {
	tests := []struct {
		name      string
		stdin     string
		fromStdin bool
		env       string
		want      string
		wantErr   bool
	}{
		{name: "stdin line", stdin: "s3cret\n", fromStdin: true, want: "s3cret"},
		{name: "stdin crlf", stdin: "s3cret\r\n", fromStdin: true, want: "s3cret"},
		{name: "stdin without newline", stdin: "s3cret", fromStdin: true, want: "s3cret"},
		{name: "stdin empty", stdin: "\n", fromStdin: true, wantErr: true},
		{name: "environment", env: "from-env", want: "from-env"},
		{name: "nothing", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(envPassword, tc.env)
			got, err := readPassword(strings.NewReader(tc.stdin), tc.fromStdin)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPassword returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("readPassword = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReadPrompt(t *testing.T) {
	if _, err := readPrompt(strings.NewReader(""), nil); err == nil {
		t.Fatalf("expected error without a prompt")
	}
	got, err := readPrompt(strings.NewReader("ignored"), []string{"a cat"})
	if err != nil || got != "a cat" {
		t.Fatalf("readPrompt(arg) = %q, %v", got, err)
	}
	got, err = readPrompt(strings.NewReader("from stdin\n"), []string{"-"})
	if err != nil || got != "from stdin\n" {
		t.Fatalf("readPrompt(-) = %q, %v", got, err)
	}
}

func TestWrapBackendErrorLeavesOtherErrors(t *testing.T) {
	base := errors.New("boom")
	if got := wrapBackendError(base, ""); got != base {
		t.Fatalf("wrapBackendError changed %v into %v", base, got)
	}
	if wrapBackendError(nil, "") != nil {
		t.Fatal("wrapBackendError(nil) != nil")
	}
}
