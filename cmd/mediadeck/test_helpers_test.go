package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	homeDir    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("MEDIADECK_API_KEY", "")
	t.Setenv("MEDIADECK_BASE_URL", "")
	t.Setenv(envPassword, "")

	return &cliTestEnv{
		homeDir:    homeDir,
		configPath: filepath.Join(homeDir, ".config", "mediadeck", "config.toml"),
	}
}

func (e *cliTestEnv) writeConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(e.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(e.configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) readConfig(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(e.configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	return string(data)
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	return runCLIWithClient(t, nil, args, configPath, stdin)
}

// runCLIWithClient runs the CLI with hc carrying provider and backend
// requests, so TLS test servers are trusted.
func runCLIWithClient(t *testing.T, hc *http.Client, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := buildRootCommand(hc)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
