package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigSetAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "set", "model", "veo"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config set model: %v", err)
	}
	requireContains(t, out, "model = veo")

	if _, _, err := runCLI(t, []string{"config", "set", "api_key", "Bearer sk-abcdef123456"}, env.configPath, ""); err != nil {
		t.Fatalf("config set api_key: %v", err)
	}
	requireContains(t, env.readConfig(t), "sk-abcdef123456")

	out, _, err = runCLI(t, []string{"config", "show", "--json"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(out), &values); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, out)
	}
	if values["model"] != "veo" {
		t.Fatalf("model = %q, want veo", values["model"])
	}
	if values["api_key"] != "sk-****3456" {
		t.Fatalf("api_key = %q, want masked value", values["api_key"])
	}
	if strings.Contains(out, "abcdef") {
		t.Fatalf("show output leaks the api key: %s", out)
	}
}

func TestConfigSetRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown key", args: []string{"nope", "1"}, want: "unknown config key"},
		{name: "bad model", args: []string{"model", "gpt"}, want: "must be one of"},
		{name: "bad duration", args: []string{"duration", "12"}, want: "duration must be one of"},
		{name: "batch too large", args: []string{"batch_count", "21"}, want: "out of range"},
		{name: "plain http base url", args: []string{"base_url", "http://api.example.com"}, want: "must use https"},
		{name: "session managed by login", args: []string{"session_cookie", "x"}, want: "mediadeck login"},
		{name: "bad bool", args: []string{"hd", "maybe"}, want: "invalid boolean"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupCLITestEnv(t)
			_, _, err := runCLI(t, append([]string{"config", "set"}, tc.args...), env.configPath, "")
			if err == nil {
				t.Fatalf("expected error")
			}
			requireContains(t, err.Error(), tc.want)
		})
	}
}

func TestConfigSetBaseURLKeepsOrigin(t *testing.T) {
	env := setupCLITestEnv(t)

	out, stderr, err := runCLI(t, []string{"config", "set", "base_url", "https://API.example.com/v1/chat?x=1"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config set base_url: %v", err)
	}
	requireContains(t, out, "base_url = https://api.example.com")
	requireContains(t, stderr, "only the origin")
}

func TestConfigSetDoesNotPersistEnvironmentKey(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("MEDIADECK_API_KEY", "sk-env-only")

	if _, _, err := runCLI(t, []string{"config", "set", "batch_count", "3"}, env.configPath, ""); err != nil {
		t.Fatalf("config set batch_count: %v", err)
	}
	content := env.readConfig(t)
	if strings.Contains(content, "sk-env-only") {
		t.Fatalf("config file contains environment key:\n%s", content)
	}
	requireContains(t, content, "batch_count = 3")
}

func TestConfigPath(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "path"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != env.configPath {
		t.Fatalf("config path = %q, want %q", strings.TrimSpace(out), env.configPath)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"short":           "****",
		"sk-0123456789ab": "sk-****89ab",
	}
	for in, want := range tests {
		if got := maskSecret(in); got != want {
			t.Fatalf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
