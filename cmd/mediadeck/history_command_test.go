package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/five82/mediadeck/internal/history"
)

func seedHistory(t *testing.T, env *cliTestEnv, entries ...history.Entry) {
	t.Helper()
	store, err := history.Open(filepath.Join(env.homeDir, ".local", "share", "mediadeck", "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()
	for _, e := range entries {
		if err := store.Record(context.Background(), e); err != nil {
			t.Fatalf("record %s: %v", e.LocalID, err)
		}
	}
}

func historyEntries() []history.Entry {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []history.Entry{
		{LocalID: "a", Name: "Older clip", Model: "sora2", Prompt: "p", Status: "completed", VideoURL: "https://cdn/a.mp4", SavedID: "vid-1", CreatedAt: base, FinishedAt: base.Add(time.Minute)},
		{LocalID: "b", Name: "Newer clip", Model: "veo", Prompt: "p", Status: "failed", FailReason: "content policy", CreatedAt: base, FinishedAt: base.Add(time.Hour)},
	}
}

func TestHistory_List(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env, historyEntries()...)

	out, _, err := runCLI(t, []string{"history"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "content policy")
	requireContains(t, out, "vid-1")
	if strings.Index(out, "Newer clip") > strings.Index(out, "Older clip") {
		t.Fatalf("expected most recent first:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"history", "-n", "1"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history -n 1: %v", err)
	}
	if strings.Contains(out, "Older clip") {
		t.Fatalf("limit ignored:\n%s", out)
	}
}

func TestHistory_JSON(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env, historyEntries()...)

	out, _, err := runCLI(t, []string{"history", "--json", "--limit", "0"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["local_id"] != "b" || entries[0]["fail_reason"] != "content policy" {
		t.Fatalf("entries[0] = %v", entries[0])
	}
	if _, ok := entries[0]["saved_id"]; ok {
		t.Fatalf("empty saved_id should be omitted: %v", entries[0])
	}
}

func TestHistory_ClearAndEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env, historyEntries()...)

	out, _, err := runCLI(t, []string{"history", "--clear"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history --clear: %v", err)
	}
	requireContains(t, out, "Removed 2 entries")

	out, _, err = runCLI(t, []string{"history"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No finished tasks recorded")
}
