package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordListClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cost := 0.5

	entries := []Entry{
		{LocalID: "a", Name: "first", Model: "sora2", Prompt: "p1", Status: "failed", FailReason: "boom", FinishedAt: base},
		{LocalID: "b", Name: "second", Model: "veo", Prompt: "p2", Status: "completed", VideoURL: "https://cdn/v.mp4", Cost: &cost, FinishedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s) returned error: %v", e.LocalID, err)
		}
	}

	got, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 2 || got[0].LocalID != "b" || got[1].LocalID != "a" {
		t.Fatalf("List order = %+v", got)
	}
	if got[0].Cost == nil || *got[0].Cost != 0.5 || got[0].VideoURL != "https://cdn/v.mp4" {
		t.Fatalf("entry b = %+v", got[0])
	}
	if got[1].Cost != nil || got[1].FailReason != "boom" || got[1].ProviderTaskID != "" {
		t.Fatalf("entry a = %+v", got[1])
	}
	if !got[1].CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want defaulted to finish time %v", got[1].CreatedAt, base)
	}

	limited, err := store.List(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("List(1) = %d entries, err %v", len(limited), err)
	}

	n, err := store.Clear(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v; want 2", n, err)
	}
	if remaining, _ := store.List(ctx, 0); len(remaining) != 0 {
		t.Fatalf("remaining = %d, want 0", len(remaining))
	}
}

func TestStore_RecordUpsertsByLocalID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, Entry{LocalID: "x", Name: "n", Model: "sora2", Prompt: "p", Status: "completed"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := store.Record(ctx, Entry{LocalID: "x", Name: "n", Model: "sora2", Prompt: "p", Status: "completed", SavedID: "vid-1"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	got, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 || got[0].SavedID != "vid-1" {
		t.Fatalf("entries = %+v, want one updated entry", got)
	}

	if err := store.Record(ctx, Entry{}); err == nil {
		t.Fatal("expected error for missing local id")
	}
}

func TestOpen_ReappliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := first.Record(context.Background(), Entry{LocalID: "keep", Name: "n", Model: "m", Prompt: "p", Status: "failed"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer second.Close()
	got, _ := second.List(context.Background(), 0)
	if len(got) != 1 {
		t.Fatalf("entries after reopen = %d, want 1", len(got))
	}
}
