package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/state"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	// Verify that backoff never exceeds maxBackoff regardless of input
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 20; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

type fakeBackend struct {
	me       backend.User
	meErr    error
	listErr  error
	statsHit int
	usersHit int
	lastQ    backend.ListQuery
}

func (f *fakeBackend) Me(context.Context) (backend.User, error) { return f.me, f.meErr }

func (f *fakeBackend) ListVideos(_ context.Context, q backend.ListQuery) (backend.Page[backend.Video], error) {
	f.lastQ = q
	if f.listErr != nil {
		return backend.Page[backend.Video]{}, f.listErr
	}
	return backend.Page[backend.Video]{Items: []backend.Video{{ID: "v1"}}, Total: 1, Page: q.Page, Pages: 1}, nil
}

func (f *fakeBackend) ListImages(context.Context, backend.ListQuery) (backend.Page[backend.Image], error) {
	return backend.Page[backend.Image]{}, nil
}

func (f *fakeBackend) StorageUsage(context.Context) (backend.StorageUsage, error) {
	return backend.StorageUsage{UsedBytes: 10, QuotaBytes: 100}, nil
}

func (f *fakeBackend) AdminStats(context.Context) (backend.SystemStats, error) {
	f.statsHit++
	return backend.SystemStats{TotalUserCount: 2}, nil
}

func (f *fakeBackend) ListUsers(context.Context, backend.UserQuery) ([]backend.UserSummary, error) {
	f.usersHit++
	return []backend.UserSummary{{ID: "u1"}}, nil
}

func TestRefreshNow_RegularUser(t *testing.T) {
	store := &state.Store{}
	client := &fakeBackend{me: backend.User{ID: "u1", Username: "kim"}}
	p := NewPoller(store, client, time.Second, nil)
	p.SetVideoQuery(backend.ListQuery{Page: 3, Size: 10})

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	snap := store.Snapshot()
	if !snap.HasMe || snap.Me.Username != "kim" {
		t.Fatalf("Me = %+v, HasMe = %v", snap.Me, snap.HasMe)
	}
	if len(snap.Videos.Items) != 1 || !snap.HasUsage {
		t.Fatalf("library data missing: videos=%d hasUsage=%v", len(snap.Videos.Items), snap.HasUsage)
	}
	if client.lastQ.Page != 3 {
		t.Fatalf("video query page = %d, want 3", client.lastQ.Page)
	}
	if client.statsHit != 0 || client.usersHit != 0 || snap.HasStats {
		t.Fatalf("admin endpoints called for a regular user")
	}
}

func TestRefreshNow_AdminFetchesStatsAndUsers(t *testing.T) {
	store := &state.Store{}
	client := &fakeBackend{me: backend.User{ID: "root", IsAdmin: true}}
	p := NewPoller(store, client, time.Second, nil)

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	snap := store.Snapshot()
	if !snap.HasStats || snap.Stats.TotalUserCount != 2 {
		t.Fatalf("stats = %+v, hasStats = %v", snap.Stats, snap.HasStats)
	}
	if len(snap.Users) != 1 {
		t.Fatalf("users = %d, want 1", len(snap.Users))
	}
}

func TestRefreshNow_FailureKeepsDataAndCounts(t *testing.T) {
	store := &state.Store{}
	client := &fakeBackend{me: backend.User{ID: "u1"}}
	p := NewPoller(store, client, time.Second, nil)
	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	client.listErr = errors.New("connection refused")
	err := p.RefreshNow(context.Background())
	if err == nil || !strings.Contains(err.Error(), "list videos") {
		t.Fatalf("err = %v, want wrapped list videos error", err)
	}
	snap := store.Snapshot()
	if snap.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
	if len(snap.Videos.Items) != 1 {
		t.Fatalf("previous videos dropped on failure")
	}
}

func TestRefreshNow_Unauthorized(t *testing.T) {
	store := &state.Store{}
	client := &fakeBackend{meErr: backend.ErrUnauthorized}
	p := NewPoller(store, client, time.Second, nil)

	if err := p.RefreshNow(context.Background()); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	snap := store.Snapshot()
	if !snap.Unauthorized || snap.IsOffline() {
		t.Fatalf("Unauthorized = %v, IsOffline = %v", snap.Unauthorized, snap.IsOffline())
	}
}
