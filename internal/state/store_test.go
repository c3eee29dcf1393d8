package state

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/five82/mediadeck/internal/backend"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	me := &backend.User{ID: "u1", Username: "ada", IsAdmin: true}
	videos := &backend.Page[backend.Video]{Items: []backend.Video{{ID: "v1"}, {ID: "v2"}}, Total: 2, Page: 1, Pages: 1}

	before := time.Now()
	s.Update(Refresh{Me: me, Videos: videos}, nil)

	snap := s.Snapshot()
	if !snap.HasMe || snap.Me.Username != "ada" || !snap.IsAdmin() {
		t.Fatalf("snapshot user = %#v, want ada (admin)", snap.Me)
	}
	if len(snap.Videos.Items) != 2 || snap.Videos.Items[0].ID != "v1" {
		t.Fatalf("snapshot videos = %#v, want 2 items", snap.Videos.Items)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Videos.Items[0].ID = "changed"
	videos.Items[1].ID = "changed"
	snap2 := s.Snapshot()
	if snap2.Videos.Items[0].ID != "v1" || snap2.Videos.Items[1].ID != "v2" {
		t.Fatalf("Snapshot should clone videos; got %#v", snap2.Videos.Items)
	}
}

func TestStore_PartialRefreshKeepsOtherData(t *testing.T) {
	var s Store

	s.Update(Refresh{
		Usage: &backend.StorageUsage{QuotaBytes: 100, UsedBytes: 40},
		Users: []backend.UserSummary{{ID: "u1"}},
	}, nil)
	s.Update(Refresh{Stats: &backend.SystemStats{TotalUserCount: 3}}, nil)

	snap := s.Snapshot()
	if !snap.HasUsage || snap.Usage.UsedBytes != 40 {
		t.Fatalf("usage = %#v, want kept", snap.Usage)
	}
	if len(snap.Users) != 1 || !snap.HasStats || snap.Stats.TotalUserCount != 3 {
		t.Fatalf("snapshot = %#v", snap)
	}

	s.Reset()
	if snap := s.Snapshot(); snap.HasUsage || snap.HasStats || len(snap.Users) != 0 {
		t.Fatalf("Reset left data behind: %#v", snap)
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update(Refresh{Videos: &backend.Page[backend.Video]{Items: []backend.Video{{ID: "v1"}}, Total: 1}}, nil)

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(Refresh{}, origErr)

	snap := s.Snapshot()
	if len(snap.Videos.Items) != 1 || snap.Videos.Items[0].ID != "v1" {
		t.Fatalf("videos changed on error: got %#v", snap.Videos.Items)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	if snap := s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("fresh store = %#v, want online with 0 failures", snap)
	}

	tests := []struct {
		failures int
		offline  bool
	}{
		{1, false},
		{2, true},
		{3, true},
	}
	for _, tt := range tests {
		s.Update(Refresh{}, fmt.Errorf("fail %d", tt.failures))
		snap := s.Snapshot()
		if snap.ConsecutiveFailures != tt.failures {
			t.Fatalf("ConsecutiveFailures = %d, want %d", snap.ConsecutiveFailures, tt.failures)
		}
		if snap.IsOffline() != tt.offline {
			t.Fatalf("IsOffline() = %v, want %v with %d failures", snap.IsOffline(), tt.offline, tt.failures)
		}
	}

	s.Update(Refresh{}, nil)
	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("after success = %#v, want reset", snap)
	}
}

func TestStore_UnauthorizedIsNotOffline(t *testing.T) {
	var s Store

	err := fmt.Errorf("list videos: %w", backend.ErrUnauthorized)
	s.Update(Refresh{}, err)
	s.Update(Refresh{}, err)

	snap := s.Snapshot()
	if !snap.Unauthorized {
		t.Fatal("Unauthorized = false, want true")
	}
	if snap.IsOffline() {
		t.Fatal("IsOffline() = true, want false while signed out")
	}

	s.Update(Refresh{}, nil)
	if s.Snapshot().Unauthorized {
		t.Fatal("Unauthorized should clear after a successful refresh")
	}
}
