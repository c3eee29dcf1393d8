package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/five82/mediadeck/internal/backend"
)

// Refresh is one poll's worth of backend data. Nil fields were not fetched
// and leave the stored value untouched.
type Refresh struct {
	Me     *backend.User
	Videos *backend.Page[backend.Video]
	Images *backend.Page[backend.Image]
	Usage  *backend.StorageUsage
	Stats  *backend.SystemStats
	Users  []backend.UserSummary
}

// Snapshot represents the latest backend data available to the UI.
type Snapshot struct {
	Me       backend.User
	HasMe    bool
	Videos   backend.Page[backend.Video]
	Images   backend.Page[backend.Image]
	Usage    backend.StorageUsage
	HasUsage bool
	Stats    backend.SystemStats
	HasStats bool
	Users    []backend.UserSummary

	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int
	Unauthorized        bool
}

// IsOffline returns true when the backend has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2 && !s.Unauthorized
}

// IsAdmin reports whether the signed-in user may use the admin view.
func (s Snapshot) IsAdmin() bool {
	return s.HasMe && s.Me.IsAdmin
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update merges r into the stored snapshot. When err is non-nil the previous
// data is kept but the error is recorded for visibility.
func (s *Store) Update(r Refresh, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		s.snapshot.Unauthorized = errors.Is(err, backend.ErrUnauthorized)
		return
	}

	if r.Me != nil {
		s.snapshot.Me = *r.Me
		s.snapshot.HasMe = true
	}
	if r.Videos != nil {
		s.snapshot.Videos = clonePage(*r.Videos)
	}
	if r.Images != nil {
		s.snapshot.Images = clonePage(*r.Images)
	}
	if r.Usage != nil {
		s.snapshot.Usage = *r.Usage
		s.snapshot.HasUsage = true
	}
	if r.Stats != nil {
		s.snapshot.Stats = *r.Stats
		s.snapshot.HasStats = true
	}
	if r.Users != nil {
		s.snapshot.Users = cloneSlice(r.Users)
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
	s.snapshot.Unauthorized = false
}

// Reset forgets everything, e.g. after signing in as someone else.
func (s *Store) Reset() {
	s.mu.Lock()
	s.snapshot = Snapshot{}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Videos = clonePage(s.snapshot.Videos)
	snap.Images = clonePage(s.snapshot.Images)
	snap.Users = cloneSlice(s.snapshot.Users)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func clonePage[T any](p backend.Page[T]) backend.Page[T] {
	p.Items = cloneSlice(p.Items)
	return p
}

func cloneSlice[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	dup := make([]T, len(items))
	copy(dup, items)
	return dup
}
