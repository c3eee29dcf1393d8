package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp accepts the naive and zoned ISO-8601 forms the backend emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// User is the signed-in account.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"is_active"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   Timestamp `json:"created_at"`
	LastLoginAt Timestamp `json:"last_login_at"`
}

// Video is a saved video summary.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	VideoURL  string    `json:"video_url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// VideoCreate is the body of POST /api/v1/videos.
type VideoCreate struct {
	Title    string         `json:"title,omitempty"`
	Model    string         `json:"model"`
	Prompt   string         `json:"prompt"`
	VideoURL string         `json:"video_url"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Image is a saved image summary.
type Image struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	ImageURL  string    `json:"image_url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// StorageUsage reports the caller's quota.
type StorageUsage struct {
	QuotaBytes int64 `json:"quota_bytes"`
	UsedBytes  int64 `json:"used_bytes"`
}

// SystemStats is the admin dashboard summary.
type SystemStats struct {
	TotalUserCount         int   `json:"total_user_count"`
	ActiveUserCount        int   `json:"active_user_count"`
	TotalStorageUsedBytes  int64 `json:"total_storage_used_bytes"`
	TotalStorageQuotaBytes int64 `json:"total_storage_quota_bytes"`
	TotalVideoCount        int   `json:"total_video_count"`
	TotalImageCount        int   `json:"total_image_count"`
	ActiveSessionCount     int   `json:"active_session_count"`
}

// UserSummary is one row of the admin user list.
type UserSummary struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	IsActive          bool      `json:"is_active"`
	IsAdmin           bool      `json:"is_admin"`
	StorageQuotaBytes int64     `json:"storage_quota_bytes"`
	StorageUsedBytes  int64     `json:"storage_used_bytes"`
	CreatedAt         Timestamp `json:"created_at"`
	LastLoginAt       Timestamp `json:"last_login_at"`
}

// LoginAttempt is a recorded sign-in attempt.
type LoginAttempt struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	UsernameOrEmail string    `json:"username_or_email"`
	Success         bool      `json:"success"`
	FailureReason   string    `json:"failure_reason"`
	IPAddress       string    `json:"ip_address"`
	UserAgent       string    `json:"user_agent"`
	CreatedAt       Timestamp `json:"created_at"`
}

// UserDetail extends UserSummary with activity counters.
type UserDetail struct {
	UserSummary
	TotalVideoCount     int            `json:"total_video_count"`
	TotalImageCount     int            `json:"total_image_count"`
	ActiveSessionCount  int            `json:"active_session_count"`
	RecentLoginAttempts []LoginAttempt `json:"recent_login_attempts"`
}

// UserUpdate is a partial admin update; nil fields are left unchanged.
type UserUpdate struct {
	Email             *string `json:"email,omitempty"`
	IsActive          *bool   `json:"is_active,omitempty"`
	IsAdmin           *bool   `json:"is_admin,omitempty"`
	StorageQuotaBytes *int64  `json:"storage_quota_bytes,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.IsActive == nil && u.IsAdmin == nil && u.StorageQuotaBytes == nil
}

// Session holds the cookies issued by a successful login.
type Session struct {
	AccessToken string
	CSRFToken   string
}
