package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// UserQuery filters the admin user list.
type UserQuery struct {
	Limit    int
	Offset   int
	Search   string
	IsActive *bool
	IsAdmin  *bool
}

func (q UserQuery) values() url.Values {
	v := url.Values{}
	limit := q.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	v.Set("limit", strconv.Itoa(limit))
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	if q.IsActive != nil {
		v.Set("is_active", strconv.FormatBool(*q.IsActive))
	}
	if q.IsAdmin != nil {
		v.Set("is_admin", strconv.FormatBool(*q.IsAdmin))
	}
	return v
}

// AdminStats returns system-wide counters. Requires an admin session.
func (c *Client) AdminStats(ctx context.Context) (SystemStats, error) {
	var stats SystemStats
	err := c.do(ctx, http.MethodGet, "/api/v1/admin/stats", nil, nil, &stats)
	return stats, err
}

// ListUsers returns users matching q.
func (c *Client) ListUsers(ctx context.Context, q UserQuery) ([]UserSummary, error) {
	var users []UserSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/users", q.values(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns one user with activity counters.
func (c *Client) GetUser(ctx context.Context, id string) (UserDetail, error) {
	var user UserDetail
	err := c.do(ctx, http.MethodGet, itemPath("/api/v1/admin/users", id), nil, nil, &user)
	return user, err
}

// UpdateUser applies a partial update.
func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) (UserSummary, error) {
	var user UserSummary
	err := c.do(ctx, http.MethodPatch, itemPath("/api/v1/admin/users", id), nil, update, &user)
	return user, err
}

// DeleteUser removes a user and their content.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath("/api/v1/admin/users", id), nil, nil, nil)
}
