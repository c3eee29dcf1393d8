package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MaxPageSize is the largest page the backend will return.
const MaxPageSize = 200

// ListQuery filters a library listing. Zero values use backend defaults.
type ListQuery struct {
	Page   int
	Size   int
	Search string
	Model  string
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = 50
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Model = strings.TrimSpace(q.Model)
	return q
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("size", strconv.Itoa(q.Size))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Model != "" {
		v.Set("model", q.Model)
	}
	return v
}

// ListVideos returns one page of saved videos.
func (c *Client) ListVideos(ctx context.Context, q ListQuery) (Page[Video], error) {
	q = q.normalized()
	var page Page[Video]
	if err := c.do(ctx, http.MethodGet, "/api/v1/videos", q.values(), nil, &page); err != nil {
		return Page[Video]{}, err
	}
	return page, nil
}

// CreateVideo saves a generated video to the library.
func (c *Client) CreateVideo(ctx context.Context, in VideoCreate) (Video, error) {
	var video Video
	err := c.do(ctx, http.MethodPost, "/api/v1/videos", nil, in, &video)
	return video, err
}

// RenameVideo updates a video title.
func (c *Client) RenameVideo(ctx context.Context, id, title string) (Video, error) {
	var video Video
	err := c.do(ctx, http.MethodPatch, itemPath("/api/v1/videos", id), nil, map[string]string{"title": title}, &video)
	return video, err
}

// DeleteVideo removes a video.
func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath("/api/v1/videos", id), nil, nil, nil)
}

// ListImages returns one page of saved images. Older backends answer with
// a bare list paged by limit/offset; both shapes are accepted.
func (c *Client) ListImages(ctx context.Context, q ListQuery) (Page[Image], error) {
	q = q.normalized()
	values := q.values()
	values.Set("limit", strconv.Itoa(q.Size))
	values.Set("offset", strconv.Itoa((q.Page-1)*q.Size))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/images", values, nil, &raw); err != nil {
		return Page[Image]{}, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Image
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page[Image]{}, fmt.Errorf("decode response: %w", err)
		}
		return listPage(items, q), nil
	}
	var page Page[Image]
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return Page[Image]{}, fmt.Errorf("decode response: %w", err)
		}
	}
	return page, nil
}

// listPage synthesizes pagination for a bare list. A full page implies at
// least one more.
func listPage[T any](items []T, q ListQuery) Page[T] {
	page := Page[T]{Items: items, Page: q.Page, Size: q.Size}
	page.Total = (q.Page-1)*q.Size + len(items)
	page.Pages = q.Page
	if len(items) == q.Size {
		page.Pages++
	}
	return page
}

// RenameImage updates an image title.
func (c *Client) RenameImage(ctx context.Context, id, title string) (Image, error) {
	var image Image
	err := c.do(ctx, http.MethodPatch, itemPath("/api/v1/images", id), nil, map[string]string{"title": title}, &image)
	return image, err
}

// DeleteImage removes an image.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath("/api/v1/images", id), nil, nil, nil)
}

func itemPath(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}
