package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Image generation limits enforced by the backend.
const (
	MaxImageCount      = 10
	MaxImagePromptRune = 1000
	imageTimeout       = 5 * time.Minute
)

// ImageSizes lists the size values accepted by the generations endpoint.
var ImageSizes = []string{"1K", "2K", "4K", "256x256", "512x512", "1024x1024"}

var (
	// ErrInvalidImageRequest wraps every client-side validation failure.
	ErrInvalidImageRequest = errors.New("invalid image request")
	// ErrNoSourceImages is returned by EditImage without any source image.
	ErrNoSourceImages = errors.New("at least one source image is required")
)

// ImageFile is one uploaded source image.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageRequest describes a generation or edit. The backend calls the
// provider with APIKey and BaseURL and stores the result in the library.
type ImageRequest struct {
	Model          string
	Prompt         string
	N              int
	Size           string // generations only
	ImageSize      string // edits only: 1K, 2K or 4K
	AspectRatio    string
	ResponseFormat string
	Title          string
	Images         []ImageFile

	APIKey  string
	BaseURL string
}

// ImageDetail is a stored image with the request sent upstream and the
// provider's raw response.
type ImageDetail struct {
	Image
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// URLs returns every generated image in response order. Inline results are
// returned as data URIs.
func (d ImageDetail) URLs() []string {
	var out []string
	resp := gjson.ParseBytes(d.Response)
	resp.Get("data").ForEach(func(_, item gjson.Result) bool {
		if u := firstString(item, "url", "image_url", "imageUrl"); u != "" {
			out = append(out, u)
		} else if b64 := item.Get("b64_json").String(); b64 != "" {
			out = append(out, "data:image/png;base64,"+b64)
		}
		return true
	})
	if len(out) == 0 {
		if u := firstString(resp, "url", "image_url", "imageUrl"); u != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 && d.ImageURL != "" {
		out = append(out, d.ImageURL)
	}
	return out
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Get(k).String()); v != "" {
			return v
		}
	}
	return ""
}

// GenerateImage runs a text-to-image generation through the backend.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (ImageDetail, error) {
	if err := req.validate(); err != nil {
		return ImageDetail{}, err
	}
	if req.Size != "" && !containsString(ImageSizes, req.Size) {
		return ImageDetail{}, fmt.Errorf("%w: size must be one of %s", ErrInvalidImageRequest, strings.Join(ImageSizes, ", "))
	}
	fields := req.commonFields()
	fields = appendField(fields, "size", req.Size)
	return c.postImageForm(ctx, "/api/v1/images/generations", req, fields, nil)
}

// EditImage generates images from req.Images through the backend.
func (c *Client) EditImage(ctx context.Context, req ImageRequest) (ImageDetail, error) {
	if err := req.validate(); err != nil {
		return ImageDetail{}, err
	}
	if len(req.Images) == 0 {
		return ImageDetail{}, ErrNoSourceImages
	}
	fields := req.commonFields()
	fields = appendField(fields, "image_size", strings.ToUpper(req.ImageSize))
	return c.postImageForm(ctx, "/api/v1/images/edits", req, fields, req.Images)
}

func (r *ImageRequest) validate() error {
	r.Model = strings.TrimSpace(r.Model)
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidImageRequest)
	}
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidImageRequest)
	}
	if len([]rune(r.Prompt)) > MaxImagePromptRune {
		return fmt.Errorf("%w: prompt must not exceed %d characters", ErrInvalidImageRequest, MaxImagePromptRune)
	}
	r.N = min(max(r.N, 1), MaxImageCount)
	if r.ResponseFormat == "" {
		r.ResponseFormat = "url"
	}
	return nil
}

type formField struct{ name, value string }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (r ImageRequest) commonFields() []formField {
	fields := []formField{
		{"model", r.Model},
		{"prompt", r.Prompt},
		{"n", strconv.Itoa(r.N)},
	}
	fields = appendField(fields, "response_format", r.ResponseFormat)
	fields = appendField(fields, "aspect_ratio", r.AspectRatio)
	fields = appendField(fields, "title", strings.TrimSpace(r.Title))
	return fields
}

func appendField(fields []formField, name, value string) []formField {
	if value == "" {
		return fields
	}
	return append(fields, formField{name, value})
}

func (c *Client) postImageForm(ctx context.Context, path string, req ImageRequest, fields []formField, files []ImageFile) (ImageDetail, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return ImageDetail{}, fmt.Errorf("encode form: %w", err)
		}
	}
	for i, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			name = fmt.Sprintf("image-%d.png", i+1)
		}
		contentType := file.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(file.Data)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(name)))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return ImageDetail{}, fmt.Errorf("encode form: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return ImageDetail{}, fmt.Errorf("encode form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return ImageDetail{}, fmt.Errorf("encode form: %w", err)
	}

	header := http.Header{}
	if key := strings.TrimSpace(req.APIKey); key != "" {
		header.Set("X-API-Key", key)
	}
	if base := strings.TrimSpace(req.BaseURL); base != "" {
		header.Set("X-Base-Url", base)
	}
	body := &rawBody{
		contentType: mw.FormDataContentType(),
		data:        buf.Bytes(),
		header:      header,
		timeout:     imageTimeout,
	}
	var detail ImageDetail
	if err := c.do(ctx, http.MethodPost, path, nil, body, &detail); err != nil {
		return ImageDetail{}, err
	}
	return detail, nil
}

// rawBody is a pre-encoded request body. A non-zero timeout replaces the
// client timeout for that request.
type rawBody struct {
	contentType string
	data        []byte
	header      http.Header
	timeout     time.Duration
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
