// Package apierr extracts human readable error text from HTTP error bodies.
package apierr

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Error is a non-2xx response from a remote API.
type Error struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api %s returned status %d", e.Path, e.StatusCode)
}

// New builds an Error for status, extracting the message from body.
func New(status int, path string, body []byte) *Error {
	return &Error{
		StatusCode: status,
		Path:       path,
		Message:    Message(body, fmt.Sprintf("HTTP %d", status)),
	}
}

// Message returns the most useful error text in body. JSON bodies are
// searched for detail, error and message (in that order); FastAPI validation
// lists are flattened to "loc: msg; ...". Non-JSON bodies are returned as
// trimmed text. fallback is used when nothing useful is present.
func Message(body []byte, fallback string) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	if !gjson.Valid(text) {
		return text
	}

	root := gjson.Parse(text)
	if root.Type == gjson.String {
		return root.String()
	}
	if !root.IsObject() {
		return text
	}

	var detail gjson.Result
	for _, key := range []string{"detail", "error", "message"} {
		if v := root.Get(key); v.Exists() && v.Type != gjson.Null {
			detail = v
			break
		}
	}
	if !detail.Exists() {
		return fallback
	}

	switch {
	case detail.Type == gjson.String:
		return detail.String()
	case detail.IsArray():
		var parts []string
		detail.ForEach(func(_, item gjson.Result) bool {
			parts = append(parts, validationItem(item))
			return true
		})
		return strings.Join(parts, "; ")
	default:
		return detail.Raw
	}
}

func validationItem(item gjson.Result) string {
	if !item.IsObject() {
		return item.String()
	}
	msg := item.Get("msg")
	if !msg.Exists() {
		return item.Raw
	}
	loc := item.Get("loc")
	if !loc.IsArray() {
		return msg.String()
	}
	var segments []string
	loc.ForEach(func(_, seg gjson.Result) bool {
		segments = append(segments, seg.String())
		return true
	})
	if len(segments) == 0 {
		return msg.String()
	}
	return strings.Join(segments, ".") + ": " + msg.String()
}
