package provider

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the local lifecycle vocabulary a provider status maps onto.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

var titleCaser = cases.Title(language.Und)

// Label renders the status for display ("Processing").
func (s Status) Label() string {
	if s == "" {
		return titleCaser.String(string(StatusPending))
	}
	return titleCaser.String(string(s))
}

var statusAliases = map[string]Status{
	"success":     StatusCompleted,
	"succeeded":   StatusCompleted,
	"ok":          StatusCompleted,
	"completed":   StatusCompleted,
	"done":        StatusCompleted,
	"finished":    StatusCompleted,
	"finish":      StatusCompleted,
	"fail":        StatusFailed,
	"failed":      StatusFailed,
	"error":       StatusFailed,
	"timeout":     StatusFailed,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
	"cancel":      StatusCancelled,
	"processing":  StatusProcessing,
	"running":     StatusProcessing,
	"executing":   StatusProcessing,
	"in_progress": StatusProcessing,
	"in-progress": StatusProcessing,
	"working":     StatusProcessing,
}

// NormalizeStatus maps a provider status string onto the local vocabulary.
// Unknown and empty values are pending.
func NormalizeStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusPending
}
