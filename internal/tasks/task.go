package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/five82/mediadeck/internal/provider"
)

// Status is the local task lifecycle state.
type Status = provider.Status

const (
	StatusQueued     = provider.StatusQueued
	StatusPending    = provider.StatusPending
	StatusProcessing = provider.StatusProcessing
	StatusCompleted  = provider.StatusCompleted
	StatusFailed     = provider.StatusFailed
	StatusCancelled  = provider.StatusCancelled
)

// SaveStatus tracks the library save of a completed task.
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveFailed SaveStatus = "failed"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingAPIKey     = errors.New("api key is required")
	ErrEmptyPrompt       = errors.New("prompt is required")
	ErrNotCompleted      = errors.New("only completed tasks can be saved")
	ErrNoLibrary         = errors.New("library backend is not configured")
	ErrClosed            = errors.New("task manager is closed")
)

// Request describes what to generate. It is kept on the task so a retry can
// resubmit it unchanged.
type Request struct {
	Name    string
	Model   string
	Prompt  string
	Options provider.Options
}

func (r Request) clone() Request {
	out := r
	if r.Options.Images != nil {
		out.Options.Images = append([]string(nil), r.Options.Images...)
	}
	return out
}

// ProviderModel is the model name sent to the provider.
func (r Request) ProviderModel() string {
	if r.Model == "sora2" && strings.TrimSpace(r.Options.Variant) != "" {
		return r.Options.Variant
	}
	return r.Model
}

// LogLevel classifies task log lines and notifications.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// LogEntry is one line of a task's activity log.
type LogEntry struct {
	At      time.Time
	Level   LogLevel
	Message string
}

// RepoSave is the library save state of a task.
type RepoSave struct {
	Status  SaveStatus
	Error   string
	SavedID string
}

// Task is a snapshot of one generation job.
type Task struct {
	LocalID        string
	Name           string
	Request        Request
	Meta           string
	ProviderTaskID string
	Status         Status
	RawStatus      string
	Progress       int
	Platform       string
	Action         string
	FailReason     string
	VideoURL       string
	Cost           *float64
	SubmitTime     time.Time
	StartTime      time.Time
	FinishTime     time.Time
	Save           RepoSave
	Logs           []LogEntry
	PollErrors     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t Task) clone() Task {
	out := t
	out.Request = t.Request.clone()
	out.Logs = append([]LogEntry(nil), t.Logs...)
	if t.Cost != nil {
		c := *t.Cost
		out.Cost = &c
	}
	return out
}

// Terminal reports whether the task has finished.
func (t Task) Terminal() bool { return t.Status.Terminal() }

// Elapsed returns the run time: provider start (or local creation) until
// finish, or until now while running.
func (t Task) Elapsed(now time.Time) time.Duration {
	start := t.StartTime
	if start.IsZero() {
		start = t.SubmitTime
	}
	if start.IsZero() {
		start = t.CreatedAt
	}
	end := now
	if !t.FinishTime.IsZero() {
		end = t.FinishTime
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

var transitions = map[Status][]Status{
	StatusQueued:     {StatusPending, StatusFailed, StatusCancelled},
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusPending, StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a task may move from one status to another.
// Terminal states are final.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
