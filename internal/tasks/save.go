package tasks

import (
	"context"
	"errors"
	"strings"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/dispatch"
)

type saveJob struct {
	id      string
	payload backend.VideoCreate
}

// Save stores a completed task's video in the library. Saving an already
// saved or saving task only produces a notice.
func (m *Manager) Save(id string) error {
	var err error
	found := m.mutate(id, func(e *entry, fx *effects) {
		err = m.beginSaveLocked(e, true, fx)
	})
	if !found {
		return ErrNotFound
	}
	return err
}

// beginSaveLocked validates the task and marks it saving. Automatic saves
// stay silent when there is nothing to do.
func (m *Manager) beginSaveLocked(e *entry, manual bool, fx *effects) error {
	if m.library == nil {
		if manual {
			return ErrNoLibrary
		}
		return nil
	}
	switch e.task.Save.Status {
	case SaveSaving:
		if manual {
			fx.note(LevelInfo, "Save in progress: "+e.task.Name)
		}
		return nil
	case SaveSaved:
		if manual {
			fx.note(LevelSuccess, "Already saved to library: "+e.task.Name)
		}
		return nil
	}
	if e.task.Status != StatusCompleted {
		if manual {
			fx.note(LevelWarning, "Only completed tasks can be saved")
			return ErrNotCompleted
		}
		return nil
	}

	payload, err := buildVideoCreate(e.task)
	if err != nil {
		e.task.Save = RepoSave{Status: SaveFailed, Error: err.Error()}
		m.appendLog(e, LevelError, "save failed: "+err.Error())
		fx.note(LevelError, "Save failed: "+err.Error())
		return err
	}
	e.task.Save = RepoSave{Status: SaveSaving, SavedID: e.task.Save.SavedID}
	m.appendLog(e, LevelInfo, "saving to library")
	fx.save = &saveJob{id: e.task.LocalID, payload: payload}
	return nil
}

func buildVideoCreate(t Task) (backend.VideoCreate, error) {
	videoURL := strings.TrimSpace(t.VideoURL)
	if videoURL == "" {
		return backend.VideoCreate{}, errors.New("missing video url")
	}
	prompt := strings.TrimSpace(t.Request.Prompt)
	if prompt == "" {
		prompt = "No prompt"
	}
	model := strings.TrimSpace(t.Request.ProviderModel())
	if model == "" {
		model = strings.TrimSpace(t.Platform)
	}
	if model == "" {
		model = "unknown"
	}
	title := strings.TrimSpace(t.Name)
	if title == "" && t.ProviderTaskID != "" {
		title = "Task " + t.ProviderTaskID
	}
	if title == "" {
		title = "Untitled task"
	}

	var cost any
	if t.Cost != nil {
		cost = *t.Cost
	}
	return backend.VideoCreate{
		Title:    title,
		Model:    model,
		Prompt:   prompt,
		VideoURL: videoURL,
		Status:   "completed",
		Metadata: map[string]any{
			"provider_task_id": nullable(t.ProviderTaskID),
			"platform":         nullable(t.Platform),
			"action":           nullable(t.Action),
			"cost":             cost,
		},
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (m *Manager) launchSave(job saveJob) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.finishSave(job.id, backend.Video{}, ErrClosed)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		video, err := dispatch.Run(m.ctx, m.saveQ, func(ctx context.Context) (backend.Video, error) {
			return m.library.CreateVideo(ctx, job.payload)
		})
		m.finishSave(job.id, video, err)
	}()
}

func (m *Manager) finishSave(id string, video backend.Video, err error) {
	m.mutate(id, func(e *entry, fx *effects) {
		if err != nil {
			msg := saveErrorMessage(err)
			e.task.Save = RepoSave{Status: SaveFailed, Error: msg}
			level := LevelError
			if errors.Is(err, backend.ErrUnauthorized) {
				level = LevelWarning
			}
			m.appendLog(e, level, "save failed: "+msg)
			fx.note(level, "Save failed: "+msg)
			return
		}
		e.task.Save = RepoSave{Status: SaveSaved, SavedID: video.ID}
		m.appendLog(e, LevelSuccess, "saved to library")
		fx.note(LevelSuccess, "Saved to library: "+e.task.Name)
		snap := e.task.clone()
		fx.record = &snap
	})
}

func saveErrorMessage(err error) string {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return "session expired, log in again before saving"
	case errors.Is(err, backend.ErrQuotaExceeded):
		return "storage quota exceeded"
	case errors.Is(err, dispatch.ErrCanceled):
		return "save cancelled"
	case errors.Is(err, ErrClosed):
		return "manager closed"
	}
	msg := err.Error()
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if errors.Is(err, backend.ErrForbidden) && strings.Contains(strings.ToLower(msg), "csrf") {
		msg += " (log in again to refresh the CSRF token)"
	}
	return msg
}
