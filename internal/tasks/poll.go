package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/five82/mediadeck/internal/dispatch"
	"github.com/five82/mediadeck/internal/logging"
	"github.com/five82/mediadeck/internal/provider"
)

// pollLoop polls one task until it finishes, is cancelled, or exhausts its
// error budget. The first poll waits FirstPollDelay; later ones wait the
// poll interval plus jitter.
func (m *Manager) pollLoop(ctx context.Context, id string, spec provider.Spec) {
	defer m.wg.Done()

	timer := time.NewTimer(m.opts.FirstPollDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !m.pollOnce(ctx, id, spec) {
			return
		}
		timer.Reset(m.opts.PollInterval + m.jitter())
	}
}

func (m *Manager) pollOnce(ctx context.Context, id string, spec provider.Spec) bool {
	providerID, ok := m.pollTarget(id)
	if !ok {
		return false
	}

	info, err := dispatch.Run(ctx, m.pollQ, func(ctx context.Context) (provider.TaskInfo, error) {
		return m.provider.Status(ctx, spec, providerID)
	})
	if ctx.Err() != nil {
		return false
	}

	cont := true
	if err != nil {
		found := m.mutate(id, func(e *entry, fx *effects) {
			if e.task.Terminal() {
				cont = false
				return
			}
			e.task.PollErrors++
			m.appendLog(e, LevelWarning, fmt.Sprintf("poll error (%d/%d): %v", e.task.PollErrors, m.opts.MaxPollErrors, err))
			if e.task.PollErrors < m.opts.MaxPollErrors {
				return
			}
			if e.task.FailReason == "" {
				e.task.FailReason = err.Error()
			}
			m.setStatusLocked(e, StatusFailed, fx)
			fx.note(LevelError, "Polling failed: "+e.task.Name)
			cont = false
		})
		return found && cont
	}

	found := m.mutate(id, func(e *entry, fx *effects) {
		if e.task.Terminal() {
			cont = false
			return
		}
		e.task.PollErrors = 0
		m.mergeInfoLocked(e, info, false)
		if !m.setStatusLocked(e, info.Status, fx) || !e.task.Terminal() {
			return
		}
		cont = false
		switch e.task.Status {
		case StatusCompleted:
			m.appendLog(e, LevelSuccess, "task succeeded")
			if e.task.VideoURL != "" {
				fx.note(LevelSuccess, "Completed: "+e.task.Name)
				m.beginSaveLocked(e, false, fx)
			}
		case StatusFailed:
			m.appendLog(e, LevelError, "task failed")
			fx.note(LevelError, "Failed: "+e.task.Name)
		case StatusCancelled:
			m.appendLog(e, LevelWarning, "task cancelled by provider")
			fx.note(LevelWarning, "Cancelled: "+e.task.Name)
		}
	})
	return found && cont
}

// pollTarget returns the provider id to poll, or false when polling should
// stop.
func (m *Manager) pollTarget(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok || e.task.Terminal() || e.task.ProviderTaskID == "" {
		return "", false
	}
	m.logger.Debug("polling task",
		slog.String(logging.FieldTaskID, id),
		slog.String(logging.FieldProvider, e.task.ProviderTaskID),
	)
	return e.task.ProviderTaskID, true
}
