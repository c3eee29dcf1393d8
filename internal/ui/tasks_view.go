package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/mediadeck/internal/tasks"
)

// refreshTasks pulls the latest task list, keeping the selection on the
// same task when it still exists.
func (m *Model) refreshTasks() {
	if m.tasks == nil {
		return
	}
	var selectedID string
	if t, ok := m.selectedTask(); ok {
		selectedID = t.LocalID
	}
	m.taskList = m.tasks.Snapshot()
	m.summary = m.tasks.Summary()

	m.taskRow = clampRow(m.taskRow, len(m.taskList))
	if selectedID != "" {
		for i, t := range m.taskList {
			if t.LocalID == selectedID {
				m.taskRow = i
				break
			}
		}
	}
	m.updateTaskDetail()
}

func (m Model) selectedTask() (tasks.Task, bool) {
	if m.taskRow < 0 || m.taskRow >= len(m.taskList) {
		return tasks.Task{}, false
	}
	return m.taskList[m.taskRow], true
}

func clampRow(row, count int) int {
	if count == 0 || row < 0 {
		return 0
	}
	if row >= count {
		return count - 1
	}
	return row
}

// handleTasksKey processes keyboard input for the tasks view.
func (m Model) handleTasksKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if moved, ok := moveRow(m.keys, msg, m.taskRow, len(m.taskList)); ok {
		m.taskRow = moved
		m.updateTaskDetail()
		return m, nil
	}

	if key.Matches(msg, m.keys.ClearCompleted) {
		n := m.tasks.ClearCompleted()
		m.pushToast(tasks.Event{Level: tasks.LevelInfo, Message: fmt.Sprintf("Cleared %d finished task(s)", n)})
		m.refreshTasks()
		return m, nil
	}

	t, ok := m.selectedTask()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.CancelTask):
		if !m.tasks.Cancel(t.LocalID) {
			m.pushToast(tasks.Event{Level: tasks.LevelWarning, Message: "Task already finished"})
		}
	case key.Matches(msg, m.keys.RetryTask):
		if !t.Terminal() {
			m.pushToast(tasks.Event{Level: tasks.LevelWarning, Message: "Task is still running"})
			break
		}
		if _, err := m.tasks.Retry(t.LocalID); err != nil {
			m.pushToast(tasks.Event{Level: tasks.LevelError, Message: "Retry failed: " + err.Error()})
		}
	case key.Matches(msg, m.keys.SaveTask):
		if err := m.tasks.Save(t.LocalID); err != nil && !errors.Is(err, tasks.ErrNotCompleted) {
			m.pushToast(tasks.Event{Level: tasks.LevelError, Message: "Save failed: " + err.Error()})
		}
	case key.Matches(msg, m.keys.RemoveTask):
		m.tasks.Remove(t.LocalID)
	case key.Matches(msg, m.keys.TaskLogs):
		m.logs.taskID = t.LocalID
		m.refreshTasks()
		return m.switchView(ViewLogs)
	default:
		return m, nil
	}
	m.refreshTasks()
	return m, nil
}

// moveRow applies list navigation keys. ok is false for other keys.
func moveRow(keys keyMap, msg tea.KeyMsg, row, count int) (int, bool) {
	switch {
	case key.Matches(msg, keys.Down):
		if row < count-1 {
			row++
		}
	case key.Matches(msg, keys.Up):
		if row > 0 {
			row--
		}
	case key.Matches(msg, keys.Top):
		row = 0
	case key.Matches(msg, keys.Bottom):
		row = max(count-1, 0)
	default:
		return row, false
	}
	return row, true
}

func (m Model) tableWidth() int {
	if m.width >= LayoutExtraWideWidth {
		return m.width * 45 / 100
	}
	return m.width * 55 / 100
}

// renderTasks renders the task table and the selected task's details.
func (m Model) renderTasks() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	if len(m.taskList) == 0 {
		msg := styles.MutedText.Render("No tasks yet. Press n to compose one.")
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	tableWidth := m.tableWidth()
	detailWidth := m.width - tableWidth
	title := fmt.Sprintf("Tasks (%d)", len(m.taskList))
	table := m.renderTitledBox(title, m.renderTaskTable(tableWidth-2, height-2), tableWidth, height, true)

	detailTitle := "Details"
	if t, ok := m.selectedTask(); ok {
		detailTitle = t.Name
	}
	detail := m.renderTitledBox(detailTitle, m.taskPane.View(), detailWidth, height, false)
	return lipgloss.JoinHorizontal(lipgloss.Top, table, detail)
}

func (m Model) renderTaskTable(width, height int) string {
	styles := m.theme.Styles()
	now := m.now()

	const statusW, progressW, elapsedW, saveW = 12, 15, 8, 7
	nameW := max(width-statusW-progressW-elapsedW-saveW-5, 8)

	header := styles.FaintText.Render(
		padRight("NAME", nameW) + " " + padRight("STATUS", statusW) + " " +
			padRight("PROGRESS", progressW) + " " + padRight("TIME", elapsedW) + " " + "SAVE")
	lines := []string{header}

	start := 0
	if visible := height - 1; visible > 0 && m.taskRow >= visible {
		start = m.taskRow - visible + 1
	}
	for i := start; i < len(m.taskList) && len(lines) < height; i++ {
		t := m.taskList[i]
		status := string(t.Status)
		badge := lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.StatusColor(status))).
			Render(padRight(t.Status.Label(), statusW))
		progress := fmt.Sprintf("%s %3d%%", progressBar(t.Progress, progressW-5), t.Progress)
		row := padRight(truncate(t.Name, nameW), nameW) + " " + badge + " " +
			padRight(progress, progressW) + " " +
			padRight(formatElapsed(t.Elapsed(now)), elapsedW) + " " + saveLabel(t.Save.Status)
		if i == m.taskRow {
			row = styles.Selected.Width(width).Render(row)
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}

func saveLabel(s tasks.SaveStatus) string {
	switch s {
	case tasks.SaveSaving:
		return "saving"
	case tasks.SaveSaved:
		return "saved"
	case tasks.SaveFailed:
		return "failed"
	default:
		return "-"
	}
}

// updateTaskDetail renders the selected task into the detail viewport.
func (m *Model) updateTaskDetail() {
	if !m.ready {
		return
	}
	t, ok := m.selectedTask()
	if !ok {
		m.taskPane.SetContent("")
		return
	}
	m.taskPane.SetContent(m.taskDetail(t))
	m.taskPane.GotoBottom()
}

func (m Model) taskDetail(t tasks.Task) string {
	styles := m.theme.Styles()
	label := func(s string) string { return styles.MutedText.Render(padRight(s, 10)) }

	var b strings.Builder
	row := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(label(name) + value + "\n")
	}
	row("Status", lipgloss.NewStyle().Foreground(lipgloss.Color(styles.StatusColor(string(t.Status)))).Render(t.Status.Label()))
	row("Model", t.Request.ProviderModel())
	row("Options", t.Meta)
	row("Provider", t.ProviderTaskID)
	row("Platform", t.Platform)
	if t.Cost != nil {
		row("Cost", fmt.Sprintf("%.4g", *t.Cost))
	}
	row("Video", t.VideoURL)
	if t.FailReason != "" {
		row("Reason", styles.DangerText.Render(t.FailReason))
	}
	switch t.Save.Status {
	case tasks.SaveSaved:
		row("Library", styles.SuccessText.Render("saved "+t.Save.SavedID))
	case tasks.SaveFailed:
		row("Library", styles.DangerText.Render(t.Save.Error))
	case tasks.SaveSaving:
		row("Library", "saving...")
	}
	row("Prompt", oneLine(t.Request.Prompt))
	b.WriteString("\n")
	for _, entry := range t.Logs {
		style := styles.Text
		switch entry.Level {
		case tasks.LevelSuccess:
			style = styles.SuccessText
		case tasks.LevelWarning:
			style = styles.WarningText
		case tasks.LevelError:
			style = styles.DangerText
		}
		b.WriteString(styles.FaintText.Render(entry.At.Format("15:04:05")) + " " + style.Render(entry.Message) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
