package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/mediadeck/internal/logging"
	"github.com/five82/mediadeck/internal/logtail"
)

// logState holds the Logs view state.
type logState struct {
	follow      bool
	taskID      string
	lines       []string
	err         error
	lastRefresh time.Time
	loading     bool
}

// logLinesMsg delivers a fresh read of the log file.
type logLinesMsg struct {
	taskID string
	lines  []string
	err    error
}

// refreshLogs reads the log file in the background, debounced by
// LogRefreshDebounce.
func (m *Model) refreshLogs() tea.Cmd {
	if m.logPath == "" || m.logs.loading {
		return nil
	}
	now := m.now()
	if now.Sub(m.logs.lastRefresh) < LogRefreshDebounce {
		return nil
	}
	m.logs.lastRefresh = now
	m.logs.loading = true

	path, taskID := m.logPath, m.logs.taskID
	return func() tea.Msg {
		var terms []string
		if taskID != "" {
			terms = append(terms, logging.FieldTaskID+"="+taskID)
		}
		lines, err := logtail.ReadMatching(path, LogTailLines, terms...)
		return logLinesMsg{taskID: taskID, lines: lines, err: err}
	}
}

func (m *Model) handleLogLines(msg logLinesMsg) {
	m.logs.loading = false
	if msg.taskID != m.logs.taskID {
		return
	}
	m.logs.lines = msg.lines
	m.logs.err = msg.err
	m.updateLogViewport()
}

// updateLogViewport renders the buffered lines into the viewport.
func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	m.logsPane.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.logsPane.SetContent(m.renderLogContent())
	if m.logs.follow {
		m.logsPane.GotoBottom()
	}
}

func (m Model) renderLogContent() string {
	styles := m.theme.Styles()
	if m.logs.err != nil {
		return styles.DangerText.Render("Read log: " + m.logs.err.Error())
	}
	if len(m.logs.lines) == 0 {
		return styles.MutedText.Render("No log lines yet.")
	}

	width := max(m.logsPane.Width, 20)
	out := make([]string, 0, len(m.logs.lines))
	for _, raw := range m.logs.lines {
		out = append(out, m.formatLogLine(logtail.Parse(raw), width))
	}
	return strings.Join(out, "\n")
}

func (m Model) formatLogLine(line logtail.Line, width int) string {
	styles := m.theme.Styles()
	if line.Time.IsZero() {
		return truncate(line.Raw, width)
	}
	levelStyle := styles.MutedText
	switch line.Level {
	case "WARN":
		levelStyle = styles.WarningText
	case "ERROR":
		levelStyle = styles.DangerText
	case "INFO":
		levelStyle = styles.InfoText
	}

	stamp := line.Time.Local().Format("15:04:05")
	level := padRight(line.Level, 5)
	used := len(stamp) + len(level) + 2
	out := styles.FaintText.Render(stamp) + " " + levelStyle.Render(level) + " "
	if line.Component != "" {
		out += styles.AccentText.Render(line.Component) + " "
		used += lipgloss.Width(line.Component) + 1
	}

	rest := max(width-used, 8)
	msg := truncate(line.Message, rest)
	out += msg
	if remaining := rest - lipgloss.Width(msg) - 1; line.Fields != "" && remaining > 3 {
		out += " " + styles.FaintText.Render(truncate(line.Fields, remaining))
	}
	return out
}

// handleLogsKey processes keyboard input for the logs view.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logs.follow = !m.logs.follow
		if m.logs.follow {
			m.logsPane.GotoBottom()
			return m, m.refreshLogs()
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logs.follow = false
		m.logsPane.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logsPane.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.logs.follow = false
		m.logsPane.ScrollUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.logsPane.ScrollDown(1)
		return m, nil
	case key.Matches(msg, m.keys.NextPage):
		m.logsPane.PageDown()
		return m, nil
	case key.Matches(msg, m.keys.PrevPage):
		m.logs.follow = false
		m.logsPane.PageUp()
		return m, nil
	}
	return m, nil
}

// renderLogs renders the log view.
func (m Model) renderLogs() string {
	title := "Application log"
	if m.logs.taskID != "" {
		title = "Task log"
		for _, t := range m.taskList {
			if t.LocalID == m.logs.taskID {
				title = "Task log: " + t.Name
				break
			}
		}
	}
	title += fmt.Sprintf("  %d lines  follow %s", len(m.logs.lines), ternary(m.logs.follow, "on", "off"))
	return m.renderTitledBox(title, m.logsPane.View(), m.width, m.contentHeight(), true)
}
