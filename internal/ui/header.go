package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/tasks"
)

// renderHeader renders the status bar: logo, view tabs, task counts and
// backend health.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth

	parts := []string{bg.Render("mediadeck", styles.Logo)}

	var tabs []string
	for _, v := range viewOrder {
		if v == m.currentView {
			tabs = append(tabs, bg.Render("["+v.String()+"]", styles.AccentText.Bold(true)))
			continue
		}
		if !compact {
			tabs = append(tabs, bg.Render(v.String(), styles.MutedText))
		}
	}
	parts = append(parts, strings.Join(tabs, bg.Space()))

	s := m.summary
	running := styles.MutedText
	if s.Running > 0 {
		running = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.StatusColor("processing")))
	}
	failed := styles.MutedText
	if s.Failed > 0 {
		failed = styles.DangerText
	}
	parts = append(parts,
		bg.Render("Running:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", s.Running), running),
		bg.Render("Done:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", s.Completed), styles.Text),
		bg.Render("Failed:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", s.Failed), failed),
	)

	if strings.TrimSpace(m.cfg.APIKey) == "" {
		parts = append(parts, bg.Render("NO API KEY", styles.WarningText.Bold(true)))
	}

	parts = append(parts, m.backendStatus(styles, bg, compact))

	if m.errorMsg != "" {
		parts = append(parts,
			bg.Render("!", styles.WarningText.Bold(true))+bg.Space()+
				bg.Render(truncate(m.errorMsg, 40), styles.WarningText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// backendStatus summarizes the library backend connection.
func (m Model) backendStatus(styles Styles, bg BgStyle, compact bool) string {
	snap := m.snapshot
	switch {
	case snap.Unauthorized:
		return bg.Render("Signed out", styles.WarningText.Bold(true)) + bg.Space() +
			bg.Render("(mediadeck login)", styles.MutedText)
	case snap.IsOffline():
		return bg.Render("Backend "+classifyConnectionError(snap.LastError), styles.DangerText) + bg.Space() +
			bg.Render("retrying...", styles.WarningText)
	case snap.HasMe:
		user := bg.Render("● "+snap.Me.Username, styles.SuccessText)
		if snap.Me.IsAdmin {
			user += bg.Space() + bg.Render("(admin)", styles.MutedText)
		}
		if snap.HasUsage && !compact {
			user += bg.Space() + bg.Render(formatQuota(snap.Usage.UsedBytes, snap.Usage.QuotaBytes), styles.MutedText)
		}
		return user
	case snap.LastError != nil:
		return bg.Render("Backend: "+truncate(snap.LastError.Error(), 40), styles.WarningText)
	default:
		return bg.Render("Connecting to library...", styles.MutedText)
	}
}

// classifyConnectionError turns a refresh error into a short label.
func classifyConnectionError(err error) string {
	if err == nil {
		return "offline"
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("error %d", apiErr.StatusCode)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "unreachable"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "timed out"
	case strings.Contains(msg, "no such host"):
		return "host not found"
	default:
		return "offline"
	}
}

// renderCommandBar lists the keys that matter in the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewCompose:
		commands = []cmd{
			{"up/down", "Field"},
			{"left/right", "Choose"},
			{"space", "Toggle"},
			{"enter", "Add image"},
			{"ctrl+x", "Clear images"},
			{"ctrl+s", "Submit"},
			{"esc", "Back"},
		}
	case ViewLibrary:
		commands = []cmd{
			{"v", ternary(m.lib.tab == tabVideos, "Images", "Videos")},
			{"[/]", "Page"},
			{"/", "Search"},
			{"R", "Rename"},
			{"x", "Delete"},
			{"r", "Refresh"},
			{"?", "More"},
		}
	case ViewAdmin:
		commands = []cmd{
			{"j/k", "Navigate"},
			{"/", "Search"},
			{"A", "Active"},
			{"M", "Admin"},
			{"x", "Delete"},
			{"r", "Refresh"},
			{"?", "More"},
		}
	case ViewLogs:
		commands = []cmd{
			{"space", ternary(m.logs.follow, "Pause", "Follow")},
			{"j/k", "Scroll"},
			{"g/G", "Top/Bottom"},
			{"l", "All logs"},
			{"t", "Tasks"},
			{"?", "More"},
		}
	default:
		commands = []cmd{
			{"n", "New"},
			{"c", "Cancel"},
			{"r", "Retry"},
			{"s", "Save"},
			{"d", "Remove"},
			{"C", "Clear"},
			{"i", "Logs"},
			{"?", "More"},
		}
	}

	colon := bg.Render(":", styles.FaintText)
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments, bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	if m.currentView == ViewLogs && m.logs.taskID != "" {
		segments = append(segments, bg.Render("task "+truncate(m.logs.taskID, 8), styles.AccentText))
	}
	return styles.Footer.Width(m.width).Render(bg.Join(segments, "  "))
}

// toast is a transient notification shown on the bottom line.
type toast struct {
	event tasks.Event
}

const maxToasts = 5

func (m *Model) pushToast(ev tasks.Event) {
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	m.toasts = append(m.toasts, toast{event: ev})
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
}

func (m *Model) expireToasts() {
	now := m.now()
	var kept []toast
	for _, t := range m.toasts {
		if now.Sub(t.event.At) < ToastTTL {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// renderToastLine shows the newest notification, if any.
func (m Model) renderToastLine() string {
	styles := m.theme.Styles()
	if len(m.toasts) == 0 {
		return styles.FaintText.Width(m.width).Render("")
	}
	ev := m.toasts[len(m.toasts)-1].event
	style := styles.InfoText
	switch ev.Level {
	case tasks.LevelSuccess:
		style = styles.SuccessText
	case tasks.LevelWarning:
		style = styles.WarningText
	case tasks.LevelError:
		style = styles.DangerText
	}
	text := ev.Message
	if n := len(m.toasts); n > 1 {
		text = fmt.Sprintf("%s  (+%d)", text, n-1)
	}
	return style.Width(m.width).MaxWidth(m.width).Render(" " + truncate(text, max(m.width-2, 1)))
}
