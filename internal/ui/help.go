package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

var helpTitles = []string{"Views", "Navigation", "Tasks", "Compose", "Library", "Admin and logs", "General"}

// renderHelp renders the help overlay from the key map.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning)).Width(12)

	renderSection := func(title string, bindings []key.Binding) string {
		var b strings.Builder
		b.WriteString(styles.AccentText.Bold(true).Render(title))
		for _, binding := range bindings {
			if !binding.Enabled() {
				continue
			}
			h := binding.Help()
			b.WriteString("\n")
			b.WriteString(keyStyle.Render(h.Key))
			b.WriteString(styles.Text.Render(h.Desc))
		}
		return b.String()
	}

	groups := m.keys.FullHelp()
	var left, right []string
	for i, bindings := range groups {
		title := "Keys"
		if i < len(helpTitles) {
			title = helpTitles[i]
		}
		section := renderSection(title, bindings)
		if i <= len(groups)/2 {
			left = append(left, section)
		} else {
			right = append(right, section)
		}
	}

	columns := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(34).Render(strings.Join(left, "\n\n")),
		lipgloss.NewStyle().Width(34).Render(strings.Join(right, "\n\n")),
	)

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(columns)
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("Compose captures typing: use ctrl+s to submit and esc to leave."))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Render(b.String())

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		box,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}
