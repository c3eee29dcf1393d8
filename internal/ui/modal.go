package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type modalKind int

const (
	modalConfirm modalKind = iota
	modalPrompt
)

// modalAction runs when the user accepts a modal. value is the prompt
// input, empty for confirmations.
type modalAction func(m Model, value string) (Model, tea.Cmd)

// modal is a blocking dialog drawn over the current view.
type modal struct {
	kind      modalKind
	title     string
	body      string
	input     textinput.Model
	onConfirm modalAction
}

func newConfirmModal(title, body string, fn modalAction) *modal {
	return &modal{kind: modalConfirm, title: title, body: body, onConfirm: fn}
}

func newPromptModal(title, body, initial string, fn modalAction) *modal {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200
	ti.SetValue(initial)
	ti.CursorEnd()
	ti.Focus()
	return &modal{kind: modalPrompt, title: title, body: body, input: ti, onConfirm: fn}
}

func (m Model) handleModalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	md := m.modal
	accept := func(value string) (tea.Model, tea.Cmd) {
		m.modal = nil
		if md.onConfirm == nil {
			return m, nil
		}
		return md.onConfirm(m, value)
	}

	switch {
	case key.Matches(msg, m.keys.Escape):
		m.modal = nil
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		return accept(strings.TrimSpace(md.input.Value()))
	}

	if md.kind == modalConfirm {
		switch msg.String() {
		case "y", "Y":
			return accept("")
		case "n", "N":
			m.modal = nil
		}
		return m, nil
	}

	next := *md
	var cmd tea.Cmd
	next.input, cmd = next.input.Update(msg)
	m.modal = &next
	return m, cmd
}

func (m Model) renderModal() string {
	styles := m.theme.Styles()
	md := m.modal
	width := min(max(m.width*2/3, 30), 80)

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render(md.title))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(width - 4).Render(md.body))
	b.WriteString("\n\n")
	if md.kind == modalPrompt {
		in := md.input
		in.Width = width - 8
		b.WriteString(in.View())
		b.WriteString("\n\n")
		b.WriteString(styles.MutedText.Render("enter: OK  esc: Cancel"))
	} else {
		b.WriteString(styles.MutedText.Render("y/enter: Yes  n/esc: No"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Padding(1, 2).
		Width(width).
		Render(b.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceBackground(lipgloss.Color(m.theme.Background)))
}
