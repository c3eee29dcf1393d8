package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	ForceQuit  key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	ShiftTab   key.Binding
	Escape     key.Binding

	// View switching
	ViewTasks   key.Binding
	ViewCompose key.Binding
	ViewLibrary key.Binding
	ViewAdmin   key.Binding
	ViewLogs    key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Task actions
	CancelTask     key.Binding
	RetryTask      key.Binding
	SaveTask       key.Binding
	RemoveTask     key.Binding
	ClearCompleted key.Binding
	TaskLogs       key.Binding

	// Compose
	Submit      key.Binding
	NextField   key.Binding
	PrevField   key.Binding
	ClearImages key.Binding

	// Library and admin
	ToggleTab    key.Binding
	NextPage     key.Binding
	PrevPage     key.Binding
	Search       key.Binding
	Delete       key.Binding
	Rename       key.Binding
	Refresh      key.Binding
	ToggleActive key.Binding
	ToggleAdmin  key.Binding
	ToggleStats  key.Binding

	// Logs
	ToggleFollow key.Binding

	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "Quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Cycle views"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "Cycle views (reverse)"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Return to tasks"),
		),

		ViewTasks: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "Tasks"),
		),
		ViewCompose: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "New task"),
		),
		ViewLibrary: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "Library"),
		),
		ViewAdmin: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Admin"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logs"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		CancelTask: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Cancel task"),
		),
		RetryTask: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Retry task"),
		),
		SaveTask: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Save to library"),
		),
		RemoveTask: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Remove task"),
		),
		ClearCompleted: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "Clear finished"),
		),
		TaskLogs: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "Task logs"),
		),

		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "Submit"),
		),
		NextField: key.NewBinding(
			key.WithKeys("down", "ctrl+n"),
			key.WithHelp("down", "Next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("up", "Previous field"),
		),
		ClearImages: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "Clear images"),
		),

		ToggleTab: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "Videos/images"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("]", "pgdown"),
			key.WithHelp("]", "Next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("[", "pgup"),
			key.WithHelp("[", "Previous page"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Delete"),
		),
		Rename: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Rename"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh"),
		),
		ToggleActive: key.NewBinding(
			key.WithKeys("A"),
			key.WithHelp("A", "Toggle active"),
		),
		ToggleAdmin: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "Toggle admin"),
		),
		ToggleStats: key.NewBinding(
			key.WithKeys("z"),
			key.WithHelp("z", "Show/hide stats"),
		),

		ToggleFollow: key.NewBinding(
			key.WithKeys(" ", "f"),
			key.WithHelp("space", "Toggle follow"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewTasks, k.ViewCompose, k.ViewLibrary, k.ViewAdmin, k.ViewLogs},
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.CancelTask, k.RetryTask, k.SaveTask, k.RemoveTask, k.ClearCompleted, k.TaskLogs},
		{k.Submit, k.NextField, k.PrevField, k.ClearImages},
		{k.ToggleTab, k.NextPage, k.PrevPage, k.Search, k.Delete, k.Rename, k.Refresh},
		{k.ToggleActive, k.ToggleAdmin, k.ToggleStats, k.ToggleFollow},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
