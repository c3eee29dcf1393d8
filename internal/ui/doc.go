// Package ui implements the mediadeck terminal interface with Bubble Tea.
//
// The root Model owns five views: Tasks, Compose, Library, Admin and Logs.
// Task data is read from the task manager on every tick and whenever a
// notification arrives; library, usage and admin data come from the
// state.Store that the background poller fills. The UI never blocks on the
// network: library and admin mutations, batch submission and file reads
// run as tea.Cmds and report back as messages.
//
// Compose owns the keyboard while it is active so prompts can contain any
// character. Everywhere else single-letter keys switch views and act on the
// selected row; see keys.go for the full map.
package ui
