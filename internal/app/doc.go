// Package app is the composition root for mediadeck.
//
// NewServices builds the clients and the task manager that both the TUI and
// the CLI commands use. Run adds what only the TUI needs: a log file, a
// notification channel, the state.Store and the background Poller that
// keeps it filled with account, library and admin data. The poller backs
// off exponentially (capped at 30s) while the backend is failing.
package app
