// Package history keeps a local SQLite record of finished generation tasks
// so results survive restarts and the in-memory cleanup window.
package history
