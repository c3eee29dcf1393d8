// Package logtail reads the tail of the mediadeck log file for the Logs view.
//
// Read keeps a ring buffer of the last N lines so large files are scanned in
// one pass with bounded memory. ReadMatching applies substring filters
// before buffering, which is how the UI narrows the log to one task
// (task_id=<id>). Parse splits the console handler's output into time,
// level, component, message and trailing key=value fields for colouring.
package logtail
