// Package main hosts the mediadeck CLI entrypoint and command graph.
//
// Run without arguments in a terminal, mediadeck opens the TUI. The Cobra
// subcommands cover the same ground non-interactively: submitting tasks,
// generating images into the library, signing in, browsing and editing the
// library, and the admin user tools. Config resolution and logging setup
// live in commandContext so individual commands stay small.
package main
