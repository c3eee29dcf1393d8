// Package config loads and saves mediadeck settings.
//
// # Overview
//
// Settings live in a single TOML file, by default
// ~/.config/mediadeck/config.toml. It holds the provider API key and base
// URL, the compose defaults (model, aspect ratio, duration, batch count),
// the backend location and session cookie, queue tuning and log settings.
//
// # Resolution
//
// Load follows this order:
//
//  1. Start from Default()
//  2. Overlay the TOML file when it exists
//  3. Overlay MEDIADECK_API_KEY and MEDIADECK_BASE_URL from the environment
//  4. Normalize: unknown choices and non-positive tuning values fall back to
//     defaults, and an invalid base URL is replaced by DefaultBaseURL
//
// A missing file is not an error.
//
// # Base URL rules
//
// NormalizeBaseURL rejects empty values, unparsable URLs, non-HTTPS schemes
// and URLs without a host. Valid URLs are reduced to their origin; the
// second return value reports whether a path, query or fragment was dropped
// so callers can warn about it.
//
// # Saving
//
// Save and Update serialize writes through a sibling ".lock" file so a CLI
// "config set" and a running TUI cannot interleave writes. Update edits the
// file as stored, leaving environment overrides out of it.
package config
