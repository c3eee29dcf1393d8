// Package state shares backend data between the background poller and the UI.
//
// The poller fetches the signed-in user, the current library page, storage
// usage and, for administrators, system stats and the user list. Each fetch
// is merged into a Store with Update; the UI reads immutable copies with
// Snapshot on every redraw.
//
// A failed refresh keeps the previous data and records the error so the
// header can show a stale-data warning. Two consecutive failures mark the
// backend offline. An unauthorized error is tracked separately so the UI
// can prompt for a login instead of reporting an outage.
package state
