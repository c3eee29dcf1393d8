// Package backend is the HTTP client for the media library service.
//
// Authentication uses the backend's cookie session: an access_token cookie
// plus a csrf_token cookie whose value is echoed in the X-CSRF-Token header
// on every mutating request. Sessions come from Login or from cookies saved
// in the config file (WithSession).
//
// Status codes that callers act on map to sentinel errors: ErrUnauthorized
// (401), ErrForbidden (403) and ErrQuotaExceeded (413). The first 401 seen
// by a Client invokes the handler registered with WithUnauthorizedHandler
// with a login URL; later 401s only return the error. Any other failure is
// an *APIError carrying the server's detail text.
package backend
