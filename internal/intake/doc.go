// Package intake manages the reference images attached to a generation
// request. Local files become base64 data URIs, downsampled to JPEG first
// when they exceed the configured size threshold.
package intake
