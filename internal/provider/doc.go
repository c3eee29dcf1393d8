// Package provider wraps the third-party video generation API.
//
// Each model family has its own create and status endpoints (see SpecFor).
// Responses vary between models and releases, so ParseTask reads them with
// tolerant JSON lookups and maps the provider status onto the local
// vocabulary (queued, pending, processing, completed, failed, cancelled).
// BuildPayload applies the per-model option rules before anything is sent.
package provider
