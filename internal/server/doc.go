// Package server implements the HTTP API: the streaming transcription upload endpoint
// that reports progress as server-sent events, single-shot chat and speech endpoints,
// and the health, configuration, statistics and metrics endpoints used for monitoring.
package server
