// Package pipeline runs a whole audio file through load, split, encode and
// streaming transcription, one segment at a time, and aggregates the
// per-segment results into a single transcript.
package pipeline
