// Package transcription streams audio segments to an OpenAI-compatible
// chat completion endpoint and folds the returned text deltas into a
// per-segment transcript.
package transcription
