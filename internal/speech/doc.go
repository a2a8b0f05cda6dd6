// Package speech synthesizes text to audio through an OpenAI-compatible
// /audio/speech endpoint.
package speech
