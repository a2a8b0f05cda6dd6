// Package chat sends single-shot chat completion requests with an optional
// system prompt and a bounded window of conversation history.
package chat
