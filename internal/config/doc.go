// Package config provides configuration loading and validation for audio-ai.
// It reads an optional YAML file, overlays dotenv and process environment variables,
// and validates every section before the endpoints are contacted.
package config
