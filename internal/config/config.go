package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Transcription TranscriptionConfig `yaml:"transcription"`
	Chat          ChatConfig          `yaml:"chat"`
	Speech        SpeechConfig        `yaml:"speech"`
	Server        ServerConfig        `yaml:"server"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// TranscriptionConfig contains the audio-to-text endpoint and generation parameters
type TranscriptionConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Prompt        string  `yaml:"prompt"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	Timeout       int     `yaml:"timeout"` // seconds, 0 disables
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"` // concurrent upstream streams across runs
}

// ChatConfig contains the chat-completion endpoint configuration
type ChatConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	TopP         float64 `yaml:"top_p"`
	MaxTokens    int     `yaml:"max_tokens"` // 0 leaves it to the server
}

// SpeechConfig contains the text-to-speech endpoint configuration
type SpeechConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Voice          string `yaml:"voice"`
	ResponseFormat string `yaml:"response_format"`
	OutputPath     string `yaml:"output_path"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	RateLimit      int    `yaml:"rate_limit"` // transcription requests per minute per client, 0 disables
}

// MetricsConfig controls where CLI runs dump their metrics
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

const (
	DefaultTranscriptionPrompt = "请记录下你所听到的语音内容并加上断句，输出格式：仅纯文本，无引号，无额外说明。"
	DefaultChatSystemPrompt    = "使用100字进行总结回复"
	DefaultSpeechInput         = "To enhance speech clarity in highly emotional expressions, we incorporate GPT latent representations and design a novel three-stage training paradigm to improve the stability of the generated speech."
)

// Default returns a configuration populated with the stock model and generation settings
func Default() *Config {
	return &Config{
		Transcription: TranscriptionConfig{
			BaseURL:       "http://localhost:8000/v1",
			Model:         "Qwen2-Audio-7B-Instruct",
			Prompt:        DefaultTranscriptionPrompt,
			ChunkDuration: 30,
			MaxTokens:     1000,
			Temperature:   0.1,
			MaxConcurrent: 4,
		},
		Chat: ChatConfig{
			BaseURL:      "https://api.modelverse.cn/v1",
			Model:        "deepseek-ai/DeepSeek-V3-0324",
			SystemPrompt: DefaultChatSystemPrompt,
			Temperature:  0.1,
			TopP:         0.95,
		},
		Speech: SpeechConfig{
			BaseURL:        "https://api.modelverse.cn/v1",
			Model:          "IndexTeam/IndexTTS-2",
			Voice:          "novel",
			ResponseFormat: "wav",
			OutputPath:     "generated-speech.wav",
		},
		Server: ServerConfig{
			Address:        "0.0.0.0",
			Port:           3001,
			MaxUploadBytes: 10 << 20,
			RateLimit:      30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file (if any), applies environment overrides and validates the result.
// An empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	config.applyFallbacks()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadEnvFiles loads every existing dotenv file into the process environment.
// Variables that are already set are not overwritten.
func LoadEnvFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat env file %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("failed to load env file %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// ApplyEnv overrides configuration values from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ASR_BASE_URL":       &c.Transcription.BaseURL,
		"ASR_API_KEY":        &c.Transcription.APIKey,
		"ASR_MODEL":          &c.Transcription.Model,
		"ASR_PROMPT":         &c.Transcription.Prompt,
		"LLM_BASE_URL":       &c.Chat.BaseURL,
		"LLM_API_KEY":        &c.Chat.APIKey,
		"LLM_MODEL":          &c.Chat.Model,
		"TTS_BASE_URL":       &c.Speech.BaseURL,
		"TTS_API_KEY":        &c.Speech.APIKey,
		"TTS_MODEL":          &c.Speech.Model,
		"TTS_DEFAULT_VOICE":  &c.Speech.Voice,
		"TTS_DEFAULT_FORMAT": &c.Speech.ResponseFormat,
		"LOG_LEVEL":          &c.Logging.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("AUDIO_CHUNK_DURATION"); ok && v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AUDIO_CHUNK_DURATION: %w", err)
		}
		c.Transcription.ChunkDuration = d
	}

	if v, ok := lookup("MAX_AUDIO_SIZE"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_AUDIO_SIZE: %w", err)
		}
		c.Server.MaxUploadBytes = n
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = n
	}

	return nil
}

// applyFallbacks lets the chat and speech endpoints reuse the transcription credentials
func (c *Config) applyFallbacks() {
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = c.Transcription.APIKey
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = c.Transcription.BaseURL
	}
	if c.Speech.APIKey == "" {
		c.Speech.APIKey = c.Chat.APIKey
	}
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = c.Chat.BaseURL
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", t.ChunkDuration)
	}

	if t.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", t.MaxTokens)
	}

	if t.Temperature < 0 || t.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", t.Temperature)
	}

	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates chat configuration
func (c *ChatConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if c.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", c.Temperature)
	}

	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1], got %f", c.TopP)
	}

	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", c.MaxTokens)
	}

	return nil
}

// Validate validates speech configuration
func (s *SpeechConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}

	validFormats := map[string]bool{"wav": true, "mp3": true, "opus": true, "aac": true, "flac": true, "pcm": true}
	if !validFormats[s.ResponseFormat] {
		return fmt.Errorf("response_format must be one of [wav, mp3, opus, aac, flac, pcm], got '%s'", s.ResponseFormat)
	}

	return nil
}

// Validate validates HTTP server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024 bytes, got %d", s.MaxUploadBytes)
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %d", s.RateLimit)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the segment length as a time.Duration
func (t *TranscriptionConfig) GetChunkDuration() time.Duration {
	return time.Duration(t.ChunkDuration * float64(time.Second))
}

// GetTimeoutDuration returns the per-request timeout as a time.Duration (0 means none)
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
