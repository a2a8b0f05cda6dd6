package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/suyip01/audio-ai/internal/metrics"
)

// ErrEmptyInput is returned when there is no text to synthesize
var ErrEmptyInput = errors.New("speech input is empty")

// Config contains text-to-speech client configuration
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Voice          string
	ResponseFormat string
	HTTPClient     *http.Client
}

// Options override the configured voice and format for one request
type Options struct {
	Voice          string
	ResponseFormat string
}

// Result describes one finished synthesis
type Result struct {
	Bytes       int64
	ContentType string
	Elapsed     time.Duration
}

// Client wraps an OpenAI-compatible speech endpoint
type Client struct {
	config  Config
	api     *openai.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a speech client. m may be nil.
func NewClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	if cfg.Model == "" {
		return nil, errors.New("missing model")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else {
		config.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &Client{
		config:  cfg,
		api:     openai.NewClientWithConfig(config),
		logger:  logger,
		metrics: m,
	}, nil
}

// Synthesize requests speech for text and copies the audio body into w as it arrives
func (c *Client) Synthesize(ctx context.Context, text string, opts Options, w io.Writer) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	voice := opts.Voice
	if voice == "" {
		voice = c.config.Voice
	}
	format := opts.ResponseFormat
	if format == "" {
		format = c.config.ResponseFormat
	}

	startTime := time.Now()
	c.logger.Debug("Requesting speech",
		slog.String("model", c.config.Model),
		slog.String("voice", voice),
		slog.String("format", format),
		slog.Int("characters", len([]rune(text))),
	)

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormat(format),
	})
	if err != nil {
		c.record("failed", 0)
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	n, err := io.Copy(w, resp)
	if err != nil {
		c.record("failed", n)
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	c.record("succeeded", n)

	result := &Result{
		Bytes:       n,
		ContentType: resp.Header().Get("Content-Type"),
		Elapsed:     time.Since(startTime),
	}

	c.logger.Info("Speech synthesized",
		slog.String("model", c.config.Model),
		slog.Int64("bytes", result.Bytes),
		slog.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

// SynthesizeToFile writes the synthesized audio to path. A failed request leaves no file behind.
func (c *Client) SynthesizeToFile(ctx context.Context, text string, opts Options, path string) (*Result, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	result, err := c.Synthesize(ctx, text, opts, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return result, nil
}

func (c *Client) record(outcome string, bytes int64) {
	if c.metrics != nil {
		c.metrics.RecordSpeech(outcome, bytes)
	}
}
