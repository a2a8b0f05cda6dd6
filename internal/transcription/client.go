package transcription

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/suyip01/audio-ai/internal/audio"
	"github.com/suyip01/audio-ai/internal/metrics"
)

// ErrStreamConsumed is yielded when a delta sequence is ranged over a second time
var ErrStreamConsumed = errors.New("delta stream already consumed")

// Client streams audio segments to an audio-capable chat completion model
type Client struct {
	config    Config
	api       openai.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	semaphore chan struct{} // Limits concurrent upstream streams

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	totalDeltas     uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Prompt        string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration // per segment, 0 disables
	MaxRetries    int
	MaxConcurrent int
	HTTPClient    *http.Client
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	TotalDeltas     uint64        `json:"total_deltas"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new streaming transcription client. m may be nil.
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	if config.MaxTokens <= 0 {
		config.MaxTokens = 1000
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	baseURL := config.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0), // retries are handled per segment below
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	return &Client{
		config:    config,
		api:       openai.NewClient(opts...),
		logger:    logger,
		metrics:   m,
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Model returns the model identifier sent with every request
func (c *Client) Model() string {
	return c.config.Model
}

// params builds the streaming request for one segment: the prompt as text plus the segment as input audio
func (c *Client) params(payload *audio.Payload) openai.ChatCompletionNewParams {
	format := payload.Format
	if format == "" {
		format = audio.PayloadFormat
	}

	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(c.config.Prompt),
				openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
					Data:   payload.Data,
					Format: format,
				}),
			}),
		},
		MaxTokens:   openai.Int(int64(c.config.MaxTokens)),
		Temperature: openai.Float(c.config.Temperature),
	}
}

// Deltas opens a streaming request for payload and yields every non-empty raw text delta in arrival order.
// The request is sent when iteration starts. The sequence can be ranged over once; a stream error is
// yielded as the final element.
func (c *Client) Deltas(ctx context.Context, payload *audio.Payload) iter.Seq2[string, error] {
	var used atomic.Bool

	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}

		stream := c.api.Chat.Completions.NewStreaming(ctx, c.params(payload))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			if !yield(content, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", err)
		}
	}
}

// Transcribe streams one segment and returns the concatenation of its cleaned deltas.
// Each cleaned delta is also passed to onDelta as it arrives; onDelta may be nil.
// A failed attempt is retried only while no delta has been delivered.
func (c *Client) Transcribe(ctx context.Context, payload *audio.Payload, onDelta func(string)) (string, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()
	if c.metrics != nil {
		c.metrics.RecordTranscriptionRequest()
	}

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			if c.metrics != nil {
				c.metrics.RecordTranscriptionRetry()
			}

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			c.logger.Warn("Retrying transcription request",
				slog.Int("segment", payload.Index),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoffTime),
				slog.String("error", lastErr.Error()),
			)

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.recordFailure(startTime)
				return "", ctx.Err()
			}
		}

		text, delivered, err := c.attempt(ctx, payload, onDelta)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			if c.metrics != nil {
				c.metrics.RecordTranscriptionSuccess(time.Since(startTime).Seconds())
			}
			return text, nil
		}

		lastErr = err

		// Text already shown on the live channel cannot be taken back
		if delivered > 0 || ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.recordFailure(startTime)
	return "", fmt.Errorf("transcription of segment %d failed: %w", payload.Index, lastErr)
}

// attempt runs a single streaming request and folds its deltas
func (c *Client) attempt(ctx context.Context, payload *audio.Payload, onDelta func(string)) (string, int, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var sb strings.Builder
	delivered := 0

	for delta, err := range c.Deltas(ctx, payload) {
		if err != nil {
			return "", delivered, err
		}

		cleaned := ExtractContent(delta)
		sb.WriteString(cleaned)
		delivered++
		c.incrementTotalDeltas()
		if c.metrics != nil {
			c.metrics.RecordDelta()
		}
		if onDelta != nil {
			onDelta(cleaned)
		}
	}

	return sb.String(), delivered, nil
}

func (c *Client) recordFailure(startTime time.Time) {
	c.incrementFailedRequests()
	if c.metrics != nil {
		c.metrics.RecordTranscriptionFailure(time.Since(startTime).Seconds())
	}
}

// isRetryableError reports whether a failed stream is worth sending again
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Rate limiting and 5xx server errors are retryable
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	// Network/connection errors are typically retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused")
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) incrementTotalDeltas() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDeltas++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		TotalDeltas:     c.totalDeltas,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
