package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/suyip01/audio-ai/internal/metrics"
)

// HistoryLimit is the number of most recent history turns sent with a request
const HistoryLimit = 20

// Message is one conversation turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config contains chat client configuration
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float32
	TopP         float32
	MaxTokens    int // 0 leaves it to the server
	HTTPClient   *http.Client
}

// Client wraps an OpenAI-compatible chat completion endpoint
type Client struct {
	config  Config
	api     *openai.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a chat client. m may be nil.
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
		config.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}

	return &Client{
		config:  cfg,
		api:     openai.NewClientWithConfig(config),
		logger:  logger,
		metrics: m,
	}, nil
}

// BuildMessages assembles the request: the system prompt (override first, then the configured one),
// at most the last HistoryLimit history turns and the user message if it is not blank.
// History roles other than "assistant" are sent as "user"; turns without content are dropped.
func BuildMessages(systemPrompt string, history []Message, user string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	turns := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Content != "" {
			turns = append(turns, m)
		}
	}
	if len(turns) > HistoryLimit {
		turns = turns[len(turns)-HistoryLimit:]
	}

	for _, m := range turns {
		role := openai.ChatMessageRoleUser
		if m.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	if strings.TrimSpace(user) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: user,
		})
	}

	return messages
}

// Complete sends one non-streaming request and returns the first choice's content.
// An empty systemPrompt falls back to the configured one.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []Message, user string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = c.config.SystemPrompt
	}

	messages := BuildMessages(systemPrompt, history, user)
	if len(messages) == 0 {
		return "", errors.New("nothing to send")
	}

	startTime := time.Now()
	c.logger.Debug("Sending chat completion",
		slog.String("model", c.config.Model),
		slog.Int("messages", len(messages)),
	)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		c.record("failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	c.record("succeeded")

	c.logger.Info("Chat completion finished",
		slog.String("model", c.config.Model),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordChat(outcome)
	}
}
