package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/suyip01/audio-ai/internal/config"
	"github.com/suyip01/audio-ai/internal/metrics"
)

const (
	serviceName    = "audio-ai"
	serviceVersion = "1.0.0"
)

// Globals are flags shared by every command
type Globals struct {
	Config      string   `short:"c" env:"AUDIO_AI_CONFIG" type:"path" help:"Path to YAML configuration file (defaults plus environment when empty)"`
	EnvFile     []string `name:"env-file" default:".env" help:"Dotenv files loaded into the environment before configuration"`
	LogLevel    string   `name:"log-level" help:"Override the configured log level (debug, info, warn, error)"`
	MetricsFile string   `name:"metrics-file" type:"path" help:"Write Prometheus metrics to this file when the command finishes"`
}

var CLI struct {
	Globals `embed:""`

	Transcribe TranscribeCmd `cmd:"" help:"Transcribe an audio file segment by segment with streaming output"`
	Chat       ChatCmd       `cmd:"" help:"Send a single chat completion request"`
	Speech     SpeechCmd     `cmd:"" help:"Convert text to speech and save the audio"`
	Serve      ServeCmd      `cmd:"" help:"Run the HTTP API with the streaming transcription endpoint"`
}

// app holds what every command needs after start-up
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(serviceName),
		kong.Description("Chunked streaming transcription, chat and speech against OpenAI-compatible endpoints."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&CLI.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads dotenv files and configuration, then builds the logger and metrics
func (g *Globals) setup() (*app, error) {
	loaded, err := config.LoadEnvFiles(g.EnvFile...)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
		if err := cfg.Logging.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	logger := initLogger(cfg.Logging)
	logger.Debug("Configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", g.Config),
		slog.Any("env_files", loaded),
		slog.String("transcription_base_url", cfg.Transcription.BaseURL),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.Float64("chunk_duration", cfg.Transcription.ChunkDuration),
		slog.String("chat_model", cfg.Chat.Model),
		slog.String("speech_model", cfg.Speech.Model),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(),
	}, nil
}

// writeMetrics dumps the registry if a metrics file was requested on the command line or in the config
func (a *app) writeMetrics(g *Globals) {
	path := g.MetricsFile
	if path == "" {
		path = a.cfg.Metrics.TextfilePath
	}
	if path == "" {
		return
	}

	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Error("Failed to write metrics file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.Debug("Metrics written", slog.String("path", path))
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Transcripts go to stdout, so logs default to stderr
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
