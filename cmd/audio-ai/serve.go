package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/suyip01/audio-ai/internal/server"
)

// ServeCmd runs the HTTP API until interrupted
type ServeCmd struct {
	Port   int    `help:"Override the configured listen port"`
	FFmpeg string `name:"ffmpeg" default:"ffmpeg" help:"ffmpeg binary used for non-WAV uploads"`
}

func (cmd *ServeCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	if cmd.Port != 0 {
		a.cfg.Server.Port = cmd.Port
		if err := a.cfg.Server.Validate(); err != nil {
			return fmt.Errorf("invalid --port: %w", err)
		}
	}
	logger := a.logger

	logger.Info("Starting audio AI service",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	p, transcriber, err := a.pipeline(0, "", cmd.FFmpeg)
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}
	logger.Info("Transcription client initialized",
		slog.String("model", transcriber.Model()),
		slog.Float64("chunk_duration", a.cfg.Transcription.ChunkDuration),
	)

	services := server.Services{Pipeline: p, Stats: transcriber}

	// Chat and speech are optional; the API reports them as disabled
	if chatClient, err := a.chatClient(); err != nil {
		logger.Warn("Chat disabled", slog.String("error", err.Error()))
	} else {
		services.Chat = chatClient
	}
	if speechClient, err := a.speechClient(); err != nil {
		logger.Warn("Speech disabled", slog.String("error", err.Error()))
	} else {
		services.Speech = speechClient
	}

	httpServer := server.NewHTTPServer(a.cfg, logger.With("component", "http"), services, a.metrics)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	logger.Info("Audio AI service started successfully",
		slog.String("http_address", fmt.Sprintf("%s:%d", a.cfg.Server.Address, a.cfg.Server.Port)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	stats := transcriber.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	a.writeMetrics(g)
	logger.Info("Audio AI service stopped")
	return nil
}
