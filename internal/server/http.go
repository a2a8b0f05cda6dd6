package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/suyip01/audio-ai/internal/chat"
	"github.com/suyip01/audio-ai/internal/config"
	"github.com/suyip01/audio-ai/internal/metrics"
	"github.com/suyip01/audio-ai/internal/pipeline"
	"github.com/suyip01/audio-ai/internal/speech"
	"github.com/suyip01/audio-ai/internal/transcription"
)

// TranscriptionRunner transcribes an audio file, reporting progress to obs
type TranscriptionRunner interface {
	Run(ctx context.Context, path string, obs pipeline.Observer) (*pipeline.Transcript, error)
}

// StatsProvider exposes transcription client statistics
type StatsProvider interface {
	GetStats() transcription.ClientStats
}

// ChatCompleter answers a user message given optional history
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt string, history []chat.Message, user string) (string, error)
}

// SpeechSynthesizer streams synthesized audio into w
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, opts speech.Options, w io.Writer) (*speech.Result, error)
}

// Services are the backends behind the HTTP API. Chat and Speech may be nil.
type Services struct {
	Pipeline TranscriptionRunner
	Stats    StatsProvider
	Chat     ChatCompleter
	Speech   SpeechSynthesizer
}

// HTTPServer provides the transcription API plus monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	router   chi.Router
	logger   *slog.Logger
	config   *config.Config
	services Services
	metrics  *metrics.Metrics

	// Server state
	startTime time.Time
	active    int
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, services Services, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		services:  services,
		metrics:   m,
		startTime: time.Now(),
	}

	h.router = chi.NewRouter()
	h.setupRoutes(h.router)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", appConfig.Server.Address, appConfig.Server.Port),
		Handler:     h.router,
		ReadTimeout: 60 * time.Second,
		// No write timeout: transcription streams last as long as the audio takes to process
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Cache-Control"},
	}))

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		transcribe := api
		if h.config.Server.RateLimit > 0 {
			transcribe = api.With(httprate.LimitByIP(h.config.Server.RateLimit, time.Minute))
		}
		transcribe.Post("/audio/transcribe-stream",
			h.withMetrics("/api/audio/transcribe-stream", h.handleTranscribeStream))

		api.Post("/chat", h.withMetrics("/api/chat", h.handleChat))
		api.Post("/speech", h.withMetrics("/api/speech", h.handleSpeech))
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so event streams reach the client immediately
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) trackActive(delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active += delta
}

func (h *HTTPServer) activeRuns() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, detail error) {
	body := map[string]interface{}{"error": message}
	if detail != nil {
		body["message"] = detail.Error()
	}
	writeJSON(w, status, body)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	transcriptionStatus := map[string]interface{}{
		"active_runs": h.activeRuns(),
	}
	if h.services.Stats != nil {
		stats := h.services.Stats.GetStats()
		transcriptionStatus["total_requests"] = stats.TotalRequests
		transcriptionStatus["success_rate"] = stats.SuccessRate
		transcriptionStatus["active_requests"] = stats.ActiveRequests
	}

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"config": map[string]interface{}{
			"model":          h.config.Transcription.Model,
			"max_audio_size": h.config.Server.MaxUploadBytes,
			"chunk_duration": h.config.Transcription.ChunkDuration,
		},
		"components": map[string]interface{}{
			"transcription": transcriptionStatus,
			"chat":          map[string]interface{}{"enabled": h.services.Chat != nil},
			"speech":        map[string]interface{}{"enabled": h.services.Speech != nil},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Return sanitized configuration (API keys are omitted)
	sanitizedConfig := map[string]interface{}{
		"transcription": map[string]interface{}{
			"base_url":       h.config.Transcription.BaseURL,
			"model":          h.config.Transcription.Model,
			"chunk_duration": h.config.Transcription.ChunkDuration,
			"max_tokens":     h.config.Transcription.MaxTokens,
			"temperature":    h.config.Transcription.Temperature,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
		},
		"chat": map[string]interface{}{
			"base_url":    h.config.Chat.BaseURL,
			"model":       h.config.Chat.Model,
			"temperature": h.config.Chat.Temperature,
			"top_p":       h.config.Chat.TopP,
			"max_tokens":  h.config.Chat.MaxTokens,
		},
		"speech": map[string]interface{}{
			"base_url":        h.config.Speech.BaseURL,
			"model":           h.config.Speech.Model,
			"voice":           h.config.Speech.Voice,
			"response_format": h.config.Speech.ResponseFormat,
		},
		"server": map[string]interface{}{
			"address":          h.config.Server.Address,
			"port":             h.config.Server.Port,
			"max_upload_bytes": h.config.Server.MaxUploadBytes,
			"rate_limit":       h.config.Server.RateLimit,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if h.services.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription statistics unavailable", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.services.Stats.GetStats())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "Audio AI Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                             "API documentation",
			"GET /health":                       "Service health check",
			"GET /config":                       "Get service configuration",
			"GET /stats/transcription":          "Get transcription statistics",
			"GET /metrics":                      "Prometheus metrics",
			"POST /api/audio/transcribe-stream": "Transcribe an uploaded audio file as server-sent events",
			"POST /api/chat":                    "Single-shot chat completion",
			"POST /api/speech":                  "Text-to-speech synthesis",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
