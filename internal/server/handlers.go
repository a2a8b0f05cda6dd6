package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suyip01/audio-ai/internal/audio"
	"github.com/suyip01/audio-ai/internal/chat"
	"github.com/suyip01/audio-ai/internal/pipeline"
	"github.com/suyip01/audio-ai/internal/speech"
)

// Content types accepted by the upload endpoint
var allowedAudioTypes = map[string]bool{
	"audio/wav":    true,
	"audio/x-wav":  true,
	"audio/wave":   true,
	"audio/mp3":    true,
	"audio/mpeg":   true,
	"audio/m4a":    true,
	"audio/x-m4a":  true,
	"audio/mp4":    true,
	"audio/flac":   true,
	"audio/x-flac": true,
	"audio/webm":   true,
}

// Event types written to the transcription stream
const (
	EventTranscriptionStart    = "transcription_start"
	EventChunkStart            = "chunk_start"
	EventTranscriptionChunk    = "transcription_chunk"
	EventTranscriptionComplete = "transcription_complete"
	EventError                 = "error"
)

// eventWriter writes server-sent events, one JSON object per data line
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	err     error
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	ew := &eventWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		ew.flusher = f
	}
	return ew
}

func (e *eventWriter) send(event map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Once the client is gone there is nobody to write to
	if e.err != nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.err = err
		return
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		e.err = err
		return
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

// sseObserver forwards pipeline progress to the event stream
type sseObserver struct {
	pipeline.NopObserver
	events *eventWriter
	logger *slog.Logger
	total  int
}

func (o *sseObserver) RunStarted(runID string, total int, duration time.Duration) {
	o.total = total
	o.logger.Info("Audio split into segments",
		slog.String("run_id", runID),
		slog.Int("segments", total),
		slog.Duration("duration", duration),
	)
}

func (o *sseObserver) SegmentStarted(seg audio.Segment, total int) {
	o.events.send(map[string]interface{}{
		"type":        EventChunkStart,
		"message":     fmt.Sprintf("Processing segment %d/%d...", seg.Index+1, total),
		"chunkIndex":  seg.Index + 1,
		"totalChunks": total,
	})
}

func (o *sseObserver) Delta(index int, text string) {
	o.events.send(map[string]interface{}{
		"type":        EventTranscriptionChunk,
		"content":     text,
		"chunkIndex":  index + 1,
		"totalChunks": o.total,
	})
}

func (o *sseObserver) SegmentFinished(result pipeline.SegmentResult, total int) {
	if !result.OK() {
		o.logger.Warn("Segment produced no transcript",
			slog.Int("segment", result.Index+1),
			slog.Int("total", total),
		)
	}
}

// handleTranscribeStream accepts a multipart upload under "audio" and streams the transcription as server-sent events
func (h *HTTPServer) handleTranscribeStream(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.config.Server.MaxUploadBytes
	// Leave room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	file, header, err := r.FormFile("audio")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large",
				fmt.Errorf("audio file must not exceed %dMB", maxBytes/(1<<20)))
			return
		}
		writeError(w, http.StatusBadRequest, "no audio file uploaded", err)
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large",
			fmt.Errorf("audio file must not exceed %dMB", maxBytes/(1<<20)))
		return
	}

	mediaType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !allowedAudioTypes[mediaType] {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported audio format",
			fmt.Errorf("content type %q is not accepted", mediaType))
		return
	}

	path, cleanup, err := saveUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("Failed to store upload", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store upload", err)
		return
	}
	defer cleanup()

	requestID := uuid.NewString()
	logger := h.logger.With(slog.String("request_id", requestID))
	logger.Info("Received audio file",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
		slog.String("content_type", mediaType),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events := newEventWriter(w)
	events.send(map[string]interface{}{
		"type":    EventTranscriptionStart,
		"message": "Transcription started",
	})

	h.trackActive(1)
	defer h.trackActive(-1)

	startTime := time.Now()
	obs := &sseObserver{events: events, logger: logger}
	transcript, err := h.services.Pipeline.Run(r.Context(), path, obs)
	if err != nil {
		logger.Error("Transcription failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(startTime)),
		)
		events.send(map[string]interface{}{
			"type":  EventError,
			"error": err.Error(),
		})
		return
	}

	events.send(map[string]interface{}{
		"type":        EventTranscriptionComplete,
		"content":     transcript.Text,
		"message":     "Transcription complete",
		"totalChunks": transcript.Total,
		"failed":      transcript.Failed,
	})

	logger.Info("Transcription streamed",
		slog.Int("segments", transcript.Total),
		slog.Int("failed", transcript.Failed),
		slog.Int("characters", len([]rune(transcript.Text))),
		slog.Duration("elapsed", time.Since(startTime)),
	)
}

// saveUpload copies the upload into a scratch file keeping its extension for container detection
func saveUpload(src io.Reader, filename string) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.CreateTemp("", "audio-ai-upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}

	return f.Name(), cleanup, nil
}

type chatRequest struct {
	History      []chat.Message `json:"history"`
	Message      string         `json:"message"`
	SystemPrompt string         `json:"system_prompt"`
}

// handleChat implements POST /api/chat
func (h *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.services.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured", nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" && len(req.History) == 0 {
		writeError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	content, err := h.services.Chat.Complete(r.Context(), req.SystemPrompt, req.History, req.Message)
	if err != nil {
		h.logger.Error("Chat completion failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "chat completion failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"content": content})
}

type speechRequest struct {
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// audioWriter defers the response headers until the first audio byte so failures can still be reported as JSON
type audioWriter struct {
	w       http.ResponseWriter
	format  string
	started bool
}

func (a *audioWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", audioContentType(a.format))
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

func audioContentType(format string) string {
	switch format {
	case "wav", "":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}

// handleSpeech implements POST /api/speech
func (h *HTTPServer) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if h.services.Speech == nil {
		writeError(w, http.StatusServiceUnavailable, "speech is not configured", nil)
		return
	}

	var req speechRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required", nil)
		return
	}

	format := req.Format
	if format == "" {
		format = h.config.Speech.ResponseFormat
	}

	aw := &audioWriter{w: w, format: format}
	_, err := h.services.Speech.Synthesize(r.Context(), req.Input, speech.Options{
		Voice:          req.Voice,
		ResponseFormat: format,
	}, aw)
	if err != nil {
		h.logger.Error("Speech synthesis failed", slog.String("error", err.Error()))
		if !aw.started {
			writeError(w, http.StatusBadGateway, "speech synthesis failed", err)
		}
		return
	}
	if !aw.started {
		// Empty audio body
		w.Header().Set("Content-Type", audioContentType(format))
		w.WriteHeader(http.StatusOK)
	}
}
