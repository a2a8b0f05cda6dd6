package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/suyip01/audio-ai/internal/audio"
	"github.com/suyip01/audio-ai/internal/chat"
	"github.com/suyip01/audio-ai/internal/config"
	"github.com/suyip01/audio-ai/internal/metrics"
	"github.com/suyip01/audio-ai/internal/pipeline"
	"github.com/suyip01/audio-ai/internal/speech"
	"github.com/suyip01/audio-ai/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner replays a fixed script of segment deltas through the observer
type fakeRunner struct {
	deltas   [][]string
	err      error
	gotPath  string
	gotBytes []byte
}

func (f *fakeRunner) Run(ctx context.Context, path string, obs pipeline.Observer) (*pipeline.Transcript, error) {
	f.gotPath = path
	f.gotBytes, _ = os.ReadFile(path)
	if f.err != nil {
		return nil, f.err
	}

	total := len(f.deltas)
	obs.RunStarted("run-1", total, time.Duration(total)*30*time.Second)
	results := make([]pipeline.SegmentResult, 0, total)
	for i, segDeltas := range f.deltas {
		obs.SegmentStarted(audio.Segment{Index: i}, total)
		text := ""
		for _, d := range segDeltas {
			obs.Delta(i, d)
			text += d
		}
		result := pipeline.Succeeded(i, text)
		results = append(results, result)
		obs.SegmentFinished(result, total)
	}
	t := pipeline.Aggregate(results)
	return &t, nil
}

type fakeStats struct{}

func (fakeStats) GetStats() transcription.ClientStats {
	return transcription.ClientStats{TotalRequests: 7, SuccessRequests: 7, SuccessRate: 100}
}

type fakeChat struct {
	gotHistory []chat.Message
	gotMessage string
}

func (f *fakeChat) Complete(ctx context.Context, systemPrompt string, history []chat.Message, user string) (string, error) {
	f.gotHistory = history
	f.gotMessage = user
	return "reply to " + user, nil
}

type fakeSpeech struct {
	err error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string, opts speech.Options, w io.Writer) (*speech.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, err := w.Write([]byte("AUDIO:" + text + ":" + opts.Voice))
	return &speech.Result{Bytes: int64(n)}, err
}

func newTestServer(services Services) *HTTPServer {
	cfg := config.Default()
	cfg.Transcription.APIKey = "secret-asr-key"
	cfg.Server.MaxUploadBytes = 1024
	return NewHTTPServer(cfg, testLogger(), services, metrics.NewMetrics())
}

func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/audio/transcribe-stream", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func readEvents(t *testing.T, body io.Reader) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Invalid event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestTranscribeStreamEvents(t *testing.T) {
	runner := &fakeRunner{deltas: [][]string{{"A", "."}, {"B."}}}
	h := newTestServer(Services{Pipeline: runner, Stats: fakeStats{}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, uploadRequest(t, "audio", "speech.wav", "audio/wav", []byte("RIFF....WAVE")))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if string(runner.gotBytes) != "RIFF....WAVE" {
		t.Errorf("Upload not stored intact: %q", runner.gotBytes)
	}
	if !strings.HasSuffix(runner.gotPath, ".wav") {
		t.Errorf("Expected stored upload to keep its extension, got %s", runner.gotPath)
	}
	if _, err := os.Stat(runner.gotPath); !os.IsNotExist(err) {
		t.Errorf("Expected stored upload to be removed after the request")
	}

	events := readEvents(t, rec.Body)
	var types []string
	for _, e := range events {
		types = append(types, e["type"].(string))
	}
	expected := "transcription_start,chunk_start,transcription_chunk,transcription_chunk,chunk_start,transcription_chunk,transcription_complete"
	if strings.Join(types, ",") != expected {
		t.Fatalf("Unexpected event sequence %v", types)
	}

	chunk := events[2]
	if chunk["content"] != "A" || chunk["chunkIndex"] != float64(1) || chunk["totalChunks"] != float64(2) {
		t.Errorf("Unexpected chunk event %v", chunk)
	}

	complete := events[len(events)-1]
	if complete["content"] != "A.B." || complete["totalChunks"] != float64(2) {
		t.Errorf("Unexpected completion event %v", complete)
	}
}

func TestTranscribeStreamPipelineError(t *testing.T) {
	runner := &fakeRunner{err: pipeline.ErrAllSegmentsFailed}
	h := newTestServer(Services{Pipeline: runner})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, uploadRequest(t, "audio", "clip.mp3", "audio/mpeg", []byte("ID3")))

	events := readEvents(t, rec.Body)
	if len(events) != 2 {
		t.Fatalf("Expected start and error events, got %v", events)
	}
	if events[1]["type"] != "error" || events[1]["error"] != pipeline.ErrAllSegmentsFailed.Error() {
		t.Errorf("Unexpected error event %v", events[1])
	}
}

func TestTranscribeStreamRejectsUploads(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "speech.wav", "audio/wav", []byte("RIFF"))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unsupported type",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "audio", "notes.txt", "text/plain", []byte("hello"))
			},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "audio", "long.wav", "audio/wav", bytes.Repeat([]byte{1}, 2048))
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			h := newTestServer(Services{Pipeline: runner})

			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, tt.req(t))

			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if runner.gotPath != "" {
				t.Error("Pipeline should not run for rejected uploads")
			}
		})
	}
}

func TestHealthAndConfig(t *testing.T) {
	h := newTestServer(Services{Pipeline: &fakeRunner{}, Stats: fakeStats{}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /health, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" {
		t.Errorf("Unexpected health status %v", health["status"])
	}
	cfg := health["config"].(map[string]interface{})
	if cfg["model"] != "Qwen2-Audio-7B-Instruct" || cfg["max_audio_size"] != float64(1024) {
		t.Errorf("Unexpected health config %v", cfg)
	}

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	if strings.Contains(rec.Body.String(), "secret-asr-key") {
		t.Error("/config must not expose API keys")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(Services{Pipeline: &fakeRunner{}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `audioai_http_requests_total{endpoint="/health",method="GET",status_code="200"} 1`) {
		t.Errorf("Expected /health request to be counted:\n%s", rec.Body.String())
	}
}

func TestChatEndpoint(t *testing.T) {
	chatSvc := &fakeChat{}
	h := newTestServer(Services{Pipeline: &fakeRunner{}, Chat: chatSvc})

	body := `{"history":[{"role":"assistant","content":"hi"}],"message":"how are you"}`
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["content"] != "reply to how are you" {
		t.Errorf("Unexpected response %v", resp)
	}
	if len(chatSvc.gotHistory) != 1 || chatSvc.gotHistory[0].Role != "assistant" {
		t.Errorf("History not forwarded: %v", chatSvc.gotHistory)
	}
}

func TestChatEndpointNotConfigured(t *testing.T) {
	h := newTestServer(Services{Pipeline: &fakeRunner{}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"x"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestSpeechEndpoint(t *testing.T) {
	h := newTestServer(Services{Pipeline: &fakeRunner{}, Speech: &fakeSpeech{}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/speech", strings.NewReader(`{"input":"hello","voice":"novel"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if rec.Body.String() != "AUDIO:hello:novel" {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}

func TestSpeechEndpointFailure(t *testing.T) {
	h := newTestServer(Services{Pipeline: &fakeRunner{}, Speech: &fakeSpeech{err: errors.New("upstream down")}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/speech", strings.NewReader(`{"input":"hello"}`)))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upstream down") {
		t.Errorf("Expected error detail in body: %s", rec.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	h := newTestServer(Services{Pipeline: &fakeRunner{}})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), "/api/audio/transcribe-stream") {
		t.Errorf("Root should list the transcription endpoint: %s", rec.Body.String())
	}
}
