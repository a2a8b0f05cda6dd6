package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fakeAudio = []byte("RIFF\x24\x00\x00\x00WAVEfmt fake audio body")

func newSpeechServer(t *testing.T, got *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(fakeAudio)
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:        baseURL,
		APIKey:         "tts-key",
		Model:          "IndexTeam/IndexTTS-2",
		Voice:          "novel",
		ResponseFormat: "wav",
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestSynthesize(t *testing.T) {
	var req map[string]any
	server := newSpeechServer(t, &req)
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1")

	var buf bytes.Buffer
	result, err := client.Synthesize(context.Background(), "hello there", Options{}, &buf)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !bytes.Equal(buf.Bytes(), fakeAudio) {
		t.Errorf("Audio body was not copied to the writer")
	}
	if result.Bytes != int64(len(fakeAudio)) {
		t.Errorf("Expected %d bytes, got %d", len(fakeAudio), result.Bytes)
	}
	if result.ContentType != "audio/wav" {
		t.Errorf("Unexpected content type %q", result.ContentType)
	}

	if req["model"] != "IndexTeam/IndexTTS-2" || req["voice"] != "novel" || req["input"] != "hello there" {
		t.Errorf("Unexpected request %v", req)
	}
	if req["response_format"] != "wav" {
		t.Errorf("Unexpected response format %v", req["response_format"])
	}
}

func TestSynthesizeOverrides(t *testing.T) {
	var req map[string]any
	server := newSpeechServer(t, &req)
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1")
	_, err := client.Synthesize(context.Background(), "hi", Options{Voice: "calm", ResponseFormat: "mp3"}, io.Discard)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if req["voice"] != "calm" || req["response_format"] != "mp3" {
		t.Errorf("Overrides not applied: %v", req)
	}
}

func TestSynthesizeEmptyInput(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1/v1")

	_, err := client.Synthesize(context.Background(), "  \n", Options{}, io.Discard)
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestSynthesizeToFile(t *testing.T) {
	server := newSpeechServer(t, nil)
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1")
	path := filepath.Join(t.TempDir(), "generated-speech.wav")

	result, err := client.SynthesizeToFile(context.Background(), "hello", Options{}, path)
	if err != nil {
		t.Fatalf("SynthesizeToFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !bytes.Equal(data, fakeAudio) || result.Bytes != int64(len(data)) {
		t.Errorf("Unexpected file contents (%d bytes)", len(data))
	}
}

func TestSynthesizeToFileRemovesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1")
	path := filepath.Join(t.TempDir(), "out.wav")

	if _, err := client.SynthesizeToFile(context.Background(), "hello", Options{}, path); err == nil {
		t.Fatal("Expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected output file to be removed, stat err: %v", err)
	}
}
