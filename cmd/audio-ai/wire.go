package main

import (
	"time"

	"github.com/suyip01/audio-ai/internal/audio"
	"github.com/suyip01/audio-ai/internal/chat"
	"github.com/suyip01/audio-ai/internal/pipeline"
	"github.com/suyip01/audio-ai/internal/speech"
	"github.com/suyip01/audio-ai/internal/transcription"
)

func (a *app) transcriptionClient(prompt string) (*transcription.Client, error) {
	tc := a.cfg.Transcription
	if prompt == "" {
		prompt = tc.Prompt
	}
	return transcription.NewClient(transcription.Config{
		BaseURL:       tc.BaseURL,
		APIKey:        tc.APIKey,
		Model:         tc.Model,
		Prompt:        prompt,
		MaxTokens:     tc.MaxTokens,
		Temperature:   tc.Temperature,
		Timeout:       tc.GetTimeoutDuration(),
		MaxRetries:    tc.MaxRetries,
		MaxConcurrent: tc.MaxConcurrent,
	}, a.logger.With("component", "transcription"), a.metrics)
}

// pipeline builds the loader, transcription client and pipeline for one process
func (a *app) pipeline(chunk time.Duration, prompt, ffmpeg string) (*pipeline.Pipeline, *transcription.Client, error) {
	client, err := a.transcriptionClient(prompt)
	if err != nil {
		return nil, nil, err
	}
	if chunk <= 0 {
		chunk = a.cfg.Transcription.GetChunkDuration()
	}

	loader := audio.NewLoader(a.logger.With("component", "loader"), ffmpeg)
	p := pipeline.New(loader, client, chunk, a.logger.With("component", "pipeline"), a.metrics)
	return p, client, nil
}

func (a *app) chatClient() (*chat.Client, error) {
	cc := a.cfg.Chat
	return chat.NewClient(chat.Config{
		BaseURL:      cc.BaseURL,
		APIKey:       cc.APIKey,
		Model:        cc.Model,
		SystemPrompt: cc.SystemPrompt,
		Temperature:  float32(cc.Temperature),
		TopP:         float32(cc.TopP),
		MaxTokens:    cc.MaxTokens,
	}, a.logger.With("component", "chat"), a.metrics)
}

func (a *app) speechClient() (*speech.Client, error) {
	sc := a.cfg.Speech
	return speech.NewClient(speech.Config{
		BaseURL:        sc.BaseURL,
		APIKey:         sc.APIKey,
		Model:          sc.Model,
		Voice:          sc.Voice,
		ResponseFormat: sc.ResponseFormat,
	}, a.logger.With("component", "speech"), a.metrics)
}
