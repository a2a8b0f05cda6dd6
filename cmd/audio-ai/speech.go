package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/suyip01/audio-ai/internal/config"
	"github.com/suyip01/audio-ai/internal/speech"
)

// SpeechCmd synthesizes text into an audio file
type SpeechCmd struct {
	Text   []string `arg:"" optional:"" help:"Text to synthesize"`
	Out    string   `short:"o" type:"path" help:"Output file (defaults to the configured output_path)"`
	Voice  string   `help:"Voice name (defaults to the configured voice)"`
	Format string   `help:"Audio format: wav, mp3, opus, aac, flac or pcm (defaults to the configured response_format)"`
}

func (cmd *SpeechCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	defer a.writeMetrics(g)

	client, err := a.speechClient()
	if err != nil {
		return fmt.Errorf("failed to create speech client: %w", err)
	}

	text := strings.Join(cmd.Text, " ")
	if strings.TrimSpace(text) == "" {
		text = config.DefaultSpeechInput
	}
	out := cmd.Out
	if out == "" {
		out = a.cfg.Speech.OutputPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := client.SynthesizeToFile(ctx, text, speech.Options{
		Voice:          cmd.Voice,
		ResponseFormat: cmd.Format,
	}, out)
	if err != nil {
		return err
	}

	fmt.Printf("Audio saved to %s (%d bytes)\n", out, result.Bytes)
	fmt.Printf("Elapsed: %.2fs\n", result.Elapsed.Seconds())
	return nil
}
