package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/suyip01/audio-ai/internal/audio"
	"github.com/suyip01/audio-ai/internal/pipeline"
)

// TranscribeCmd transcribes one local audio file
type TranscribeCmd struct {
	File          string        `arg:"" type:"existingfile" help:"Audio file to transcribe (WAV natively, other containers through ffmpeg)"`
	ChunkDuration time.Duration `name:"chunk-duration" help:"Segment length, e.g. 30s (defaults to the configured chunk_duration)"`
	Prompt        string        `help:"Instruction sent with every segment (defaults to the configured prompt)"`
	Output        string        `short:"o" type:"path" help:"Also write the final transcript to this file"`
	FFmpeg        string        `name:"ffmpeg" default:"ffmpeg" help:"ffmpeg binary used for non-WAV input"`
	NoProgress    bool          `name:"no-progress" help:"Disable the segment progress bar"`
}

// consoleObserver prints deltas as they arrive and advances a progress bar per segment
type consoleObserver struct {
	pipeline.NopObserver
	out      io.Writer
	bar      *progressbar.ProgressBar
	noBar    bool
	failures []string
}

func (o *consoleObserver) RunStarted(runID string, total int, duration time.Duration) {
	fmt.Fprintf(os.Stderr, "Audio duration %s, %d segment(s)\n", duration.Round(time.Millisecond), total)
	if o.noBar || total == 0 {
		return
	}
	o.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Transcribing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (o *consoleObserver) SegmentStarted(seg audio.Segment, total int) {
	if o.bar != nil {
		o.bar.Describe(fmt.Sprintf("Segment %d/%d", seg.Index+1, total))
	}
}

func (o *consoleObserver) Delta(index int, text string) {
	fmt.Fprint(o.out, text)
}

func (o *consoleObserver) SegmentFinished(result pipeline.SegmentResult, total int) {
	if !result.OK() {
		o.failures = append(o.failures, fmt.Sprintf("segment %d/%d: %v", result.Index+1, total, result.Err))
	}
	if o.bar != nil {
		o.bar.Add(1)
	}
}

func (o *consoleObserver) finish() {
	if o.bar != nil {
		o.bar.Finish()
	}
	fmt.Fprintln(o.out)
	for _, f := range o.failures {
		fmt.Fprintf(os.Stderr, "failed %s\n", f)
	}
}

func (cmd *TranscribeCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	defer a.writeMetrics(g)

	p, _, err := a.pipeline(cmd.ChunkDuration, cmd.Prompt, cmd.FFmpeg)
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	obs := &consoleObserver{out: os.Stdout, noBar: cmd.NoProgress}
	transcript, err := p.Run(ctx, cmd.File, obs)
	obs.finish()

	rule := strings.Repeat("=", 50)
	if err != nil {
		fmt.Println("transcription task failed")
		if transcript != nil && transcript.Total > 0 {
			fmt.Printf("%d of %d segment(s) failed\n", transcript.Failed, transcript.Total)
		}
		fmt.Printf("Total time: %.2fs\n", time.Since(startTime).Seconds())
		return err
	}

	fmt.Println(rule)
	fmt.Println("Final transcript:")
	fmt.Println(transcript.Text)
	fmt.Println(rule)
	if transcript.Failed > 0 {
		fmt.Printf("%d of %d segment(s) failed\n", transcript.Failed, transcript.Total)
	}
	fmt.Printf("Total time: %.2fs\n", time.Since(startTime).Seconds())

	if cmd.Output != "" {
		if err := os.WriteFile(cmd.Output, []byte(transcript.Text+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write transcript: %w", err)
		}
		a.logger.Info("Transcript saved", "path", cmd.Output)
	}

	return nil
}
