package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/suyip01/audio-ai/internal/audio"
	"github.com/suyip01/audio-ai/internal/metrics"
)

// SourceLoader decodes an audio file into memory
type SourceLoader interface {
	Load(ctx context.Context, path string) (*audio.Source, error)
}

// Transcriber turns one encoded segment into text, reporting each cleaned delta as it arrives
type Transcriber interface {
	Transcribe(ctx context.Context, payload *audio.Payload, onDelta func(string)) (string, error)
}

// Observer receives progress notifications from a run. Calls happen on the run goroutine, in order.
type Observer interface {
	RunStarted(runID string, totalSegments int, duration time.Duration)
	SegmentStarted(seg audio.Segment, totalSegments int)
	Delta(index int, text string)
	SegmentFinished(result SegmentResult, totalSegments int)
}

// NopObserver ignores every notification. Embed it to implement only some hooks.
type NopObserver struct{}

func (NopObserver) RunStarted(string, int, time.Duration) {}
func (NopObserver) SegmentStarted(audio.Segment, int)     {}
func (NopObserver) Delta(int, string)                     {}
func (NopObserver) SegmentFinished(SegmentResult, int)    {}

// Pipeline transcribes audio files segment by segment
type Pipeline struct {
	loader        SourceLoader
	transcriber   Transcriber
	chunkDuration time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// New creates a pipeline. m may be nil.
func New(loader SourceLoader, transcriber Transcriber, chunkDuration time.Duration, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		loader:        loader,
		transcriber:   transcriber,
		chunkDuration: chunkDuration,
		logger:        logger,
		metrics:       m,
	}
}

// Run loads the file at path and transcribes it.
// Load failures abort the run before any request is made.
func (p *Pipeline) Run(ctx context.Context, path string, obs Observer) (*Transcript, error) {
	src, err := p.loader.Load(ctx, path)
	if err != nil {
		p.recordRunFailed("load")
		p.logger.Error("Failed to load audio",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return p.RunSource(ctx, src, obs)
}

// RunSource splits an already loaded source and transcribes every segment strictly in order.
// A segment that fails to encode or transcribe is recorded as failed and the run continues.
func (p *Pipeline) RunSource(ctx context.Context, src *audio.Source, obs Observer) (*Transcript, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	runID := uuid.NewString()
	startTime := time.Now()
	if p.metrics != nil {
		p.metrics.RecordRunStarted()
		p.metrics.RecordSource(src.Duration().Seconds())
	}

	segments, err := audio.Split(src, p.chunkDuration)
	if err != nil {
		p.recordRunFailed("split")
		return nil, fmt.Errorf("failed to split audio: %w", err)
	}

	total := len(segments)
	logger := p.logger.With(slog.String("run_id", runID))
	logger.Info("Transcription started",
		slog.String("path", src.Path),
		slog.String("container", src.Container),
		slog.Duration("duration", src.Duration()),
		slog.Int("sample_rate", src.SampleRate()),
		slog.Int("channels", src.Channels()),
		slog.Int("segments", total),
	)
	obs.RunStarted(runID, total, src.Duration())

	if total == 0 {
		p.recordRunFailed("empty")
		return &Transcript{ID: runID}, ErrEmptySource
	}

	results := make([]SegmentResult, 0, total)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			p.recordRunFailed("cancelled")
			return nil, err
		}

		obs.SegmentStarted(seg, total)
		result := p.processSegment(ctx, logger, seg, total, obs)
		results = append(results, result)
		obs.SegmentFinished(result, total)
	}

	transcript := Aggregate(results)
	transcript.ID = runID

	logger.Info("Transcription finished",
		slog.Int("segments", transcript.Total),
		slog.Int("succeeded", transcript.Succeeded),
		slog.Int("failed", transcript.Failed),
		slog.Int("characters", len([]rune(transcript.Text))),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	if transcript.Succeeded == 0 {
		p.recordRunFailed("all_segments_failed")
		return &transcript, ErrAllSegmentsFailed
	}

	return &transcript, nil
}

// processSegment encodes and transcribes one segment, converting any error into a failed result
func (p *Pipeline) processSegment(ctx context.Context, logger *slog.Logger, seg audio.Segment, total int, obs Observer) SegmentResult {
	logger.Info("Processing segment",
		slog.Int("segment", seg.Index+1),
		slog.Int("total", total),
		slog.Duration("start", seg.Start()),
		slog.Duration("duration", seg.Duration()),
	)

	payload, err := audio.Encode(seg)
	if err != nil {
		logger.Error("Failed to encode segment",
			slog.Int("segment", seg.Index+1),
			slog.String("error", err.Error()),
		)
		p.recordSegment("failed")
		return Failed(seg.Index, err)
	}
	if p.metrics != nil {
		p.metrics.RecordPayload(payload.Duration, payload.Size)
	}

	text, err := p.transcriber.Transcribe(ctx, payload, func(delta string) {
		obs.Delta(seg.Index, delta)
	})
	if err != nil {
		logger.Error("Segment transcription failed",
			slog.Int("segment", seg.Index+1),
			slog.String("error", err.Error()),
		)
		p.recordSegment("failed")
		return Failed(seg.Index, err)
	}

	logger.Debug("Segment transcribed",
		slog.Int("segment", seg.Index+1),
		slog.Int("characters", len([]rune(text))),
	)
	p.recordSegment("succeeded")
	return Succeeded(seg.Index, text)
}

func (p *Pipeline) recordSegment(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordSegment(outcome)
	}
}

func (p *Pipeline) recordRunFailed(reason string) {
	if p.metrics != nil {
		p.metrics.RecordRunFailed(reason)
	}
}
