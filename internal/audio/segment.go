package audio

import (
	"fmt"
	"math"
	"time"
)

// Segment is a contiguous, fixed-length window of a Source.
// Data is a view into the source buffer and must not be modified.
type Segment struct {
	Index      int
	Offset     int // first frame of the segment within the source
	Frames     int
	SampleRate int
	Channels   int
	BitDepth   int
	Data       []int // interleaved PCM
}

// Duration returns the playing time of the segment
func (s Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return framesToDuration(s.Frames, s.SampleRate)
}

// Start returns the segment position within the source
func (s Segment) Start() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return framesToDuration(s.Offset, s.SampleRate)
}

// FramesPerSegment converts a segment length to a whole number of frames (at least one)
func FramesPerSegment(chunk time.Duration, sampleRate int) int {
	n := int(math.Round(chunk.Seconds() * float64(sampleRate)))
	if n < 1 {
		return 1
	}
	return n
}

// Split slices src into consecutive segments of the given length.
// Segments cover the whole source without gaps or overlaps; only the last one may be shorter.
// A source without frames yields no segments.
func Split(src *Source, chunk time.Duration) ([]Segment, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", chunk)
	}
	if src == nil || src.Buffer == nil || src.Buffer.Format == nil {
		return nil, fmt.Errorf("source has no PCM buffer")
	}

	totalFrames := src.Frames()
	if totalFrames == 0 {
		return []Segment{}, nil
	}

	channels := src.Channels()
	chunkFrames := FramesPerSegment(chunk, src.SampleRate())
	count := (totalFrames + chunkFrames - 1) / chunkFrames
	segments := make([]Segment, 0, count)

	for offset := 0; offset < totalFrames; offset += chunkFrames {
		end := min(offset+chunkFrames, totalFrames)
		segments = append(segments, Segment{
			Index:      len(segments),
			Offset:     offset,
			Frames:     end - offset,
			SampleRate: src.SampleRate(),
			Channels:   channels,
			BitDepth:   src.BitDepth(),
			Data:       src.Buffer.Data[offset*channels : end*channels],
		})
	}

	return segments, nil
}
