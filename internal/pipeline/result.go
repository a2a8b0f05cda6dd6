package pipeline

import (
	"errors"
	"strings"
)

var (
	// ErrEmptySource is returned when the audio file contains no frames
	ErrEmptySource = errors.New("audio source contains no segments")

	// ErrAllSegmentsFailed is returned when no segment produced a transcript
	ErrAllSegmentsFailed = errors.New("transcription task failed: every segment failed")
)

// SegmentResult is the outcome of one segment: either a transcript or the reason it has none
type SegmentResult struct {
	Index int
	Text  string
	Err   error
}

// Succeeded returns a result carrying text
func Succeeded(index int, text string) SegmentResult {
	return SegmentResult{Index: index, Text: text}
}

// Failed returns a result without text
func Failed(index int, err error) SegmentResult {
	if err == nil {
		err = errors.New("segment failed")
	}
	return SegmentResult{Index: index, Err: err}
}

// OK reports whether the segment produced a transcript
func (r SegmentResult) OK() bool {
	return r.Err == nil
}

// Transcript is the aggregated output of a run
type Transcript struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Segments  []SegmentResult `json:"-"`
}

// Aggregate concatenates successful segment texts in order with no separator.
// Failed segments contribute nothing.
func Aggregate(results []SegmentResult) Transcript {
	var sb strings.Builder
	t := Transcript{Total: len(results), Segments: results}

	for _, r := range results {
		if !r.OK() {
			t.Failed++
			continue
		}
		t.Succeeded++
		sb.WriteString(r.Text)
	}

	t.Text = sb.String()
	return t
}
