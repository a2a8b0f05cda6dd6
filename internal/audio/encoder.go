package audio

import (
	"encoding/base64"
	"fmt"
)

// PayloadFormat is the container identifier sent alongside every encoded segment
const PayloadFormat = "wav"

// EncodeError reports that a segment could not be serialised for transport
type EncodeError struct {
	Index int
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode segment %d: %v", e.Index, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Payload is one segment ready to be attached to an inference request
type Payload struct {
	Index    int
	Data     string // base64 of the WAV bytes
	Format   string
	Size     int // size of the WAV bytes before base64
	Duration float64
}

// WAV returns the segment re-encoded as a canonical WAV file
func (s Segment) WAV() ([]byte, error) {
	return EncodeWAV(s.Data, s.SampleRate, s.Channels, s.BitDepth)
}

// Encode serialises a segment to WAV and base64-encodes it.
// The output depends only on the segment contents.
func Encode(seg Segment) (*Payload, error) {
	data, err := seg.WAV()
	if err != nil {
		return nil, &EncodeError{Index: seg.Index, Err: err}
	}

	duration, err := GetWAVDuration(data)
	if err != nil {
		return nil, &EncodeError{Index: seg.Index, Err: err}
	}

	return &Payload{
		Index:    seg.Index,
		Data:     base64.StdEncoding.EncodeToString(data),
		Format:   PayloadFormat,
		Size:     len(data),
		Duration: duration,
	}, nil
}

// EncodeBase64 returns only the base64 text of the encoded segment
func EncodeBase64(seg Segment) (string, error) {
	p, err := Encode(seg)
	if err != nil {
		return "", err
	}
	return p.Data, nil
}
