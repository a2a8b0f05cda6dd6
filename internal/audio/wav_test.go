package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func sineSamples(sampleRate int, duration float64) []int {
	frequency := 440.0 // 440Hz (A4 note)
	numSamples := int(float64(sampleRate) * duration)
	samples := make([]int, numSamples)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		amplitude := 16383.0 // Half of max int16 to avoid clipping
		samples[i] = int(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return samples
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	samples := sineSamples(sampleRate, 0.1)

	wavData, err := EncodeWAV(samples, sampleRate, 1, 16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// WAV header should be 44 bytes
	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	expectedDuration := float64(len(samples)) / float64(sampleRate)
	if math.Abs(info.Duration-expectedDuration) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expectedDuration, info.Duration)
	}
}

func TestEncodeWAVSampleLayout(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
		samples  []int
		expected []byte
	}{
		{"8-bit unsigned", 8, []int{0, 128, 255}, []byte{0x00, 0x80, 0xFF}},
		{"16-bit signed", 16, []int{1, -2}, []byte{0x01, 0x00, 0xFE, 0xFF}},
		{"24-bit signed", 24, []int{0x010203, -1}, []byte{0x03, 0x02, 0x01, 0xFF, 0xFF, 0xFF}},
		{"32-bit signed", 32, []int{-2}, []byte{0xFE, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeWAV(tt.samples, 8000, 1, tt.bitDepth)
			if err != nil {
				t.Fatalf("EncodeWAV failed: %v", err)
			}
			pcm := data[44:]
			if string(pcm) != string(tt.expected) {
				t.Errorf("Expected PCM % X, got % X", tt.expected, pcm)
			}
			if got := binary.LittleEndian.Uint16(data[34:36]); int(got) != tt.bitDepth {
				t.Errorf("Expected bits per sample %d in header, got %d", tt.bitDepth, got)
			}
		})
	}
}

func TestEncodeWAVStereoHeader(t *testing.T) {
	samples := []int{1, 2, 3, 4, 5, 6} // three stereo frames
	data, err := EncodeWAV(samples, 44100, 2, 16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}

	if info.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", info.Channels)
	}
	if info.NumFrames != 3 {
		t.Errorf("Expected 3 frames, got %d", info.NumFrames)
	}
	if byteRate := binary.LittleEndian.Uint32(data[28:32]); byteRate != 44100*2*2 {
		t.Errorf("Unexpected byte rate %d", byteRate)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	_, err := EncodeWAV([]int{}, 8000, 1, 16)
	if err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidParameters(t *testing.T) {
	samples := []int{100, 200, 300}

	if _, err := EncodeWAV(samples, 0, 1, 16); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := EncodeWAV(samples, -1000, 1, 16); err == nil {
		t.Error("Expected error for negative sample rate")
	}

	if _, err := EncodeWAV(samples, 8000, 2, 16); err == nil {
		t.Error("Expected error for sample count not divisible by channels")
	}

	if _, err := EncodeWAV(samples, 8000, 1, 12); err == nil {
		t.Error("Expected error for unsupported bit depth")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestGetWAVDuration(t *testing.T) {
	sampleRate := 8000
	samples := make([]int, sampleRate) // 1 second
	for i := range samples {
		samples[i] = i % 1000
	}

	wavData, err := EncodeWAV(samples, sampleRate, 1, 16)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", duration)
	}
}
