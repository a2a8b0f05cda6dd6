package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dhowden/tag"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LoadError reports that an audio source could not be opened, converted or decoded
type LoadError struct {
	Path string
	Op   string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load audio %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Source is a fully decoded audio file held in memory as interleaved PCM
type Source struct {
	Path      string
	Container string // "wav" or the container detected before conversion
	Buffer    *goaudio.IntBuffer
}

// SampleRate returns the source sample rate in Hz
func (s *Source) SampleRate() int {
	return s.Buffer.Format.SampleRate
}

// Channels returns the number of interleaved channels
func (s *Source) Channels() int {
	return s.Buffer.Format.NumChannels
}

// BitDepth returns the PCM sample width in bits
func (s *Source) BitDepth() int {
	return s.Buffer.SourceBitDepth
}

// Frames returns the number of sample frames (samples per channel)
func (s *Source) Frames() int {
	if s.Buffer == nil || s.Buffer.Format == nil || s.Buffer.Format.NumChannels == 0 {
		return 0
	}
	return len(s.Buffer.Data) / s.Buffer.Format.NumChannels
}

// Duration returns the playing time of the source
func (s *Source) Duration() time.Duration {
	if s.Buffer == nil || s.Buffer.Format == nil || s.Buffer.Format.SampleRate == 0 {
		return 0
	}
	return framesToDuration(s.Frames(), s.SampleRate())
}

// Loader opens audio files, converting non-WAV containers with ffmpeg
type Loader struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewLoader creates a loader. An empty ffmpegPath resolves "ffmpeg" from PATH on demand.
func NewLoader(logger *slog.Logger, ffmpegPath string) *Loader {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Loader{
		ffmpegPath: ffmpegPath,
		logger:     logger,
	}
}

// Load reads the file at path and decodes it into memory
func (l *Loader) Load(ctx context.Context, path string) (*Source, error) {
	l.logger.Info("Loading audio file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	container := "wav"
	if isRIFFWave(f) {
		buf, err := decodeWAV(f)
		if err == nil {
			return &Source{Path: path, Container: container, Buffer: buf}, nil
		}
		// Float and compressed WAV payloads go through ffmpeg like any other container
		l.logger.Debug("WAV decode failed, falling back to conversion",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, &LoadError{Path: path, Op: "seek", Err: err}
		}
		container = identifyContainer(f)
	}

	l.logger.Debug("Converting audio to WAV",
		slog.String("path", path),
		slog.String("container", container),
	)

	buf, err := l.convertAndDecode(ctx, path)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "convert", Err: err}
	}

	return &Source{Path: path, Container: container, Buffer: buf}, nil
}

// convertAndDecode transcodes src to 16-bit PCM WAV in a scratch directory and decodes the result
func (l *Loader) convertAndDecode(ctx context.Context, src string) (*goaudio.IntBuffer, error) {
	dir, err := os.MkdirTemp("", "audio-ai")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "converted.wav")
	cmd := exec.CommandContext(ctx, l.ffmpegPath, "-y", "-i", src, "-vn", "-acodec", "pcm_s16le", dst)
	cmd.Env = []string{}
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w out: %s", err, out)
	}

	fh, err := os.Open(dst)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	return decodeWAV(fh)
}

// isRIFFWave reports whether r starts with a RIFF/WAVE header and rewinds it
func isRIFFWave(r io.ReadSeeker) bool {
	defer r.Seek(0, io.SeekStart)

	magic := make([]byte, 12)
	if _, err := io.ReadFull(r, magic); err != nil {
		return false
	}
	return string(magic[0:4]) == "RIFF" && string(magic[8:12]) == "WAVE"
}

// decodeWAV reads integer PCM from a WAV stream. A data chunk without samples yields an empty buffer.
func decodeWAV(r io.ReadSeeker) (*goaudio.IntBuffer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if d.WavAudioFormat != 1 && d.WavAudioFormat != 0xFFFE {
		return nil, fmt.Errorf("unsupported WAV audio format %d", d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("invalid PCM format")
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(d.BitDepth)
	}

	return buf, nil
}

// identifyContainer names the container of r, or "unknown" if it is not recognised
func identifyContainer(r io.ReadSeeker) string {
	_, fileType, err := tag.Identify(r)
	if err != nil || fileType == tag.UnknownFileType {
		return "unknown"
	}
	switch fileType {
	case tag.FLAC:
		return "flac"
	case tag.MP3:
		return "mp3"
	case tag.OGG:
		return "ogg"
	case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
		return "m4a"
	case tag.DSF:
		return "dsf"
	default:
		return string(fileType)
	}
}

func framesToDuration(frames, sampleRate int) time.Duration {
	return time.Duration(int64(frames) * int64(time.Second) / int64(sampleRate))
}
