// Package audio handles loading, segmentation and WAV encoding of audio files.
// It decodes WAV sources directly, converts other containers through ffmpeg,
// slices the PCM into fixed-length segments and re-encodes each segment as
// base64 WAV for transport to the inference endpoint.
package audio
